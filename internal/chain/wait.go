package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitPolicy bounds the wait for a confirmation.
type WaitPolicy struct {
	Confirmations  int
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     uint64
	// Logger receives retry warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultWaitPolicy is used for zero fields of a caller-supplied policy.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		Confirmations:  1,
		Timeout:        2 * time.Minute,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
		MaxRetries:     5,
	}
}

func (p WaitPolicy) withDefaults() WaitPolicy {
	def := DefaultWaitPolicy()
	if p.Confirmations <= 0 {
		p.Confirmations = def.Confirmations
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// WaitForConfirmation waits for h under the policy. Adapter errors are retried
// with exponential backoff up to MaxRetries times; a Failed status and the
// overall timeout are final. The returned error is nil, a *TimeoutError,
// an error wrapping ErrTransferFailed, or the last adapter error.
func WaitForConfirmation(ctx context.Context, a Adapter, h Handle, policy WaitPolicy) error {
	policy = policy.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(policy.InitialBackoff),
		backoff.WithMaxInterval(policy.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)

	op := func() (Status, error) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return StatusTimedOut, nil
		}
		status, err := a.AwaitConfirmation(ctx, h, policy.Confirmations, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return StatusTimedOut, nil
			}
			return "", err
		}
		return status, nil
	}
	notify := func(err error, next time.Duration) {
		policy.Logger.Warn("Confirmation check failed, retrying",
			"handle", h.ID,
			"error", err,
			"retry_in", next,
		)
	}

	status, err := backoff.RetryNotifyWithData(op,
		backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx),
		notify,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Handle: h, Timeout: policy.Timeout}
		}
		return fmt.Errorf("failed to await confirmation of %s: %w", h.ID, err)
	}

	switch status {
	case StatusConfirmed:
		return nil
	case StatusTimedOut:
		return &TimeoutError{Handle: h, Timeout: policy.Timeout}
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrTransferFailed, h.ID)
	default:
		return fmt.Errorf("chain: unknown status %q for %s", status, h.ID)
	}
}
