// Package chain defines the contract the settlement core consumes from the
// chain adapter, the component that broadcasts transfers and watches for
// their confirmation, plus a few adapters useful outside production.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/paysplit/internal/models"
)

// Status is the terminal result of waiting for a transfer.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
)

// Handle identifies a submitted transfer.
type Handle struct {
	ID       string
	Sequence int
}

// Adapter broadcasts transfers and reports their confirmation.
type Adapter interface {
	// SubmitTransfer hands a single instruction to the chain.
	SubmitTransfer(ctx context.Context, in models.TransferInstruction) (Handle, error)

	// AwaitConfirmation blocks until the transfer reaches the required number
	// of confirmations, fails, or timeout elapses. A non-nil error means the
	// adapter could not determine the status and the call may be retried.
	AwaitConfirmation(ctx context.Context, h Handle, confirmations int, timeout time.Duration) (Status, error)
}

// ErrTransferFailed is returned when the chain rejected a transfer.
var ErrTransferFailed = errors.New("chain: transfer failed")

// TimeoutError reports a transfer that did not confirm in time.
type TimeoutError struct {
	Handle  Handle
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chain: transfer %s not confirmed within %s", e.Handle.ID, e.Timeout)
}

// FuncAdapter adapts callback functions to the Adapter interface.
type FuncAdapter struct {
	SubmitFunc func(ctx context.Context, in models.TransferInstruction) (Handle, error)
	AwaitFunc  func(ctx context.Context, h Handle, confirmations int, timeout time.Duration) (Status, error)
}

// SubmitTransfer delegates to SubmitFunc. A nil SubmitFunc returns a handle
// derived from the instruction sequence.
func (a FuncAdapter) SubmitTransfer(ctx context.Context, in models.TransferInstruction) (Handle, error) {
	if a.SubmitFunc == nil {
		return Handle{ID: fmt.Sprintf("tx-%d", in.Sequence), Sequence: in.Sequence}, nil
	}
	return a.SubmitFunc(ctx, in)
}

// AwaitConfirmation delegates to AwaitFunc. A nil AwaitFunc confirms immediately.
func (a FuncAdapter) AwaitConfirmation(ctx context.Context, h Handle, confirmations int, timeout time.Duration) (Status, error) {
	if a.AwaitFunc == nil {
		return StatusConfirmed, nil
	}
	return a.AwaitFunc(ctx, h, confirmations, timeout)
}
