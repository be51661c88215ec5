package chain

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmynk/paysplit/internal/models"
)

// RateLimited throttles submissions to the wrapped adapter. Confirmation
// waits pass through untouched.
type RateLimited struct {
	next    Adapter
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond submissions with the given burst.
func NewRateLimited(next Adapter, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// SubmitTransfer waits for a token and forwards the instruction.
func (r *RateLimited) SubmitTransfer(ctx context.Context, in models.TransferInstruction) (Handle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Handle{}, fmt.Errorf("chain: submit throttled: %w", err)
	}
	return r.next.SubmitTransfer(ctx, in)
}

// AwaitConfirmation forwards to the wrapped adapter.
func (r *RateLimited) AwaitConfirmation(ctx context.Context, h Handle, confirmations int, timeout time.Duration) (Status, error) {
	return r.next.AwaitConfirmation(ctx, h, confirmations, timeout)
}
