package chain

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
)

func fastPolicy() WaitPolicy {
	return WaitPolicy{
		Confirmations:  1,
		Timeout:        time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		MaxRetries:     3,
	}
}

func TestWaitForConfirmation(t *testing.T) {
	h := Handle{ID: "tx-1", Sequence: 1}

	t.Run("confirmed", func(t *testing.T) {
		a := FuncAdapter{}
		require.NoError(t, WaitForConfirmation(context.Background(), a, h, fastPolicy()))
	})

	t.Run("failed is final", func(t *testing.T) {
		var calls atomic.Int32
		a := FuncAdapter{AwaitFunc: func(context.Context, Handle, int, time.Duration) (Status, error) {
			calls.Add(1)
			return StatusFailed, nil
		}}
		err := WaitForConfirmation(context.Background(), a, h, fastPolicy())
		require.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("timed out status", func(t *testing.T) {
		a := FuncAdapter{AwaitFunc: func(context.Context, Handle, int, time.Duration) (Status, error) {
			return StatusTimedOut, nil
		}}
		err := WaitForConfirmation(context.Background(), a, h, fastPolicy())
		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "tx-1", te.Handle.ID)
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		a := FuncAdapter{AwaitFunc: func(context.Context, Handle, int, time.Duration) (Status, error) {
			if calls.Add(1) < 3 {
				return "", errors.New("rpc unavailable")
			}
			return StatusConfirmed, nil
		}}
		require.NoError(t, WaitForConfirmation(context.Background(), a, h, fastPolicy()))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("retry warnings use policy logger", func(t *testing.T) {
		var calls atomic.Int32
		a := FuncAdapter{AwaitFunc: func(context.Context, Handle, int, time.Duration) (Status, error) {
			if calls.Add(1) < 2 {
				return "", errors.New("rpc unavailable")
			}
			return StatusConfirmed, nil
		}}
		var buf bytes.Buffer
		policy := fastPolicy()
		policy.Logger = slog.New(slog.NewTextHandler(&buf, nil))
		require.NoError(t, WaitForConfirmation(context.Background(), a, h, policy))
		assert.Contains(t, buf.String(), "Confirmation check failed, retrying")
		assert.Contains(t, buf.String(), "handle=tx-1")
	})

	t.Run("retries exhausted", func(t *testing.T) {
		var calls atomic.Int32
		rpcErr := errors.New("rpc unavailable")
		a := FuncAdapter{AwaitFunc: func(context.Context, Handle, int, time.Duration) (Status, error) {
			calls.Add(1)
			return "", rpcErr
		}}
		err := WaitForConfirmation(context.Background(), a, h, fastPolicy())
		require.ErrorIs(t, err, rpcErr)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("adapter blocks past deadline", func(t *testing.T) {
		a := FuncAdapter{AwaitFunc: func(ctx context.Context, _ Handle, _ int, _ time.Duration) (Status, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		policy := fastPolicy()
		policy.Timeout = 20 * time.Millisecond
		err := WaitForConfirmation(context.Background(), a, h, policy)
		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 20*time.Millisecond, te.Timeout)
	})
}

func TestSimulated(t *testing.T) {
	ctx := context.Background()
	in := models.TransferInstruction{Sequence: 0, Recipient: "0xabc", Amount: money.NewAmount(7), Token: "USDC"}

	t.Run("confirms after delay", func(t *testing.T) {
		s := NewSimulated(5 * time.Millisecond)
		h, err := s.SubmitTransfer(ctx, in)
		require.NoError(t, err)
		status, err := s.AwaitConfirmation(ctx, h, 1, time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, status)
		require.Len(t, s.Transfers(), 1)
		assert.True(t, s.Transfers()[0].Amount.Equal(money.NewAmount(7)))
	})

	t.Run("delay beyond timeout", func(t *testing.T) {
		s := NewSimulated(time.Hour)
		h, err := s.SubmitTransfer(ctx, in)
		require.NoError(t, err)
		status, err := s.AwaitConfirmation(ctx, h, 1, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, StatusTimedOut, status)
	})

	t.Run("unknown handle", func(t *testing.T) {
		s := NewSimulated(0)
		status, err := s.AwaitConfirmation(ctx, Handle{ID: "nope"}, 1, time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)
	})
}

func TestRateLimited(t *testing.T) {
	sim := NewSimulated(0)
	rl := NewRateLimited(sim, 1000, 2)
	for i := 0; i < 3; i++ {
		_, err := rl.SubmitTransfer(context.Background(), models.TransferInstruction{Sequence: i, Amount: money.NewAmount(1)})
		require.NoError(t, err)
	}
	assert.Len(t, sim.Transfers(), 3)

	slow := NewRateLimited(sim, 0.001, 1)
	_, err := slow.SubmitTransfer(context.Background(), models.TransferInstruction{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.SubmitTransfer(ctx, models.TransferInstruction{})
	require.Error(t, err)
}
