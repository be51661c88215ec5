package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/escrow"
	"github.com/mmynk/paysplit/internal/metrics"
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/storage/sqlite"
	"github.com/mmynk/paysplit/internal/validation"
)

const (
	payer = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
	dave  = "0x4444444444444444444444444444444444444444"
)

// recorder is a chain adapter that confirms everything unless told otherwise.
type recorder struct {
	mu        sync.Mutex
	submitted []models.TransferInstruction
	await     func(h chain.Handle) (chain.Status, error)
}

func (r *recorder) adapter() chain.FuncAdapter {
	return chain.FuncAdapter{
		SubmitFunc: func(ctx context.Context, in models.TransferInstruction) (chain.Handle, error) {
			if err := ctx.Err(); err != nil {
				return chain.Handle{}, err
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.submitted = append(r.submitted, in)
			return chain.Handle{ID: "tx-" + in.Recipient[2:6] + "-" + in.Amount.String(), Sequence: in.Sequence}, nil
		},
		AwaitFunc: func(_ context.Context, h chain.Handle, _ int, _ time.Duration) (chain.Status, error) {
			if r.await != nil {
				return r.await(h)
			}
			return chain.StatusConfirmed, nil
		},
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted)
}

type harness struct {
	orch  *Orchestrator
	store *sqlite.SQLiteStore
	chain *recorder
	split *models.Split
}

func newHarness(t *testing.T, adapter chain.Adapter, rec *recorder) *harness {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if adapter == nil {
		adapter = rec.adapter()
	}
	cfg := Config{
		FeeBasisPoints:       100,
		GasBufferBasisPoints: 200,
		Wait: chain.WaitPolicy{
			Confirmations:  1,
			Timeout:        time.Second,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			MaxRetries:     2,
		},
		Limits: validation.DefaultLimits(),
	}
	orch := New(store, adapter, cfg, WithMetrics(metrics.New(prometheus.NewRegistry())))

	split := &models.Split{
		Owner: dave,
		Recipients: []models.Recipient{
			{Address: bob, Share: 3334},
			{Address: carol, Share: 6666},
		},
	}
	require.NoError(t, store.CreateSplit(context.Background(), split))
	return &harness{orch: orch, store: store, chain: rec, split: split}
}

// fundedEscrow creates and funds an escrow, returning it at version 2.
func (h *harness) fundedEscrow(t *testing.T, amount uint64, toSplit bool) *models.Escrow {
	t.Helper()
	ctx := context.Background()
	req := validation.EscrowRequest{Payer: payer, Amount: money.NewAmount(amount), Token: "USDC"}
	if toSplit {
		req.SplitID = h.split.ID
	} else {
		req.Beneficiary = bob
	}
	esc, err := h.orch.CreateEscrow(ctx, req)
	require.NoError(t, err)
	esc, err = h.orch.Fund(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	require.Equal(t, uint64(2), esc.Version)
	return esc
}

func amountsOf(instructions []models.TransferInstruction) []string {
	out := make([]string, len(instructions))
	for i, in := range instructions {
		out[i] = in.Amount.String()
	}
	return out
}

func TestRelease_ToSplit(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()
	esc := h.fundedEscrow(t, 500, true)

	rec, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, "5", rec.FeeWithheld.String())
	assert.Equal(t, "10", rec.GasBufferWithheld.String())
	assert.Equal(t, "485", rec.Distributable.String())
	// 485 × 3334 = 1616990 → 161 r6990, 485 × 6666 = 3233010 → 323 r3010
	assert.Equal(t, []string{"162", "323"}, amountsOf(rec.Instructions))
	assert.Equal(t, esc.ID+":2:release", rec.IdempotencyKey)
	assert.Equal(t, 1, rec.Attempt)
	assert.Len(t, rec.TransferHandles, 2)
	assert.Equal(t, []int{0, 1}, rec.ConfirmedSequences)

	got, err := h.orch.GetEscrow(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, got.State)
	assert.Equal(t, uint64(3), got.Version)
	assert.NotZero(t, got.ResolvedAt)

	split, err := h.store.GetSplit(ctx, h.split.ID)
	require.NoError(t, err)
	assert.Equal(t, "485", split.TotalProcessed.String())

	byID, err := h.orch.GetSettlement(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.IdempotencyKey, byID.IdempotencyKey)
	assert.False(t, h.orch.InFlight(esc.ID))
}

func TestRelease_Idempotent(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	ctx := context.Background()
	esc := h.fundedEscrow(t, 500, true)

	first, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	submitted := r.count()

	// The caller retries with the version it originally read.
	second, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, submitted, r.count(), "no transfers on repeat")

	split, err := h.store.GetSplit(ctx, h.split.ID)
	require.NoError(t, err)
	assert.Equal(t, "485", split.TotalProcessed.String(), "counter bumped once")
}

func TestRefundAfterRelease(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()
	esc := h.fundedEscrow(t, 100, false)

	_, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)

	_, err = h.orch.Refund(ctx, esc.ID, esc.Version+1)
	var invalid *escrow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.EscrowReleased, invalid.From)
	assert.Equal(t, models.EscrowRefunded, invalid.To)
}

func TestRelease_StaleVersion(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()
	esc := h.fundedEscrow(t, 100, false)

	_, err := h.orch.Release(ctx, esc.ID, 1)
	var conflict *escrow.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(1), conflict.Expected)
	assert.Equal(t, uint64(2), conflict.Actual)

	current, err := h.orch.GetEscrow(ctx, esc.ID)
	require.NoError(t, err)
	rec, err := h.orch.Release(ctx, esc.ID, current.Version)
	require.NoError(t, err)
	assert.True(t, rec.Completed())
}

func TestRefund_FullAmountToPayer(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	ctx := context.Background()
	esc := h.fundedEscrow(t, 500, true)

	rec, err := h.orch.Refund(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.True(t, rec.FeeWithheld.IsZero())
	assert.True(t, rec.GasBufferWithheld.IsZero())
	assert.Equal(t, "500", rec.Distributable.String())
	require.Len(t, rec.Instructions, 1)
	assert.Equal(t, payer, rec.Instructions[0].Recipient)
	assert.Empty(t, rec.SplitID)

	split, err := h.store.GetSplit(ctx, h.split.ID)
	require.NoError(t, err)
	assert.True(t, split.TotalProcessed.IsZero())
}

func TestRelease_TimeoutThenRetry(t *testing.T) {
	r := &recorder{}
	var failCarol atomic.Bool
	failCarol.Store(true)
	r.await = func(h chain.Handle) (chain.Status, error) {
		if h.Sequence == 1 && failCarol.Load() {
			return chain.StatusTimedOut, nil
		}
		return chain.StatusConfirmed, nil
	}
	h := newHarness(t, nil, r)
	ctx := context.Background()
	esc := h.fundedEscrow(t, 500, true)

	failed, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.FailureReason, "not confirmed")
	assert.Equal(t, []int{0}, failed.ConfirmedSequences)

	got, err := h.orch.GetEscrow(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowFunded, got.State)
	assert.Equal(t, esc.Version, got.Version)

	failCarol.Store(false)
	done, err := h.orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.True(t, done.Completed())
	assert.Equal(t, 2, done.Attempt)
	assert.Equal(t, failed.IdempotencyKey, done.IdempotencyKey)
	assert.Equal(t, []int{0, 1}, done.ConfirmedSequences)

	// Bob once, Carol twice.
	assert.Equal(t, 3, r.count())

	attempts, err := h.orch.ListSettlements(ctx, esc.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
}

func TestRelease_SubmitError(t *testing.T) {
	submitErr := errors.New("nonce too low")
	adapter := chain.FuncAdapter{
		SubmitFunc: func(context.Context, models.TransferInstruction) (chain.Handle, error) {
			return chain.Handle{}, submitErr
		},
	}
	h := newHarness(t, adapter, nil)
	esc := h.fundedEscrow(t, 100, false)

	rec, err := h.orch.Release(context.Background(), esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.Outcome)
	assert.Contains(t, rec.FailureReason, "nonce too low")
	assert.Empty(t, rec.TransferHandles)
}

func TestPrepareCancel(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	ctx := context.Background()
	esc := h.fundedEscrow(t, 100, false)

	plan, err := h.orch.Prepare(ctx, esc.ID, esc.Version, models.ActionRelease)
	require.NoError(t, err)
	assert.True(t, h.orch.InFlight(esc.ID))

	_, err = h.orch.Prepare(ctx, esc.ID, esc.Version, models.ActionRelease)
	var conflict *escrow.StateConflictError
	require.ErrorAs(t, err, &conflict, "second claim rejected")

	require.NoError(t, h.orch.Cancel(plan))
	require.NoError(t, h.orch.Cancel(plan))
	assert.False(t, h.orch.InFlight(esc.ID))

	_, err = h.orch.Execute(ctx, plan)
	assert.ErrorIs(t, err, ErrPlanCancelled)
	assert.Zero(t, r.count())

	plan, err = h.orch.Prepare(ctx, esc.ID, esc.Version, models.ActionRelease)
	require.NoError(t, err)
	_, err = h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.ErrorIs(t, h.orch.Cancel(plan), ErrCancelRefused)

	_, err = h.orch.Execute(ctx, plan)
	assert.ErrorIs(t, err, ErrPlanExecuted)
}

func TestCancelRefusedDuringHandOff(t *testing.T) {
	submitted := make(chan struct{})
	unblock := make(chan struct{})
	adapter := chain.FuncAdapter{
		AwaitFunc: func(context.Context, chain.Handle, int, time.Duration) (chain.Status, error) {
			close(submitted)
			<-unblock
			return chain.StatusConfirmed, nil
		},
	}
	h := newHarness(t, adapter, nil)
	esc := h.fundedEscrow(t, 100, false)

	ctx, cancel := context.WithCancel(context.Background())
	plan, err := h.orch.Prepare(ctx, esc.ID, esc.Version, models.ActionRelease)
	require.NoError(t, err)

	type result struct {
		rec *models.SettlementRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := h.orch.Execute(ctx, plan)
		done <- result{rec, err}
	}()

	<-submitted
	assert.ErrorIs(t, h.orch.Cancel(plan), ErrCancelRefused)
	// Caller gives up; the settlement still runs to completion.
	cancel()
	close(unblock)

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.rec.Completed())
}

func TestExecute_IgnoresCancelledContext(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	esc := h.fundedEscrow(t, 100, false)

	plan, err := h.orch.Prepare(context.Background(), esc.ID, esc.Version, models.ActionRelease)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.True(t, rec.Completed())
	assert.Equal(t, 1, r.count())
}

func TestRelease_InactiveSplit(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()
	esc := h.fundedEscrow(t, 100, true)

	split, err := h.store.GetSplit(ctx, h.split.ID)
	require.NoError(t, err)
	split.Status = models.SplitInactive
	split.Version++
	require.NoError(t, h.store.UpdateSplit(ctx, split, split.Version-1))

	_, err = h.orch.Release(ctx, esc.ID, esc.Version)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("split_id"))
	assert.False(t, h.orch.InFlight(esc.ID))
}

func TestRelease_ZeroAmountsSkipped(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	h.orch.cfg.FeeBasisPoints = 0
	h.orch.cfg.GasBufferBasisPoints = 0
	esc := h.fundedEscrow(t, 1, true)

	rec, err := h.orch.Release(context.Background(), esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, amountsOf(rec.Instructions))
	assert.Equal(t, 1, r.count())
	assert.True(t, rec.Completed())
}

func TestDisputeLifecycle(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()

	esc := h.fundedEscrow(t, 100, false)
	disputed, err := h.orch.Dispute(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowDisputed, disputed.State)

	rec, err := h.orch.Refund(ctx, esc.ID, disputed.Version)
	require.NoError(t, err)
	assert.True(t, rec.Completed())

	other := h.fundedEscrow(t, 100, false)
	other, err = h.orch.Dispute(ctx, other.ID, other.Version)
	require.NoError(t, err)
	resolved, err := h.orch.Resolve(ctx, other.ID, other.Version)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowResolved, resolved.State)
	assert.NotZero(t, resolved.ResolvedAt)

	_, err = h.orch.Transition(ctx, other.ID, resolved.Version, models.EscrowReleased)
	var verr *validation.Error
	assert.ErrorAs(t, err, &verr)

	_, err = h.orch.Fund(ctx, other.ID, resolved.Version)
	var invalid *escrow.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestCreateEscrow_Validation(t *testing.T) {
	h := newHarness(t, nil, &recorder{})
	ctx := context.Background()

	_, err := h.orch.CreateEscrow(ctx, validation.EscrowRequest{Payer: payer, Amount: money.Zero(), Token: "USDC"})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("target"))
	assert.True(t, verr.Has("amount"))

	_, err = h.orch.CreateEscrow(ctx, validation.EscrowRequest{
		Payer: payer, SplitID: "missing", Amount: money.NewAmount(1), Token: "USDC",
	})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("split_id"))

	list, err := h.orch.ListEscrowsByUser(ctx, payer)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// flakyCommit fails the first CommitSettlement.
type flakyCommit struct {
	*sqlite.SQLiteStore
	failed atomic.Bool
}

func (s *flakyCommit) CommitSettlement(ctx context.Context, rec *models.SettlementRecord, esc *models.Escrow, expectedVersion uint64) error {
	if s.failed.CompareAndSwap(false, true) {
		return errors.New("disk I/O error")
	}
	return s.SQLiteStore.CommitSettlement(ctx, rec, esc, expectedVersion)
}

func TestRelease_CommitFailureDoesNotRepay(t *testing.T) {
	r := &recorder{}
	h := newHarness(t, nil, r)
	ctx := context.Background()
	esc := h.fundedEscrow(t, 500, true)

	store := &flakyCommit{SQLiteStore: h.store}
	orch := New(store, r.adapter(), h.orch.cfg)

	_, err := orch.Release(ctx, esc.ID, esc.Version)
	require.Error(t, err)
	assert.Equal(t, 2, r.count())

	attempts, err := orch.ListSettlements(ctx, esc.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeFailed, attempts[0].Outcome)
	assert.Contains(t, attempts[0].FailureReason, "disk I/O error")
	assert.Equal(t, []int{0, 1}, attempts[0].ConfirmedSequences)

	done, err := orch.Release(ctx, esc.ID, esc.Version)
	require.NoError(t, err)
	assert.True(t, done.Completed())
	assert.Equal(t, 2, done.Attempt)
	assert.Equal(t, 2, r.count(), "confirmed transfers must not be resubmitted")

	got, err := orch.GetEscrow(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, got.State)
}
