package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/escrow"
	"github.com/mmynk/paysplit/internal/models"
)

// Execute hands the plan's transfers to the chain one at a time, waiting for
// each to confirm, then records the outcome.
//
// When every transfer confirms, the escrow transition, the completed record
// and the split counter are committed together. When a transfer fails, times
// out or cannot be submitted, a failed record is appended and the escrow is
// left as it was; a later Prepare resumes from the confirmed transfers.
// Transfer failures are reported through the record, not the error.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) (*models.SettlementRecord, error) {
	if plan.Settled != nil {
		return plan.Settled, nil
	}

	o.mu.Lock()
	switch plan.state {
	case planCancelled:
		o.mu.Unlock()
		return nil, ErrPlanCancelled
	case planHandedOff, planExecuted:
		o.mu.Unlock()
		return nil, ErrPlanExecuted
	}
	plan.state = planHandedOff
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		plan.state = planExecuted
		o.mu.Unlock()
		o.unclaim(plan)
	}()

	// The chain is authoritative from here on.
	ctx = context.WithoutCancel(ctx)
	start := o.now()
	logger := o.logger.With(
		"escrow_id", plan.Escrow.ID,
		"action", plan.Action,
		"attempt", plan.Attempt,
	)

	rec := &models.SettlementRecord{
		EscrowID:          plan.Escrow.ID,
		SplitID:           plan.splitID(),
		Action:            plan.Action,
		IdempotencyKey:    plan.IdempotencyKey,
		Attempt:           plan.Attempt,
		Instructions:      plan.Instructions,
		Gross:             plan.Withholding.Gross,
		FeeWithheld:       plan.Withholding.Fee,
		GasBufferWithheld: plan.Withholding.GasBuffer,
		Distributable:     plan.Withholding.Distributable,
	}

	transferErr := o.transfer(ctx, plan, rec, logger)
	rec.ConfirmedSequences = slices.Sorted(maps.Keys(plan.confirmed))
	rec.CreatedAt = o.now().Unix()

	if transferErr != nil {
		rec.Outcome = models.OutcomeFailed
		rec.FailureReason = transferErr.Error()
		if err := o.store.CreateSettlement(ctx, rec); err != nil {
			logger.Error("Failed to record failed settlement", "error", err)
			return nil, fmt.Errorf("failed to record settlement: %w", err)
		}
		o.metrics.ObserveSettlement(string(plan.Action), string(rec.Outcome), o.now().Sub(start))
		logger.Warn("Settlement failed", "settlement_id", rec.ID, "reason", rec.FailureReason)
		return rec, nil
	}

	target := escrow.TargetState(plan.Action)
	next, err := o.machine.Transition(plan.Escrow, target, plan.ExpectedVersion, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Outcome = models.OutcomeCompleted
	if err := o.store.CommitSettlement(ctx, rec, next, plan.ExpectedVersion); err != nil {
		logger.Error("Transfers confirmed but commit failed", "handles", rec.TransferHandles, "error", err)
		o.recordUncommitted(ctx, rec, err, logger)
		return nil, fmt.Errorf("failed to commit settlement: %w", storeConflict(err, plan.Escrow.ID))
	}

	o.metrics.ObserveSettlement(string(plan.Action), string(rec.Outcome), o.now().Sub(start))
	o.metrics.ObserveTransition(string(plan.Escrow.State), string(target))
	o.metrics.ObserveDistribution(plan.Escrow.Token)
	logger.Info("Settlement completed",
		"settlement_id", rec.ID,
		"distributable", rec.Distributable.String(),
		"transfers", len(rec.TransferHandles),
	)
	return rec, nil
}

// transfer submits and confirms each pending non-zero instruction in order,
// stopping at the first failure.
func (o *Orchestrator) transfer(ctx context.Context, plan *Plan, rec *models.SettlementRecord, logger *slog.Logger) error {
	wait := o.cfg.Wait
	if wait.Logger == nil {
		wait.Logger = logger
	}
	for _, in := range plan.Instructions {
		if in.Amount.IsZero() || plan.confirmed[in.Sequence] {
			continue
		}

		h, err := o.adapter.SubmitTransfer(ctx, in)
		if err != nil {
			o.metrics.ObserveTransfer("submit_error")
			return fmt.Errorf("submit transfer %d: %w", in.Sequence, err)
		}
		rec.TransferHandles = append(rec.TransferHandles, h.ID)
		logger.Debug("Transfer submitted", "sequence", in.Sequence, "handle", h.ID)

		if err := chain.WaitForConfirmation(ctx, o.adapter, h, wait); err != nil {
			var timeout *chain.TimeoutError
			if errors.As(err, &timeout) {
				o.metrics.ObserveTransfer("timed_out")
			} else {
				o.metrics.ObserveTransfer("failed")
			}
			return fmt.Errorf("transfer %d: %w", in.Sequence, err)
		}
		plan.confirmed[in.Sequence] = true
		o.metrics.ObserveTransfer("confirmed")
	}
	return nil
}

// recordUncommitted appends a failed record listing every confirmed transfer
// so a retry with the same key commits without paying anyone again.
func (o *Orchestrator) recordUncommitted(ctx context.Context, rec *models.SettlementRecord, commitErr error, logger *slog.Logger) {
	failed := *rec
	failed.ID = ""
	failed.Outcome = models.OutcomeFailed
	failed.FailureReason = "commit: " + commitErr.Error()
	if err := o.store.CreateSettlement(ctx, &failed); err != nil {
		logger.Error("Failed to record uncommitted settlement", "error", err)
		return
	}
	o.metrics.ObserveSettlement(string(rec.Action), string(failed.Outcome), 0)
}

// Release prepares and executes a release of escrowID.
func (o *Orchestrator) Release(ctx context.Context, escrowID string, expectedVersion uint64) (*models.SettlementRecord, error) {
	plan, err := o.Prepare(ctx, escrowID, expectedVersion, models.ActionRelease)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, plan)
}

// Refund prepares and executes a refund of escrowID to its payer.
func (o *Orchestrator) Refund(ctx context.Context, escrowID string, expectedVersion uint64) (*models.SettlementRecord, error) {
	plan, err := o.Prepare(ctx, escrowID, expectedVersion, models.ActionRefund)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, plan)
}
