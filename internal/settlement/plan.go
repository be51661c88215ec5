package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/paysplit/internal/calculator"
	"github.com/mmynk/paysplit/internal/escrow"
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
)

type planState int

const (
	planPrepared planState = iota
	planHandedOff
	planExecuted
	planCancelled
)

// Plan is a prepared settlement. It holds the claim on its escrow until it is
// executed or cancelled.
type Plan struct {
	// Escrow is the snapshot the plan was computed from.
	Escrow          *models.Escrow
	Action          models.SettlementAction
	ExpectedVersion uint64
	IdempotencyKey  string
	Attempt         int
	Withholding     calculator.Withholding
	Instructions    []models.TransferInstruction

	// Settled is the earlier completed record when the escrow was already
	// settled by the same action. Execute returns it without side effects.
	Settled *models.SettlementRecord

	confirmed map[int]bool
	state     planState
}

func (p *Plan) splitID() string {
	if p.Action == models.ActionRelease {
		return p.Escrow.SplitID
	}
	return ""
}

// Prepare validates a release or refund of escrowID and computes its
// transfers. Checks run in this order: an escrow already settled by action
// yields its prior record; the transition edge; the version; an inactive
// target split; the claim on the escrow.
func (o *Orchestrator) Prepare(ctx context.Context, escrowID string, expectedVersion uint64, action models.SettlementAction) (*Plan, error) {
	if action != models.ActionRelease && action != models.ActionRefund {
		return nil, validation.NewError("action", "unknown settlement action %q", action)
	}

	esc, err := o.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if o.machine.IsSettled(esc.State, action) {
		rec, err := o.store.GetCompletedSettlement(ctx, esc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load prior settlement: %w", err)
		}
		return &Plan{Escrow: esc, Action: action, Settled: rec, state: planExecuted}, nil
	}

	if err := o.machine.Guard(esc, escrow.TargetState(action), expectedVersion); err != nil {
		var conflict *escrow.StateConflictError
		if errors.As(err, &conflict) {
			o.metrics.ObserveConflict("stale_version")
		}
		return nil, err
	}

	plan := &Plan{
		Escrow:          esc,
		Action:          action,
		ExpectedVersion: expectedVersion,
		IdempotencyKey:  models.IdempotencyKey(esc.ID, esc.Version, action),
		Attempt:         1,
		confirmed:       make(map[int]bool),
	}

	prior, err := o.store.GetLatestSettlementByKey(ctx, plan.IdempotencyKey)
	switch {
	case err == nil && prior.Completed():
		plan.Settled = prior
		plan.state = planExecuted
		return plan, nil
	case err == nil:
		if err := o.resume(ctx, plan, prior); err != nil {
			return nil, err
		}
	case errors.Is(err, storage.ErrNotFound):
		if err := o.compute(ctx, plan); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to load settlement attempts: %w", err)
	}

	if err := o.claim(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// compute derives withholding and instructions for a first attempt.
func (o *Orchestrator) compute(ctx context.Context, plan *Plan) error {
	esc := plan.Escrow

	var recipients []models.Recipient
	if plan.Action == models.ActionRefund {
		plan.Withholding = calculator.Withholding{
			Gross:         esc.Amount,
			Fee:           money.Zero(),
			GasBuffer:     money.Zero(),
			Distributable: esc.Amount,
		}
		recipients = []models.Recipient{{Address: esc.Payer, Share: validation.TotalBasisPoints}}
	} else {
		var err error
		if recipients, err = o.releaseRecipients(ctx, esc); err != nil {
			return err
		}
		plan.Withholding, err = o.calc.Withhold(esc.Amount, o.cfg.FeeBasisPoints, o.cfg.GasBufferBasisPoints)
		if err != nil {
			return fmt.Errorf("failed to compute withholding: %w", err)
		}
	}

	instructions, err := o.calc.Distribute(plan.Withholding.Distributable, esc.Token, recipients)
	if err != nil {
		return fmt.Errorf("failed to compute distribution: %w", err)
	}
	plan.Instructions = instructions
	return nil
}

// resume continues after a failed attempt with the same key. The earlier
// instructions are reused verbatim and confirmed transfers are not repeated.
func (o *Orchestrator) resume(ctx context.Context, plan *Plan, prior *models.SettlementRecord) error {
	if len(prior.ConfirmedSequences) == 0 && plan.Action == models.ActionRelease {
		if _, err := o.releaseRecipients(ctx, plan.Escrow); err != nil {
			return err
		}
	}
	plan.Attempt = prior.Attempt + 1
	plan.Instructions = prior.Instructions
	plan.Withholding = calculator.Withholding{
		Gross:         prior.Gross,
		Fee:           prior.FeeWithheld,
		GasBuffer:     prior.GasBufferWithheld,
		Distributable: prior.Distributable,
	}
	for _, seq := range prior.ConfirmedSequences {
		plan.confirmed[seq] = true
	}
	return nil
}

func (o *Orchestrator) releaseRecipients(ctx context.Context, esc *models.Escrow) ([]models.Recipient, error) {
	if esc.SplitID == "" {
		return []models.Recipient{{Address: esc.Beneficiary, Share: validation.TotalBasisPoints}}, nil
	}
	split, err := o.store.GetSplit(ctx, esc.SplitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load split: %w", err)
	}
	if !split.IsActive() {
		return nil, validation.NewError("split_id", "split %s is inactive", split.ID)
	}
	return split.Recipients, nil
}

// Cancel abandons a prepared plan and releases its claim. It is refused once
// Execute has started handing transfers to the chain.
func (o *Orchestrator) Cancel(plan *Plan) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch plan.state {
	case planCancelled:
		return nil
	case planPrepared:
		plan.state = planCancelled
		if o.claims[plan.Escrow.ID] == plan {
			delete(o.claims, plan.Escrow.ID)
			o.metrics.SettlementFinished()
		}
		return nil
	default:
		return ErrCancelRefused
	}
}
