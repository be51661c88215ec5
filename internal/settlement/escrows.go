package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
)

// CreateEscrow validates req and stores a new escrow in the created state.
// Addresses are stored in checksum form.
func (o *Orchestrator) CreateEscrow(ctx context.Context, req validation.EscrowRequest) (*models.Escrow, error) {
	if err := validation.ValidateEscrowRequest(req, o.cfg.Limits); err != nil {
		return nil, err
	}
	payer, err := validation.NormalizeAddress(req.Payer)
	if err != nil {
		return nil, err
	}
	beneficiary := ""
	if req.Beneficiary != "" {
		if beneficiary, err = validation.NormalizeAddress(req.Beneficiary); err != nil {
			return nil, err
		}
	}

	if req.SplitID != "" {
		split, err := o.store.GetSplit(ctx, req.SplitID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, validation.NewError("split_id", "split %s does not exist", req.SplitID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load split: %w", err)
		}
		if !split.IsActive() {
			return nil, validation.NewError("split_id", "split %s is inactive", split.ID)
		}
	}

	esc := &models.Escrow{
		Payer:       payer,
		Beneficiary: beneficiary,
		SplitID:     req.SplitID,
		Amount:      req.Amount,
		Token:       req.Token,
		State:       models.EscrowCreated,
		Version:     1,
		CreatedAt:   o.now().Unix(),
	}
	if err := o.store.CreateEscrow(ctx, esc); err != nil {
		return nil, fmt.Errorf("failed to create escrow: %w", err)
	}

	o.logger.Info("Escrow created",
		"escrow_id", esc.ID,
		"payer", esc.Payer,
		"amount", esc.Amount.String(),
		"token", esc.Token,
	)
	return esc, nil
}

// Transition applies one of the edges that move no funds: fund, dispute or
// resolve. Released and refunded are reached only through Release and Refund.
func (o *Orchestrator) Transition(ctx context.Context, escrowID string, expectedVersion uint64, to models.EscrowState) (*models.Escrow, error) {
	if to == models.EscrowReleased || to == models.EscrowRefunded {
		return nil, validation.NewError("state", "%s is reached through a settlement", to)
	}

	esc, err := o.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if err := o.machine.Guard(esc, to, expectedVersion); err != nil {
		return nil, err
	}

	// Transitions take the same claim as settlements so neither can race
	// the other within this process.
	plan := &Plan{Escrow: esc, state: planHandedOff}
	if err := o.claim(plan); err != nil {
		return nil, err
	}
	defer o.unclaim(plan)

	next, err := o.machine.Transition(esc, to, expectedVersion, o.now().Unix())
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdateEscrow(ctx, next, expectedVersion); err != nil {
		return nil, storeConflict(err, escrowID)
	}

	o.metrics.ObserveTransition(string(esc.State), string(to))
	o.logger.Info("Escrow transitioned",
		"escrow_id", escrowID,
		"from", esc.State,
		"to", to,
		"version", next.Version,
	)
	return next, nil
}

// Fund marks a created escrow as funded.
func (o *Orchestrator) Fund(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error) {
	return o.Transition(ctx, escrowID, expectedVersion, models.EscrowFunded)
}

// Dispute freezes a funded escrow.
func (o *Orchestrator) Dispute(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error) {
	return o.Transition(ctx, escrowID, expectedVersion, models.EscrowDisputed)
}

// Resolve closes a disputed escrow without moving funds.
func (o *Orchestrator) Resolve(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error) {
	return o.Transition(ctx, escrowID, expectedVersion, models.EscrowResolved)
}

// GetEscrow returns an escrow by ID.
func (o *Orchestrator) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	return o.store.GetEscrow(ctx, escrowID)
}

// ListEscrowsByUser returns the escrows address is a party to, newest first.
func (o *Orchestrator) ListEscrowsByUser(ctx context.Context, address string) ([]*models.Escrow, error) {
	return o.store.ListEscrowsByUser(ctx, address)
}

// GetSettlement returns a settlement record by ID.
func (o *Orchestrator) GetSettlement(ctx context.Context, settlementID string) (*models.SettlementRecord, error) {
	return o.store.GetSettlement(ctx, settlementID)
}

// ListSettlements returns every settlement attempt on an escrow, oldest first.
func (o *Orchestrator) ListSettlements(ctx context.Context, escrowID string) ([]*models.SettlementRecord, error) {
	return o.store.ListSettlementsByEscrow(ctx, escrowID)
}
