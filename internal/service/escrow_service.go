package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
	"github.com/mmynk/paysplit/pkg/api"
)

// Orchestrator is the escrow and settlement operations the service exposes.
type Orchestrator interface {
	CreateEscrow(ctx context.Context, req validation.EscrowRequest) (*models.Escrow, error)
	Fund(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error)
	Dispute(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error)
	Resolve(ctx context.Context, escrowID string, expectedVersion uint64) (*models.Escrow, error)
	Release(ctx context.Context, escrowID string, expectedVersion uint64) (*models.SettlementRecord, error)
	Refund(ctx context.Context, escrowID string, expectedVersion uint64) (*models.SettlementRecord, error)
	GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error)
	ListEscrowsByUser(ctx context.Context, address string) ([]*models.Escrow, error)
	GetSettlement(ctx context.Context, settlementID string) (*models.SettlementRecord, error)
	ListSettlements(ctx context.Context, escrowID string) ([]*models.SettlementRecord, error)
}

// SplitLookup resolves the split an escrow releases through.
type SplitLookup interface {
	Get(ctx context.Context, id string) (*models.Split, error)
}

// EscrowService implements the Connect EscrowService. Every procedure
// requires an authenticated caller.
type EscrowService struct {
	orchestrator Orchestrator
	splits       SplitLookup
	logger       *slog.Logger
}

var _ api.EscrowServiceHandler = (*EscrowService)(nil)

// NewEscrowService creates a new EscrowService.
func NewEscrowService(orchestrator Orchestrator, splits SplitLookup, logger *slog.Logger) *EscrowService {
	return &EscrowService{
		orchestrator: orchestrator,
		splits:       splits,
		logger:       logger,
	}
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// splitOwner returns the owner of the escrow's split, or "" when the escrow
// pays a beneficiary directly.
func (s *EscrowService) splitOwner(ctx context.Context, esc *models.Escrow) (string, error) {
	if esc.SplitID == "" {
		return "", nil
	}
	split, err := s.splits.Get(ctx, esc.SplitID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return split.Owner, nil
}

// isParty reports whether caller is the payer, the beneficiary or the owner of
// the escrow's split.
func (s *EscrowService) isParty(ctx context.Context, esc *models.Escrow, caller string) (bool, error) {
	if sameAddress(esc.Payer, caller) || sameAddress(esc.Beneficiary, caller) {
		return true, nil
	}
	owner, err := s.splitOwner(ctx, esc)
	if err != nil {
		return false, err
	}
	return sameAddress(owner, caller), nil
}

// authorize loads the escrow and checks that caller may apply action to it.
func (s *EscrowService) authorize(ctx context.Context, escrowID, caller, action string) (*models.Escrow, error) {
	esc, err := s.orchestrator.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	var allowed bool
	switch action {
	case "fund", "release":
		allowed = sameAddress(esc.Payer, caller)
	case "refund":
		if esc.State == models.EscrowFunded {
			// From funded only the receiving side may give the funds back.
			if sameAddress(esc.Beneficiary, caller) {
				allowed = true
			} else {
				owner, err := s.splitOwner(ctx, esc)
				if err != nil {
					return nil, err
				}
				allowed = sameAddress(owner, caller)
			}
		} else {
			allowed, err = s.isParty(ctx, esc, caller)
		}
	default:
		allowed, err = s.isParty(ctx, esc, caller)
	}
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.logger.Warn("Escrow action denied",
			"escrow_id", escrowID,
			"action", action,
			"caller", caller,
		)
		return nil, errNotParty
	}
	return esc, nil
}

// CreateEscrow opens an escrow paid by the caller.
func (s *EscrowService) CreateEscrow(ctx context.Context, req *connect.Request[api.CreateEscrowRequest]) (*connect.Response[api.CreateEscrowResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}

	esc, err := s.orchestrator.CreateEscrow(ctx, validation.EscrowRequest{
		Payer:       caller,
		Beneficiary: req.Msg.Beneficiary,
		SplitID:     req.Msg.SplitID,
		Amount:      amount,
		Token:       req.Msg.Token,
	})
	if err != nil {
		s.logger.Warn("CreateEscrow failed", "payer", caller, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.CreateEscrowResponse{Escrow: toAPIEscrow(esc)}), nil
}

// FundEscrow marks the caller's escrow as funded.
func (s *EscrowService) FundEscrow(ctx context.Context, req *connect.Request[api.FundEscrowRequest]) (*connect.Response[api.FundEscrowResponse], error) {
	esc, err := s.transition(ctx, req.Msg.EscrowID, req.Msg.ExpectedVersion, "fund", s.orchestrator.Fund)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.FundEscrowResponse{Escrow: toAPIEscrow(esc)}), nil
}

// DisputeEscrow freezes a funded escrow. Any party may dispute.
func (s *EscrowService) DisputeEscrow(ctx context.Context, req *connect.Request[api.DisputeEscrowRequest]) (*connect.Response[api.DisputeEscrowResponse], error) {
	esc, err := s.transition(ctx, req.Msg.EscrowID, req.Msg.ExpectedVersion, "dispute", s.orchestrator.Dispute)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.DisputeEscrowResponse{Escrow: toAPIEscrow(esc)}), nil
}

// ResolveEscrow closes a disputed escrow without moving funds.
func (s *EscrowService) ResolveEscrow(ctx context.Context, req *connect.Request[api.ResolveEscrowRequest]) (*connect.Response[api.ResolveEscrowResponse], error) {
	esc, err := s.transition(ctx, req.Msg.EscrowID, req.Msg.ExpectedVersion, "resolve", s.orchestrator.Resolve)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.ResolveEscrowResponse{Escrow: toAPIEscrow(esc)}), nil
}

func (s *EscrowService) transition(
	ctx context.Context,
	escrowID string,
	expectedVersion uint64,
	action string,
	apply func(context.Context, string, uint64) (*models.Escrow, error),
) (*models.Escrow, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, escrowID, caller, action); err != nil {
		return nil, toConnectError(err)
	}
	esc, err := apply(ctx, escrowID, expectedVersion)
	if err != nil {
		s.logger.Warn("Escrow transition failed",
			"escrow_id", escrowID,
			"action", action,
			"expected_version", expectedVersion,
			"error", err,
		)
		return nil, toConnectError(err)
	}
	return esc, nil
}

// ReleaseEscrow distributes the escrow to its beneficiary or split. The payer
// approves the release.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, req *connect.Request[api.ReleaseEscrowRequest]) (*connect.Response[api.ReleaseEscrowResponse], error) {
	rec, esc, err := s.settle(ctx, req.Msg.EscrowID, req.Msg.ExpectedVersion, "release", s.orchestrator.Release)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.ReleaseEscrowResponse{Settlement: rec, Escrow: esc}), nil
}

// RefundEscrow returns the escrow to its payer.
func (s *EscrowService) RefundEscrow(ctx context.Context, req *connect.Request[api.RefundEscrowRequest]) (*connect.Response[api.RefundEscrowResponse], error) {
	rec, esc, err := s.settle(ctx, req.Msg.EscrowID, req.Msg.ExpectedVersion, "refund", s.orchestrator.Refund)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.RefundEscrowResponse{Settlement: rec, Escrow: esc}), nil
}

// settle runs a release or refund. A failed settlement is returned as a
// record, not an error.
func (s *EscrowService) settle(
	ctx context.Context,
	escrowID string,
	expectedVersion uint64,
	action string,
	apply func(context.Context, string, uint64) (*models.SettlementRecord, error),
) (*api.Settlement, *api.Escrow, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.authorize(ctx, escrowID, caller, action); err != nil {
		return nil, nil, toConnectError(err)
	}

	rec, err := apply(ctx, escrowID, expectedVersion)
	if err != nil {
		s.logger.Warn("Settlement rejected",
			"escrow_id", escrowID,
			"action", action,
			"expected_version", expectedVersion,
			"error", err,
		)
		return nil, nil, toConnectError(err)
	}

	esc, err := s.orchestrator.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, nil, toConnectError(err)
	}
	return toAPISettlement(rec), toAPIEscrow(esc), nil
}

// GetEscrow returns an escrow and its settlement history to a party.
func (s *EscrowService) GetEscrow(ctx context.Context, req *connect.Request[api.GetEscrowRequest]) (*connect.Response[api.GetEscrowResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	esc, err := s.authorize(ctx, req.Msg.EscrowID, caller, "get")
	if err != nil {
		return nil, toConnectError(err)
	}

	records, err := s.orchestrator.ListSettlements(ctx, esc.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	settlements := make([]*api.Settlement, len(records))
	for i, rec := range records {
		settlements[i] = toAPISettlement(rec)
	}
	return connect.NewResponse(&api.GetEscrowResponse{
		Escrow:      toAPIEscrow(esc),
		Settlements: settlements,
	}), nil
}

// ListMyEscrows returns escrows where the caller is payer or beneficiary,
// newest first.
func (s *EscrowService) ListMyEscrows(ctx context.Context, req *connect.Request[api.ListMyEscrowsRequest]) (*connect.Response[api.ListMyEscrowsResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	escrows, err := s.orchestrator.ListEscrowsByUser(ctx, caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	s.logger.Debug("Listed escrows", "address", caller, "count", len(escrows))
	return connect.NewResponse(&api.ListMyEscrowsResponse{Escrows: toAPIEscrows(escrows)}), nil
}

// GetSettlement returns a settlement record to a party of its escrow.
func (s *EscrowService) GetSettlement(ctx context.Context, req *connect.Request[api.GetSettlementRequest]) (*connect.Response[api.GetSettlementResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.orchestrator.GetSettlement(ctx, req.Msg.SettlementID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if _, err := s.authorize(ctx, rec.EscrowID, caller, "get"); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetSettlementResponse{Settlement: toAPISettlement(rec)}), nil
}
