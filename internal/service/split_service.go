package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/splits"
	"github.com/mmynk/paysplit/pkg/api"
)

// SplitRegistry is the split operations the service exposes.
type SplitRegistry interface {
	Create(ctx context.Context, owner, name string, recipients []models.Recipient) (*models.Split, error)
	Get(ctx context.Context, id string) (*models.Split, error)
	Deactivate(ctx context.Context, id, caller string, expectedVersion uint64) (*models.Split, error)
	Preview(ctx context.Context, req splits.PreviewRequest) (*splits.Preview, error)
}

// SplitService implements the Connect SplitService.
type SplitService struct {
	registry SplitRegistry
	logger   *slog.Logger
}

var _ api.SplitServiceHandler = (*SplitService)(nil)

// NewSplitService creates a new SplitService backed by registry.
func NewSplitService(registry SplitRegistry, logger *slog.Logger) *SplitService {
	return &SplitService{registry: registry, logger: logger}
}

// CreateSplit stores a split owned by the caller.
func (s *SplitService) CreateSplit(ctx context.Context, req *connect.Request[api.CreateSplitRequest]) (*connect.Response[api.CreateSplitResponse], error) {
	owner, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("CreateSplit request received",
		"owner", owner,
		"recipients", len(req.Msg.Recipients),
	)

	split, err := s.registry.Create(ctx, owner, req.Msg.Name, fromAPIRecipients(req.Msg.Recipients))
	if err != nil {
		s.logger.Warn("CreateSplit failed", "owner", owner, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateSplitResponse{Split: toAPISplit(split)}), nil
}

// GetSplit retrieves a split by ID. Splits are public.
func (s *SplitService) GetSplit(ctx context.Context, req *connect.Request[api.GetSplitRequest]) (*connect.Response[api.GetSplitResponse], error) {
	split, err := s.registry.Get(ctx, req.Msg.SplitID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetSplitResponse{Split: toAPISplit(split)}), nil
}

// DeactivateSplit stops a split from accepting new distributions. Only the
// owner may deactivate it.
func (s *SplitService) DeactivateSplit(ctx context.Context, req *connect.Request[api.DeactivateSplitRequest]) (*connect.Response[api.DeactivateSplitResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	split, err := s.registry.Deactivate(ctx, req.Msg.SplitID, caller, req.Msg.ExpectedVersion)
	if err != nil {
		s.logger.Warn("DeactivateSplit failed", "split_id", req.Msg.SplitID, "caller", caller, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.DeactivateSplitResponse{Split: toAPISplit(split)}), nil
}

// PreviewDistribution computes a distribution without persisting anything.
func (s *SplitService) PreviewDistribution(ctx context.Context, req *connect.Request[api.PreviewDistributionRequest]) (*connect.Response[api.PreviewDistributionResponse], error) {
	amount, err := parseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}

	preview, err := s.registry.Preview(ctx, splits.PreviewRequest{
		SplitID:    req.Msg.SplitID,
		Recipients: fromAPIRecipients(req.Msg.Recipients),
		Amount:     amount,
		Token:      req.Msg.Token,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Debug("Distribution previewed",
		"split_id", req.Msg.SplitID,
		"amount", amount.String(),
		"distributable", preview.Withholding.Distributable.String(),
	)
	return connect.NewResponse(&api.PreviewDistributionResponse{
		Gross:         preview.Withholding.Gross.String(),
		Fee:           preview.Withholding.Fee.String(),
		GasBuffer:     preview.Withholding.GasBuffer.String(),
		Distributable: preview.Withholding.Distributable.String(),
		Transfers:     toAPITransfers(preview.Instructions),
	}), nil
}
