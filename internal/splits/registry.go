// Package splits manages split definitions: creation with validation,
// lookup, deactivation by the owner and distribution previews.
package splits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/paysplit/internal/calculator"
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
)

// ErrNotOwner is returned when someone other than the owner deactivates a split.
var ErrNotOwner = errors.New("splits: caller is not the split owner")

// StateConflictError reports a deactivation carrying a stale split version.
type StateConflictError struct {
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("split %s: version conflict (expected %d, current %d)", e.ID, e.Expected, e.Actual)
}

const maxNameLength = 128

// Registry creates and looks up splits.
type Registry struct {
	store        storage.SplitStore
	limits       validation.Limits
	feeBps       uint32
	gasBufferBps uint32
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithWithholding sets the fee and gas buffer applied by Preview.
func WithWithholding(feeBps, gasBufferBps uint32) Option {
	return func(r *Registry) {
		r.feeBps = feeBps
		r.gasBufferBps = gasBufferBps
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns a registry backed by store.
func NewRegistry(store storage.SplitStore, limits validation.Limits, opts ...Option) *Registry {
	r := &Registry{store: store, limits: limits, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates and persists a new active split owned by owner.
// Addresses are stored in checksum form.
func (r *Registry) Create(ctx context.Context, owner, name string, recipients []models.Recipient) (*models.Split, error) {
	normalized, err := r.normalize(owner, name, recipients)
	if err != nil {
		return nil, err
	}

	now := r.now().Unix()
	split := &models.Split{
		Owner:          normalized.owner,
		Name:           strings.TrimSpace(name),
		Recipients:     normalized.recipients,
		Status:         models.SplitActive,
		TotalProcessed: money.Zero(),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateSplit(ctx, split); err != nil {
		return nil, fmt.Errorf("failed to create split: %w", err)
	}

	r.logger.Info("Split created",
		"split_id", split.ID,
		"owner", split.Owner,
		"recipients", len(split.Recipients),
	)
	return split, nil
}

type normalizedSplit struct {
	owner      string
	recipients []models.Recipient
}

func (r *Registry) normalize(owner, name string, recipients []models.Recipient) (*normalizedSplit, error) {
	var violations []validation.Violation

	ownerAddr, err := validation.NormalizeAddress(owner)
	if err != nil {
		violations = append(violations, prefixed("owner", err)...)
	}
	if len(name) > maxNameLength {
		violations = append(violations, validation.Violation{
			Field:   "name",
			Message: fmt.Sprintf("name exceeds %d characters", maxNameLength),
		})
	}
	if err := validation.ValidateSplit(recipients, r.limits); err != nil {
		violations = append(violations, prefixed("", err)...)
	}
	if len(violations) > 0 {
		return nil, &validation.Error{Violations: violations}
	}

	out := make([]models.Recipient, len(recipients))
	for i, rc := range recipients {
		addr, err := validation.NormalizeAddress(rc.Address)
		if err != nil {
			return nil, err
		}
		out[i] = models.Recipient{Address: addr, Share: rc.Share}
	}
	return &normalizedSplit{owner: ownerAddr, recipients: out}, nil
}

func prefixed(prefix string, err error) []validation.Violation {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return []validation.Violation{{Field: prefix, Message: err.Error()}}
	}
	out := make([]validation.Violation, len(verr.Violations))
	for i, v := range verr.Violations {
		field := v.Field
		switch {
		case prefix == "":
		case field == "":
			field = prefix
		default:
			field = prefix + "." + field
		}
		out[i] = validation.Violation{Field: field, Message: v.Message}
	}
	return out
}

// Get returns a split by ID.
func (r *Registry) Get(ctx context.Context, id string) (*models.Split, error) {
	return r.store.GetSplit(ctx, id)
}

// Deactivate marks the split inactive. Only the owner may deactivate, and
// expectedVersion must match the stored version; an already inactive split
// is returned unchanged.
func (r *Registry) Deactivate(ctx context.Context, id, caller string, expectedVersion uint64) (*models.Split, error) {
	split, err := r.store.GetSplit(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(split.Owner, caller) {
		return nil, ErrNotOwner
	}
	if !split.IsActive() {
		return split, nil
	}
	if split.Version != expectedVersion {
		return nil, &StateConflictError{ID: id, Expected: expectedVersion, Actual: split.Version}
	}

	next := split.Clone()
	next.Status = models.SplitInactive
	next.Version++
	next.UpdatedAt = r.now().Unix()
	if err := r.store.UpdateSplit(ctx, next, expectedVersion); err != nil {
		var vc *storage.VersionConflictError
		if errors.As(err, &vc) {
			return nil, &StateConflictError{ID: id, Expected: vc.Expected, Actual: vc.Actual}
		}
		return nil, fmt.Errorf("failed to deactivate split: %w", err)
	}

	r.logger.Info("Split deactivated", "split_id", id, "owner", split.Owner)
	return next, nil
}

// PreviewRequest names either a stored split or an ad-hoc recipient list.
type PreviewRequest struct {
	SplitID    string
	Recipients []models.Recipient
	Amount     money.TokenAmount
	Token      string
}

// Preview is a distribution computed without moving funds.
type Preview struct {
	Withholding  calculator.Withholding
	Instructions []models.TransferInstruction
}

// Preview computes what a release of req.Amount would pay each recipient.
func (r *Registry) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	recipients := req.Recipients
	if req.SplitID != "" {
		split, err := r.store.GetSplit(ctx, req.SplitID)
		if err != nil {
			return nil, err
		}
		recipients = split.Recipients
	} else if err := validation.ValidateSplit(recipients, r.limits); err != nil {
		return nil, err
	}
	if err := validation.ValidateAmount(req.Amount, r.limits); err != nil {
		return nil, err
	}
	if err := validation.ValidateToken(req.Token); err != nil {
		return nil, err
	}

	w, err := calculator.Withhold(req.Amount, r.feeBps, r.gasBufferBps)
	if err != nil {
		return nil, err
	}
	instructions, err := calculator.Distribute(w.Distributable, req.Token, recipients)
	if err != nil {
		return nil, err
	}
	return &Preview{Withholding: w, Instructions: instructions}, nil
}
