// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/paysplit/internal/models"
)

// SplitStore persists splits.
type SplitStore interface {
	// CreateSplit persists a new split. ID and timestamps are assigned when empty.
	CreateSplit(ctx context.Context, split *models.Split) error

	// GetSplit retrieves a split by its ID.
	// Returns a *NotFoundError if the split does not exist.
	GetSplit(ctx context.Context, splitID string) (*models.Split, error)

	// UpdateSplit overwrites the mutable fields of a split (status, total processed,
	// version, updated_at) provided the stored version equals expectedVersion.
	// Returns a *VersionConflictError otherwise.
	UpdateSplit(ctx context.Context, split *models.Split, expectedVersion uint64) error
}

// EscrowStore persists escrows.
type EscrowStore interface {
	// CreateEscrow persists a new escrow. ID and CreatedAt are assigned when empty.
	CreateEscrow(ctx context.Context, esc *models.Escrow) error

	// GetEscrow retrieves an escrow by its ID.
	GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error)

	// ListEscrowsByUser returns the escrows where address is payer or
	// beneficiary, newest first.
	ListEscrowsByUser(ctx context.Context, address string) ([]*models.Escrow, error)

	// UpdateEscrow writes esc provided the stored version equals expectedVersion.
	UpdateEscrow(ctx context.Context, esc *models.Escrow, expectedVersion uint64) error
}

// SettlementStore persists the append-only settlement log.
type SettlementStore interface {
	// CreateSettlement appends a record without touching the escrow.
	// Used for failed attempts.
	CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error

	// CommitSettlement atomically writes the transitioned escrow (guarded by
	// expectedVersion), appends rec and, when rec.SplitID is set, adds
	// rec.Distributable to the split's running total.
	CommitSettlement(ctx context.Context, rec *models.SettlementRecord, esc *models.Escrow, expectedVersion uint64) error

	// GetSettlement retrieves a record by its ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.SettlementRecord, error)

	// GetLatestSettlementByKey returns the record with the highest attempt for
	// an idempotency key.
	GetLatestSettlementByKey(ctx context.Context, key string) (*models.SettlementRecord, error)

	// GetCompletedSettlement returns the completed record of an escrow, if any.
	GetCompletedSettlement(ctx context.Context, escrowID string) (*models.SettlementRecord, error)

	// ListSettlementsByEscrow returns every attempt for an escrow, oldest first.
	ListSettlementsByEscrow(ctx context.Context, escrowID string) ([]*models.SettlementRecord, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Store defines the interface for all storage operations.
// This abstraction allows swapping storage backends (SQLite, bbolt)
// without changing the service layer.
type Store interface {
	SplitStore
	EscrowStore
	SettlementStore
	UserStore

	// Close releases any resources held by the store.
	Close() error
}
