package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
)

// CreateEscrow stores a new escrow and indexes it under its payer and beneficiary.
func (s *BoltStore) CreateEscrow(_ context.Context, esc *models.Escrow) error {
	if esc.ID == "" {
		esc.ID = uuid.New().String()
	}
	if esc.CreatedAt == 0 {
		esc.CreatedAt = time.Now().Unix()
	}
	if esc.Version == 0 {
		esc.Version = 1
	}
	if esc.State == "" {
		esc.State = models.EscrowCreated
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := put(tx.Bucket(bucketEscrows), esc.ID, esc); err != nil {
			return fmt.Errorf("failed to insert escrow: %w", err)
		}

		idx := tx.Bucket(bucketEscrowsByUser)
		seq, err := idx.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate index sequence: %w", err)
		}
		for _, addr := range parties(esc) {
			if err := idx.Put(indexKey(addr, uint64(esc.CreatedAt), seq), []byte(esc.ID)); err != nil {
				return fmt.Errorf("failed to index escrow: %w", err)
			}
		}
		return nil
	})
}

func parties(esc *models.Escrow) []string {
	if esc.Beneficiary == "" || esc.Beneficiary == esc.Payer {
		return []string{esc.Payer}
	}
	return []string{esc.Payer, esc.Beneficiary}
}

// GetEscrow retrieves an escrow by ID.
func (s *BoltStore) GetEscrow(_ context.Context, escrowID string) (*models.Escrow, error) {
	var esc models.Escrow
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketEscrows), "escrow", escrowID, &esc)
	})
	if err != nil {
		return nil, err
	}
	return &esc, nil
}

// ListEscrowsByUser returns escrows where address is a party, newest first.
func (s *BoltStore) ListEscrowsByUser(_ context.Context, address string) ([]*models.Escrow, error) {
	var escrows []*models.Escrow
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEscrows)
		return scanPrefixReverse(tx.Bucket(bucketEscrowsByUser), address, func(id []byte) error {
			data := b.Get(id)
			if data == nil {
				return nil
			}
			esc := &models.Escrow{}
			if err := json.Unmarshal(data, esc); err != nil {
				return fmt.Errorf("decode escrow %s: %w", id, err)
			}
			escrows = append(escrows, esc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows by user: %w", err)
	}
	return escrows, nil
}

// UpdateEscrow overwrites the escrow if the stored version matches.
func (s *BoltStore) UpdateEscrow(_ context.Context, esc *models.Escrow, expectedVersion uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return updateEscrow(tx, esc, expectedVersion)
	})
}

func updateEscrow(tx *bbolt.Tx, esc *models.Escrow, expectedVersion uint64) error {
	b := tx.Bucket(bucketEscrows)
	var current models.Escrow
	if err := get(b, "escrow", esc.ID, &current); err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return &storage.VersionConflictError{Entity: "escrow", ID: esc.ID, Expected: expectedVersion, Actual: current.Version}
	}
	current.State = esc.State
	current.Version = esc.Version
	current.FundedAt = esc.FundedAt
	current.ResolvedAt = esc.ResolvedAt
	return put(b, esc.ID, &current)
}
