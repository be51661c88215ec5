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

// CreateSettlement appends a settlement record.
func (s *BoltStore) CreateSettlement(_ context.Context, rec *models.SettlementRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return insertSettlement(tx, rec)
	})
}

// CommitSettlement transitions the escrow, appends the record and bumps the
// split counter in one write transaction.
func (s *BoltStore) CommitSettlement(_ context.Context, rec *models.SettlementRecord, esc *models.Escrow, expectedVersion uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := updateEscrow(tx, esc, expectedVersion); err != nil {
			return err
		}
		if err := insertSettlement(tx, rec); err != nil {
			return err
		}
		if rec.SplitID == "" || !rec.Completed() {
			return nil
		}

		var split models.Split
		if err := get(tx.Bucket(bucketSplits), "split", rec.SplitID, &split); err != nil {
			return err
		}
		total, err := split.TotalProcessed.Add(rec.Distributable)
		if err != nil {
			return fmt.Errorf("failed to add to split total: %w", err)
		}
		expected := split.Version
		split.TotalProcessed = total
		split.Version++
		split.UpdatedAt = rec.CreatedAt
		return updateSplit(tx, &split, expected)
	})
}

func insertSettlement(tx *bbolt.Tx, rec *models.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	byKey := tx.Bucket(bucketSettlementsByKey)
	keyIdx := indexKey(rec.IdempotencyKey, uint64(rec.Attempt))
	if byKey.Get(keyIdx) != nil {
		return fmt.Errorf("settlement %s attempt %d: %w", rec.IdempotencyKey, rec.Attempt, storage.ErrAlreadyExists)
	}
	completed := tx.Bucket(bucketCompletedByEscrow)
	if rec.Completed() && completed.Get([]byte(rec.EscrowID)) != nil {
		return fmt.Errorf("completed settlement for escrow %s: %w", rec.EscrowID, storage.ErrAlreadyExists)
	}

	if err := put(tx.Bucket(bucketSettlements), rec.ID, rec); err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	if err := byKey.Put(keyIdx, []byte(rec.ID)); err != nil {
		return err
	}

	byEscrow := tx.Bucket(bucketSettlementsByEsc)
	seq, err := byEscrow.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate index sequence: %w", err)
	}
	if err := byEscrow.Put(indexKey(rec.EscrowID, seq), []byte(rec.ID)); err != nil {
		return err
	}
	if rec.Completed() {
		return completed.Put([]byte(rec.EscrowID), []byte(rec.ID))
	}
	return nil
}

// GetSettlement retrieves a settlement record by ID.
func (s *BoltStore) GetSettlement(_ context.Context, settlementID string) (*models.SettlementRecord, error) {
	var rec models.SettlementRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketSettlements), "settlement", settlementID, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetLatestSettlementByKey returns the highest attempt recorded for key.
func (s *BoltStore) GetLatestSettlementByKey(_ context.Context, key string) (*models.SettlementRecord, error) {
	var rec *models.SettlementRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var id []byte
		err := scanPrefixReverse(tx.Bucket(bucketSettlementsByKey), key, func(v []byte) error {
			if id == nil {
				id = v
			}
			return nil
		})
		if err != nil {
			return err
		}
		if id == nil {
			return &storage.NotFoundError{Entity: "settlement", ID: key}
		}
		rec = &models.SettlementRecord{}
		return get(tx.Bucket(bucketSettlements), "settlement", string(id), rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetCompletedSettlement returns the completed record for an escrow.
func (s *BoltStore) GetCompletedSettlement(_ context.Context, escrowID string) (*models.SettlementRecord, error) {
	var rec models.SettlementRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketCompletedByEscrow).Get([]byte(escrowID))
		if id == nil {
			return &storage.NotFoundError{Entity: "completed settlement", ID: escrowID}
		}
		return get(tx.Bucket(bucketSettlements), "settlement", string(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSettlementsByEscrow returns all attempts for an escrow, oldest first.
func (s *BoltStore) ListSettlementsByEscrow(_ context.Context, escrowID string) ([]*models.SettlementRecord, error) {
	var records []*models.SettlementRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSettlements)
		return scanPrefix(tx.Bucket(bucketSettlementsByEsc), escrowID, func(id []byte) error {
			rec := &models.SettlementRecord{}
			if err := json.Unmarshal(b.Get(id), rec); err != nil {
				return fmt.Errorf("decode settlement %s: %w", id, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by escrow: %w", err)
	}
	return records, nil
}
