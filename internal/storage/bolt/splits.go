package bolt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
)

// CreateSplit stores a new split.
func (s *BoltStore) CreateSplit(_ context.Context, split *models.Split) error {
	if split.ID == "" {
		split.ID = uuid.New().String()
	}
	if split.CreatedAt == 0 {
		split.CreatedAt = time.Now().Unix()
	}
	if split.UpdatedAt == 0 {
		split.UpdatedAt = split.CreatedAt
	}
	if split.Version == 0 {
		split.Version = 1
	}
	if split.Status == "" {
		split.Status = models.SplitActive
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketSplits), split.ID, split)
	})
}

// GetSplit retrieves a split by ID.
func (s *BoltStore) GetSplit(_ context.Context, splitID string) (*models.Split, error) {
	var split models.Split
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketSplits), "split", splitID, &split)
	})
	if err != nil {
		return nil, err
	}
	return &split, nil
}

// UpdateSplit overwrites the split if the stored version matches.
func (s *BoltStore) UpdateSplit(_ context.Context, split *models.Split, expectedVersion uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return updateSplit(tx, split, expectedVersion)
	})
}

func updateSplit(tx *bbolt.Tx, split *models.Split, expectedVersion uint64) error {
	b := tx.Bucket(bucketSplits)
	var current models.Split
	if err := get(b, "split", split.ID, &current); err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return &storage.VersionConflictError{Entity: "split", ID: split.ID, Expected: expectedVersion, Actual: current.Version}
	}
	// Recipients and ownership are immutable.
	current.Status = split.Status
	current.TotalProcessed = split.TotalProcessed
	current.Version = split.Version
	current.UpdatedAt = split.UpdatedAt
	return put(b, split.ID, &current)
}
