package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
)

// CreateSplit persists a new split and its recipients.
func (s *SQLiteStore) CreateSplit(ctx context.Context, split *models.Split) error {
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

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO splits (id, owner, name, status, total_processed, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			split.ID, split.Owner, split.Name, string(split.Status), split.TotalProcessed.String(),
			split.Version, split.CreatedAt, split.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}

		for i, r := range split.Recipients {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO split_recipients (split_id, position, address, share) VALUES (?, ?, ?, ?)",
				split.ID, i, r.Address, r.Share,
			)
			if err != nil {
				return fmt.Errorf("failed to insert recipient: %w", err)
			}
		}
		return nil
	})
}

// GetSplit retrieves a split by ID, recipients in their original order.
func (s *SQLiteStore) GetSplit(ctx context.Context, splitID string) (*models.Split, error) {
	return getSplit(ctx, s.db, splitID)
}

func getSplit(ctx context.Context, q queryer, splitID string) (*models.Split, error) {
	split := &models.Split{}
	var status, total string
	err := q.QueryRowContext(ctx,
		`SELECT id, owner, name, status, total_processed, version, created_at, updated_at
		 FROM splits WHERE id = ?`,
		splitID,
	).Scan(&split.ID, &split.Owner, &split.Name, &status, &total,
		&split.Version, &split.CreatedAt, &split.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "split", splitID)
	}
	split.Status = models.SplitStatus(status)
	if split.TotalProcessed, err = parseAmount("total_processed", total); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT address, share FROM split_recipients WHERE split_id = ? ORDER BY position",
		splitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.Address, &r.Share); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		split.Recipients = append(split.Recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return split, nil
}

// UpdateSplit writes the mutable split fields if the stored version matches.
func (s *SQLiteStore) UpdateSplit(ctx context.Context, split *models.Split, expectedVersion uint64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateSplit(ctx, tx, split, expectedVersion)
	})
}

func updateSplit(ctx context.Context, q queryer, split *models.Split, expectedVersion uint64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE splits SET status = ?, total_processed = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(split.Status), split.TotalProcessed.String(), split.Version, split.UpdatedAt,
		split.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update split: %w", err)
	}
	return checkVersioned(ctx, q, res, "split", "splits", split.ID, expectedVersion)
}

// checkVersioned turns a conditional update that matched no row into a
// not-found or version-conflict error.
func checkVersioned(ctx context.Context, q queryer, res sql.Result, entity, table, id string, expected uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check %s update: %w", entity, err)
	}
	if n == 1 {
		return nil
	}

	var actual uint64
	err = q.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE id = ?", id).Scan(&actual)
	if err != nil {
		return notFound(err, entity, id)
	}
	return &storage.VersionConflictError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}
