package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/paysplit/internal/models"
)

const escrowColumns = `id, payer, beneficiary, split_id, amount, token, state, version, created_at, funded_at, resolved_at`

// CreateEscrow persists a new escrow.
func (s *SQLiteStore) CreateEscrow(ctx context.Context, esc *models.Escrow) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escrows (`+escrowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		esc.ID, esc.Payer, nullable(esc.Beneficiary), nullable(esc.SplitID), esc.Amount.String(),
		esc.Token, string(esc.State), esc.Version, esc.CreatedAt, esc.FundedAt, esc.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escrow: %w", err)
	}
	return nil
}

// GetEscrow retrieves an escrow by ID.
func (s *SQLiteStore) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = ?`, escrowID)
	esc, err := scanEscrow(row)
	if err != nil {
		return nil, notFound(err, "escrow", escrowID)
	}
	return esc, nil
}

// ListEscrowsByUser retrieves escrows where address is payer or beneficiary, newest first.
func (s *SQLiteStore) ListEscrowsByUser(ctx context.Context, address string) ([]*models.Escrow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows
		 WHERE payer = ? OR beneficiary = ?
		 ORDER BY created_at DESC, rowid DESC`,
		address, address,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows by user: %w", err)
	}
	defer rows.Close()

	var escrows []*models.Escrow
	for rows.Next() {
		esc, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow: %w", err)
		}
		escrows = append(escrows, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escrows: %w", err)
	}

	return escrows, nil
}

// UpdateEscrow writes the escrow if the stored version matches expectedVersion.
func (s *SQLiteStore) UpdateEscrow(ctx context.Context, esc *models.Escrow, expectedVersion uint64) error {
	return updateEscrow(ctx, s.db, esc, expectedVersion)
}

func updateEscrow(ctx context.Context, q queryer, esc *models.Escrow, expectedVersion uint64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE escrows SET state = ?, version = ?, funded_at = ?, resolved_at = ?
		 WHERE id = ? AND version = ?`,
		string(esc.State), esc.Version, esc.FundedAt, esc.ResolvedAt,
		esc.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update escrow: %w", err)
	}
	return checkVersioned(ctx, q, res, "escrow", "escrows", esc.ID, expectedVersion)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (*models.Escrow, error) {
	esc := &models.Escrow{}
	var beneficiary, splitID sql.NullString
	var amount, state string
	err := row.Scan(&esc.ID, &esc.Payer, &beneficiary, &splitID, &amount, &esc.Token,
		&state, &esc.Version, &esc.CreatedAt, &esc.FundedAt, &esc.ResolvedAt)
	if err != nil {
		return nil, err
	}
	esc.Beneficiary = beneficiary.String
	esc.SplitID = splitID.String
	esc.State = models.EscrowState(state)
	if esc.Amount, err = parseAmount("amount", amount); err != nil {
		return nil, err
	}
	return esc, nil
}
