package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/storage"
)

const settlementColumns = `id, escrow_id, split_id, action, idempotency_key, attempt, gross,
	fee_withheld, gas_buffer_withheld, distributable, outcome, failure_reason, transfer_handles, confirmed_sequences, created_at`

// CreateSettlement appends a settlement record and its transfers.
func (s *SQLiteStore) CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertSettlement(ctx, tx, rec)
	})
}

// CommitSettlement transitions the escrow, appends the record and bumps the
// split counter in one transaction.
func (s *SQLiteStore) CommitSettlement(ctx context.Context, rec *models.SettlementRecord, esc *models.Escrow, expectedVersion uint64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateEscrow(ctx, tx, esc, expectedVersion); err != nil {
			return err
		}
		if err := insertSettlement(ctx, tx, rec); err != nil {
			return err
		}
		if rec.SplitID == "" || !rec.Completed() {
			return nil
		}

		split, err := getSplit(ctx, tx, rec.SplitID)
		if err != nil {
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
		return updateSplit(ctx, tx, split, expected)
	})
}

func insertSettlement(ctx context.Context, tx *sql.Tx, rec *models.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	handles, err := encodeList(rec.TransferHandles)
	if err != nil {
		return fmt.Errorf("failed to encode transfer handles: %w", err)
	}
	confirmed, err := encodeList(rec.ConfirmedSequences)
	if err != nil {
		return fmt.Errorf("failed to encode confirmed sequences: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlements (`+settlementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EscrowID, nullable(rec.SplitID), string(rec.Action), rec.IdempotencyKey, rec.Attempt,
		rec.Gross.String(), rec.FeeWithheld.String(), rec.GasBufferWithheld.String(), rec.Distributable.String(),
		string(rec.Outcome), rec.FailureReason, handles, confirmed, rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("settlement %s attempt %d: %w", rec.IdempotencyKey, rec.Attempt, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	for _, in := range rec.Instructions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO settlement_transfers (settlement_id, sequence, recipient, amount, token)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.ID, in.Sequence, in.Recipient, in.Amount.String(), in.Token,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
	}
	return nil
}

// GetSettlement retrieves a settlement record by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, settlementID string) (*models.SettlementRecord, error) {
	return s.getSettlementWhere(ctx, "settlement", settlementID, "id = ?", settlementID)
}

// GetLatestSettlementByKey returns the highest attempt recorded for key.
func (s *SQLiteStore) GetLatestSettlementByKey(ctx context.Context, key string) (*models.SettlementRecord, error) {
	return s.getSettlementWhere(ctx, "settlement", key,
		"idempotency_key = ? ORDER BY attempt DESC LIMIT 1", key)
}

// GetCompletedSettlement returns the completed record for an escrow.
func (s *SQLiteStore) GetCompletedSettlement(ctx context.Context, escrowID string) (*models.SettlementRecord, error) {
	return s.getSettlementWhere(ctx, "completed settlement", escrowID,
		"escrow_id = ? AND outcome = ?", escrowID, string(models.OutcomeCompleted))
}

// ListSettlementsByEscrow returns all attempts for an escrow, oldest first.
func (s *SQLiteStore) ListSettlementsByEscrow(ctx context.Context, escrowID string) ([]*models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE escrow_id = ? ORDER BY created_at, attempt, rowid`,
		escrowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by escrow: %w", err)
	}

	var records []*models.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	// The single connection must be free before loading transfers.
	rows.Close()

	for _, rec := range records {
		if err := s.loadTransfers(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) getSettlementWhere(ctx context.Context, entity, id, where string, args ...any) (*models.SettlementRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE `+where, args...)
	rec, err := scanSettlement(row)
	if err != nil {
		return nil, notFound(err, entity, id)
	}
	if err := s.loadTransfers(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) loadTransfers(ctx context.Context, rec *models.SettlementRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, recipient, amount, token FROM settlement_transfers
		 WHERE settlement_id = ? ORDER BY sequence`,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get transfers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var in models.TransferInstruction
		var amount string
		if err := rows.Scan(&in.Sequence, &in.Recipient, &amount, &in.Token); err != nil {
			return fmt.Errorf("failed to scan transfer: %w", err)
		}
		if in.Amount, err = parseAmount("transfer amount", amount); err != nil {
			return err
		}
		rec.Instructions = append(rec.Instructions, in)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return nil
}

func scanSettlement(row rowScanner) (*models.SettlementRecord, error) {
	rec := &models.SettlementRecord{}
	var splitID sql.NullString
	var action, outcome, handles, confirmed string
	var gross, fee, buffer, distributable string
	err := row.Scan(&rec.ID, &rec.EscrowID, &splitID, &action, &rec.IdempotencyKey, &rec.Attempt,
		&gross, &fee, &buffer, &distributable, &outcome, &rec.FailureReason, &handles, &confirmed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.SplitID = splitID.String
	rec.Action = models.SettlementAction(action)
	rec.Outcome = models.SettlementOutcome(outcome)

	if rec.Gross, err = parseAmount("gross", gross); err != nil {
		return nil, err
	}
	if rec.FeeWithheld, err = parseAmount("fee_withheld", fee); err != nil {
		return nil, err
	}
	if rec.GasBufferWithheld, err = parseAmount("gas_buffer_withheld", buffer); err != nil {
		return nil, err
	}
	if rec.Distributable, err = parseAmount("distributable", distributable); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(handles), &rec.TransferHandles); err != nil {
		return nil, fmt.Errorf("failed to decode transfer handles: %w", err)
	}
	if err := json.Unmarshal([]byte(confirmed), &rec.ConfirmedSequences); err != nil {
		return nil, fmt.Errorf("failed to decode confirmed sequences: %w", err)
	}
	return rec, nil
}

// encodeList stores a nil slice as an empty JSON array.
func encodeList[T any](list []T) (string, error) {
	if list == nil {
		return "[]", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
