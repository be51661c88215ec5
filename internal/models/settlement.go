package models

import (
	"fmt"

	"github.com/mmynk/paysplit/internal/money"
)

// SettlementAction is the escrow decision a settlement carries out.
type SettlementAction string

const (
	ActionRelease SettlementAction = "release"
	ActionRefund  SettlementAction = "refund"
)

// SettlementOutcome is the final result of a settlement attempt.
type SettlementOutcome string

const (
	OutcomeCompleted SettlementOutcome = "completed"
	OutcomeFailed    SettlementOutcome = "failed"
)

// TransferInstruction is a single transfer handed to the chain adapter.
type TransferInstruction struct {
	Sequence  int
	Recipient string
	Amount    money.TokenAmount
	Token     string
}

// SettlementRecord is the audit record of one release or refund attempt.
// Records are appended and never modified.
type SettlementRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string

	EscrowID string

	// SplitID is set when the escrow released through a split.
	SplitID string

	Action SettlementAction

	// IdempotencyKey identifies the escrow version the attempt acted on.
	IdempotencyKey string

	// Attempt numbers retries of the same key, starting at 1.
	Attempt int

	Instructions []TransferInstruction

	// Gross is the escrow amount before withholding.
	Gross money.TokenAmount

	FeeWithheld       money.TokenAmount
	GasBufferWithheld money.TokenAmount

	// Distributable is Gross minus withholdings and equals the sum of Instructions.
	Distributable money.TokenAmount

	Outcome SettlementOutcome

	// FailureReason explains a failed outcome.
	FailureReason string

	// TransferHandles are the chain adapter handles, in submission order.
	TransferHandles []string

	// ConfirmedSequences lists the instructions whose transfers confirmed,
	// including those confirmed by earlier attempts with the same key.
	ConfirmedSequences []int

	CreatedAt int64
}

// Completed reports whether the settlement moved the funds.
func (r *SettlementRecord) Completed() bool {
	return r != nil && r.Outcome == OutcomeCompleted
}

// IdempotencyKey identifies a settlement attempt on one escrow version.
func IdempotencyKey(escrowID string, version uint64, action SettlementAction) string {
	return fmt.Sprintf("%s:%d:%s", escrowID, version, action)
}
