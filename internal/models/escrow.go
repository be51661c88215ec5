package models

import "github.com/mmynk/paysplit/internal/money"

// EscrowState is a node of the escrow lifecycle.
type EscrowState string

const (
	EscrowCreated  EscrowState = "created"  // funds not yet confirmed
	EscrowFunded   EscrowState = "funded"   // funds confirmed, awaiting decision
	EscrowReleased EscrowState = "released" // distributed to the beneficiary or split
	EscrowRefunded EscrowState = "refunded" // returned to the payer
	EscrowDisputed EscrowState = "disputed" // frozen pending external resolution
	EscrowResolved EscrowState = "resolved" // closed from disputed without a transfer
)

// Escrow holds an amount on behalf of a payer until it is released or refunded.
type Escrow struct {
	// ID is the unique identifier for the escrow (UUID format).
	ID string

	// Payer deposited the funds and receives them back on refund.
	Payer string

	// Beneficiary receives the funds on release. Empty when SplitID is set.
	Beneficiary string

	// SplitID routes the release through a split. Empty when Beneficiary is set.
	SplitID string

	Amount money.TokenAmount
	Token  string
	State  EscrowState

	// Version increments on every transition. Callers echo the version they
	// read when requesting a transition.
	Version uint64

	CreatedAt  int64
	FundedAt   int64 // 0 until funded
	ResolvedAt int64 // 0 until released, refunded or resolved
}

// Clone returns a copy of the escrow that callers may mutate freely.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// IsParty reports whether address is the payer or the beneficiary.
func (e *Escrow) IsParty(address string) bool {
	return address != "" && (address == e.Payer || address == e.Beneficiary)
}
