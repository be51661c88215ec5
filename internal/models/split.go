package models

import "github.com/mmynk/paysplit/internal/money"

// SplitStatus is the lifecycle state of a split.
type SplitStatus string

const (
	// SplitActive splits accept new distributions.
	SplitActive SplitStatus = "active"
	// SplitInactive is terminal. Splits are deactivated, never deleted.
	SplitInactive SplitStatus = "inactive"
)

// Split divides any amount routed to it among its recipients.
type Split struct {
	// ID is the unique identifier for the split (UUID format).
	ID string

	// Owner is the address that created the split. Only the owner may deactivate it.
	Owner string

	// Name is an optional human-readable label.
	Name string

	// Recipients are ordered; the order is part of the distribution result.
	// Shares are basis points and sum to exactly 10000.
	Recipients []Recipient

	// Status is active until the owner deactivates the split.
	Status SplitStatus

	// TotalProcessed is the running total of distributable amounts settled through the split.
	TotalProcessed money.TokenAmount

	// Version increments on every mutation.
	Version uint64

	// CreatedAt is the Unix timestamp when the split was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last mutation.
	UpdatedAt int64
}

// Recipient is one payee of a split.
type Recipient struct {
	Address string
	Share   uint32 // basis points
}

// IsActive reports whether the split accepts distributions.
func (s *Split) IsActive() bool {
	return s.Status == SplitActive
}

// Clone returns a deep copy of the split.
func (s *Split) Clone() *Split {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Recipients = append([]Recipient(nil), s.Recipients...)
	return &clone
}
