// Package escrow implements the escrow lifecycle state machine.
//
//	created ──► funded ──► released
//	              │  └───► refunded
//	              ▼
//	           disputed ──► released | refunded | resolved
//
// Every transition increments the escrow version and must present the
// version the caller observed.
package escrow

import (
	"github.com/mmynk/paysplit/internal/models"
)

var edges = map[models.EscrowState][]models.EscrowState{
	models.EscrowCreated:  {models.EscrowFunded},
	models.EscrowFunded:   {models.EscrowReleased, models.EscrowRefunded, models.EscrowDisputed},
	models.EscrowDisputed: {models.EscrowReleased, models.EscrowRefunded, models.EscrowResolved},
}

// CanTransition reports whether from→to is an allowed edge.
func CanTransition(from, to models.EscrowState) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edge leaves state.
func IsTerminal(state models.EscrowState) bool {
	return len(edges[state]) == 0
}

// TargetState maps a settlement action to the state it moves the escrow to.
func TargetState(action models.SettlementAction) models.EscrowState {
	if action == models.ActionRefund {
		return models.EscrowRefunded
	}
	return models.EscrowReleased
}

// IsSettled reports whether state already reflects action, so a repeated
// release or refund can be answered with the earlier result.
func IsSettled(state models.EscrowState, action models.SettlementAction) bool {
	return state == TargetState(action)
}

// Guard checks that esc may move to `to` given the version the caller read.
// The edge is checked before the version so an impossible request is reported
// as such even when it is also stale.
func Guard(esc *models.Escrow, to models.EscrowState, expectedVersion uint64) error {
	if !CanTransition(esc.State, to) {
		return &InvalidTransitionError{ID: esc.ID, From: esc.State, To: to}
	}
	if esc.Version != expectedVersion {
		return &StateConflictError{ID: esc.ID, Expected: expectedVersion, Actual: esc.Version}
	}
	return nil
}

// Transition returns a copy of esc moved to `to`, with the version incremented
// and the lifecycle timestamps stamped with now. esc itself is not modified.
func Transition(esc *models.Escrow, to models.EscrowState, expectedVersion uint64, now int64) (*models.Escrow, error) {
	if err := Guard(esc, to, expectedVersion); err != nil {
		return nil, err
	}
	next := esc.Clone()
	next.State = to
	next.Version++
	switch to {
	case models.EscrowFunded:
		next.FundedAt = now
	case models.EscrowReleased, models.EscrowRefunded, models.EscrowResolved:
		next.ResolvedAt = now
	}
	return next, nil
}

// Machine exposes the package functions behind a value so callers can depend
// on an interface.
type Machine struct{}

// NewMachine returns a Machine.
func NewMachine() Machine { return Machine{} }

// Guard calls the package-level Guard.
func (Machine) Guard(esc *models.Escrow, to models.EscrowState, expectedVersion uint64) error {
	return Guard(esc, to, expectedVersion)
}

// IsSettled calls the package-level IsSettled.
func (Machine) IsSettled(state models.EscrowState, action models.SettlementAction) bool {
	return IsSettled(state, action)
}

// Transition calls the package-level Transition.
func (Machine) Transition(esc *models.Escrow, to models.EscrowState, expectedVersion uint64, now int64) (*models.Escrow, error) {
	return Transition(esc, to, expectedVersion, now)
}
