package escrow

import (
	"fmt"

	"github.com/mmynk/paysplit/internal/models"
)

// InvalidTransitionError reports a requested edge that is not in the lifecycle.
type InvalidTransitionError struct {
	ID   string
	From models.EscrowState
	To   models.EscrowState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("escrow %s: cannot transition from %s to %s", e.ID, e.From, e.To)
}

// StateConflictError reports a transition request carrying a stale version.
// Callers re-read the escrow and retry with the current version.
type StateConflictError struct {
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *StateConflictError) Error() string {
	if e.Expected == 0 && e.Actual == 0 {
		return fmt.Sprintf("escrow %s: concurrent modification in progress", e.ID)
	}
	return fmt.Sprintf("escrow %s: version conflict (expected %d, current %d)", e.ID, e.Expected, e.Actual)
}
