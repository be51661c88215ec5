// Package calculator turns an amount into exact per-recipient transfers.
package calculator

import (
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
)

// Calculator exposes Distribute and Withhold behind a value so callers can
// depend on an interface.
type Calculator struct{}

// New returns a Calculator.
func New() Calculator { return Calculator{} }

// Distribute calls the package-level Distribute.
func (Calculator) Distribute(amount money.TokenAmount, token string, recipients []models.Recipient) ([]models.TransferInstruction, error) {
	return Distribute(amount, token, recipients)
}

// Withhold calls the package-level Withhold.
func (Calculator) Withhold(gross money.TokenAmount, feeBps, gasBufferBps uint32) (Withholding, error) {
	return Withhold(gross, feeBps, gasBufferBps)
}
