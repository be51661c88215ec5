package calculator

import (
	"fmt"

	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/validation"
)

// Withholding is the breakdown of a gross amount before distribution.
type Withholding struct {
	Gross         money.TokenAmount
	Fee           money.TokenAmount
	GasBuffer     money.TokenAmount
	Distributable money.TokenAmount
}

// Withhold computes the platform fee and the gas buffer on the gross amount and
// returns what is left to distribute.
//
// Both percentages are basis points applied to the gross amount, not chained:
// fee = floor(gross × feeBps / 10000), buffer = floor(gross × gasBufferBps / 10000),
// distributable = gross − fee − buffer. Truncated fractions stay in the
// distributable amount.
func Withhold(gross money.TokenAmount, feeBps, gasBufferBps uint32) (Withholding, error) {
	if uint64(feeBps)+uint64(gasBufferBps) > validation.TotalBasisPoints {
		return Withholding{}, validation.NewError("withholding",
			"fee %d bps and gas buffer %d bps exceed 100%%", feeBps, gasBufferBps)
	}

	fee, _, err := gross.MulDivBasisPoints(uint64(feeBps))
	if err != nil {
		return Withholding{}, fmt.Errorf("failed to compute fee: %w", err)
	}
	buffer, _, err := gross.MulDivBasisPoints(uint64(gasBufferBps))
	if err != nil {
		return Withholding{}, fmt.Errorf("failed to compute gas buffer: %w", err)
	}

	withheld, err := fee.Add(buffer)
	if err != nil {
		return Withholding{}, err
	}
	distributable, err := gross.Sub(withheld)
	if err != nil {
		return Withholding{}, err
	}

	return Withholding{
		Gross:         gross,
		Fee:           fee,
		GasBuffer:     buffer,
		Distributable: distributable,
	}, nil
}
