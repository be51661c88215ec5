package calculator

import (
	"fmt"
	"sort"

	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/validation"
)

// share is one recipient's truncated portion and the fractional part the
// truncation dropped, scaled by 10000.
type share struct {
	index    int
	amount   money.TokenAmount
	fraction uint64
}

// Distribute divides amount among recipients by their basis-point shares.
//
// Algorithm (largest remainder):
//   - raw_i = floor(amount × share_i / 10000)
//   - remainder = amount − Σ raw_i, always smaller than the recipient count
//   - hand out the remainder one minor unit at a time, largest truncated
//     fraction first, ties broken by the lowest recipient index
//
// The returned instructions follow recipient order and their amounts sum to
// exactly amount. Identical inputs always produce identical output.
func Distribute(amount money.TokenAmount, token string, recipients []models.Recipient) ([]models.TransferInstruction, error) {
	if err := validation.ValidateShares(recipients); err != nil {
		return nil, err
	}

	shares := make([]share, len(recipients))
	distributed := money.Zero()
	for i, r := range recipients {
		raw, fraction, err := amount.MulDivBasisPoints(uint64(r.Share))
		if err != nil {
			return nil, fmt.Errorf("failed to compute share for recipient %d: %w", i, err)
		}
		shares[i] = share{index: i, amount: raw, fraction: fraction}
		if distributed, err = distributed.Add(raw); err != nil {
			return nil, err
		}
	}

	remainder, err := amount.Sub(distributed)
	if err != nil {
		return nil, err
	}

	if !remainder.IsZero() {
		order := make([]int, len(shares))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			sa, sb := shares[order[a]], shares[order[b]]
			if sa.fraction != sb.fraction {
				return sa.fraction > sb.fraction
			}
			return sa.index < sb.index
		})

		// remainder < len(recipients), so one pass over order is enough.
		for _, idx := range order {
			if remainder.IsZero() {
				break
			}
			if shares[idx].amount, err = shares[idx].amount.AddUnit(); err != nil {
				return nil, err
			}
			if remainder, err = remainder.Sub(money.NewAmount(1)); err != nil {
				return nil, err
			}
		}
		if !remainder.IsZero() {
			return nil, fmt.Errorf("calculator: %s units left after redistribution", remainder)
		}
	}

	instructions := make([]models.TransferInstruction, len(recipients))
	for i, r := range recipients {
		instructions[i] = models.TransferInstruction{
			Sequence:  i,
			Recipient: r.Address,
			Amount:    shares[i].amount,
			Token:     token,
		}
	}
	return instructions, nil
}

// Total sums the amounts of instructions.
func Total(instructions []models.TransferInstruction) (money.TokenAmount, error) {
	total := money.Zero()
	for _, in := range instructions {
		var err error
		if total, err = total.Add(in.Amount); err != nil {
			return money.TokenAmount{}, err
		}
	}
	return total, nil
}
