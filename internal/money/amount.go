// Package money implements TokenAmount, an exact amount of token minor units.
//
// Amounts are unsigned 256-bit integers. There is no floating point anywhere in
// this package; every operation that could lose or invent a unit either reports
// the truncation remainder to the caller or fails with an *ArithmeticError.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// BasisPointsDenominator is the number of basis points in 100%.
const BasisPointsDenominator = 10_000

var bpsDenominator = uint256.NewInt(BasisPointsDenominator)

// TokenAmount is an amount of minor units (wei, satoshi, cents...).
// The zero value is a valid zero amount.
type TokenAmount struct {
	v uint256.Int
}

// Zero returns a zero amount.
func Zero() TokenAmount { return TokenAmount{} }

// NewAmount returns an amount of n minor units.
func NewAmount(n uint64) TokenAmount {
	var a TokenAmount
	a.v.SetUint64(n)
	return a
}

// Parse reads a base-10 amount of minor units.
func Parse(s string) (TokenAmount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return TokenAmount{}, fmt.Errorf("money: empty amount")
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return TokenAmount{v: *v}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) TokenAmount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base-10 representation.
func (a TokenAmount) String() string {
	return a.v.Dec()
}

// IsZero reports whether the amount is zero.
func (a TokenAmount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1 when a is less than, equal to or greater than b.
func (a TokenAmount) Cmp(b TokenAmount) int {
	return a.v.Cmp(&b.v)
}

// Equal reports whether a and b are the same amount.
func (a TokenAmount) Equal(b TokenAmount) bool {
	return a.v.Eq(&b.v)
}

// Add returns a+b.
func (a TokenAmount) Add(b TokenAmount) (TokenAmount, error) {
	var out TokenAmount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return TokenAmount{}, newArithmeticError("add", a, b, ErrOverflow)
	}
	return out, nil
}

// Sub returns a-b. A negative result fails with an *ArithmeticError.
func (a TokenAmount) Sub(b TokenAmount) (TokenAmount, error) {
	var out TokenAmount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return TokenAmount{}, newArithmeticError("sub", a, b, ErrUnderflow)
	}
	return out, nil
}

// AddUnit returns a+1.
func (a TokenAmount) AddUnit() (TokenAmount, error) {
	return a.Add(NewAmount(1))
}

// MulDivBasisPoints returns floor(a * bps / 10000) together with the truncated
// part of the division, (a * bps) mod 10000. The remainder is what callers
// redistribute; it is never dropped here.
func (a TokenAmount) MulDivBasisPoints(bps uint64) (TokenAmount, uint64, error) {
	var product uint256.Int
	if _, overflow := product.MulOverflow(&a.v, uint256.NewInt(bps)); overflow {
		return TokenAmount{}, 0, newArithmeticError("mul", a, NewAmount(bps), ErrOverflow)
	}
	var quotient, remainder uint256.Int
	quotient.DivMod(&product, bpsDenominator, &remainder)
	return TokenAmount{v: quotient}, remainder.Uint64(), nil
}

// Sum adds every amount in amounts.
func Sum(amounts ...TokenAmount) (TokenAmount, error) {
	total := Zero()
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return TokenAmount{}, err
		}
	}
	return total, nil
}

// MarshalJSON encodes the amount as a decimal string so values above 2^53
// survive JavaScript clients.
func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *TokenAmount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Zero()
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
