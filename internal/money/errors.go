package money

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow indicates a result above 2^256-1.
	ErrOverflow = errors.New("money: overflow")

	// ErrUnderflow indicates a result below zero.
	ErrUnderflow = errors.New("money: underflow")
)

// ArithmeticError reports an amount operation whose exact result cannot be
// represented. It is an invariant violation, never a value to clamp.
type ArithmeticError struct {
	Op    string
	Left  string
	Right string
	Err   error
}

func newArithmeticError(op string, left, right TokenAmount, err error) *ArithmeticError {
	return &ArithmeticError{Op: op, Left: left.String(), Right: right.String(), Err: err}
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("%v: %s %s %s", e.Err, e.Left, e.Op, e.Right)
}

func (e *ArithmeticError) Unwrap() error { return e.Err }
