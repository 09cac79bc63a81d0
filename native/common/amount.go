package common

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	yserrors "yieldsplit/core/errors"
)

// maxAmount bounds every stored amount to the signed 128-bit range.
var maxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 127), uint256.NewInt(1))

// MaxAmount returns the largest amount a ledger will hold.
func MaxAmount() *big.Int {
	return maxAmount.ToBig()
}

// RequirePositive fails with ErrInvalidAmount unless v > 0.
func RequirePositive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("amount %s must be positive: %w", describe(v), yserrors.ErrInvalidAmount)
	}
	return checkBounds(v)
}

// RequireNonNegative fails with ErrInvalidAmount when v < 0.
func RequireNonNegative(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("amount %s must not be negative: %w", describe(v), yserrors.ErrInvalidAmount)
	}
	return checkBounds(v)
}

func checkBounds(v *big.Int) error {
	if _, err := toU256(v); err != nil {
		return err
	}
	return nil
}

// Add returns a+b, failing when the sum leaves the amount range.
func Add(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || sum.Gt(maxAmount) {
		return nil, fmt.Errorf("add %s + %s: %w", a, b, yserrors.ErrArithmeticOverflow)
	}
	return sum.ToBig(), nil
}

// Sub returns a-b, failing when b > a.
func Sub(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("sub %s - %s: %w", a, b, yserrors.ErrArithmeticOverflow)
	}
	return diff.ToBig(), nil
}

// Mul returns a*b, failing when the product leaves the amount range.
func Mul(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || product.Gt(maxAmount) {
		return nil, fmt.Errorf("mul %s * %s: %w", a, b, yserrors.ErrArithmeticOverflow)
	}
	return product.ToBig(), nil
}

// Div returns a/b truncated toward zero. Division by zero fails.
func Div(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	if y.IsZero() {
		return nil, fmt.Errorf("div %s / 0: %w", a, yserrors.ErrArithmeticOverflow)
	}
	return new(uint256.Int).Div(x, y).ToBig(), nil
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative: %w", v, yserrors.ErrInvalidAmount)
	}
	out, overflow := uint256.FromBig(v)
	if overflow || out.Gt(maxAmount) {
		return nil, fmt.Errorf("amount %s out of range: %w", v, yserrors.ErrArithmeticOverflow)
	}
	return out, nil
}

func describe(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
