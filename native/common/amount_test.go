package common

import (
	"errors"
	"math/big"
	"testing"

	yserrors "yieldsplit/core/errors"
)

func TestRequirePositive(t *testing.T) {
	cases := []struct {
		name string
		in   *big.Int
		want error
	}{
		{name: "nil", in: nil, want: yserrors.ErrInvalidAmount},
		{name: "zero", in: big.NewInt(0), want: yserrors.ErrInvalidAmount},
		{name: "negative", in: big.NewInt(-5), want: yserrors.ErrInvalidAmount},
		{name: "positive", in: big.NewInt(5), want: nil},
		{name: "too large", in: new(big.Int).Lsh(big.NewInt(1), 127), want: yserrors.ErrArithmeticOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RequirePositive(tc.in)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("unexpected error: got %v want %v", err, tc.want)
			}
		})
	}
}

func TestRequireNonNegativeAcceptsZero(t *testing.T) {
	if err := RequireNonNegative(big.NewInt(0)); err != nil {
		t.Fatalf("zero rejected: %v", err)
	}
	if err := RequireNonNegative(big.NewInt(-1)); !errors.Is(err, yserrors.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	max := MaxAmount()
	if _, err := Add(max, big.NewInt(1)); !errors.Is(err, yserrors.ErrArithmeticOverflow) {
		t.Fatalf("expected add overflow, got %v", err)
	}
	if _, err := Mul(max, big.NewInt(2)); !errors.Is(err, yserrors.ErrArithmeticOverflow) {
		t.Fatalf("expected mul overflow, got %v", err)
	}
	if _, err := Sub(big.NewInt(1), big.NewInt(2)); !errors.Is(err, yserrors.ErrArithmeticOverflow) {
		t.Fatalf("expected sub underflow, got %v", err)
	}
	if _, err := Div(big.NewInt(1), big.NewInt(0)); !errors.Is(err, yserrors.ErrArithmeticOverflow) {
		t.Fatalf("expected division by zero error, got %v", err)
	}
	got, err := Div(big.NewInt(500_000), big.NewInt(1_050_000))
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected truncation to zero, got %s", got)
	}
	got, err = Mul(big.NewInt(1000), big.NewInt(1_000_000))
	if err != nil || got.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("unexpected product %s (err %v)", got, err)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	md, err := NormalizeMetadata("  Principal Token ", "ＰＴ", 7)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if md.Name != "Principal Token" {
		t.Fatalf("unexpected name %q", md.Name)
	}
	if md.Symbol != "PT" {
		t.Fatalf("expected NFKC folding of full-width symbol, got %q", md.Symbol)
	}
	if _, err := NormalizeMetadata("x", "y", 19); err == nil {
		t.Fatalf("expected decimals above 18 to fail")
	}
	if _, err := NormalizeMetadata(" ", "y", 6); err == nil {
		t.Fatalf("expected empty name to fail")
	}
}
