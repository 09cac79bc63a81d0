package common

import (
	"errors"
	"math/big"
	"testing"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/state"
	"yieldsplit/crypto"
	"yieldsplit/storage"
)

func makeAddress(prefix, suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = prefix
	raw[len(raw)-1] = suffix
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

func newTestLedger() Ledger {
	return NewLedger(state.NewStore(storage.NewMemDB(), []byte("ledger")))
}

func TestLedgerMoveSelfTransferIsNoop(t *testing.T) {
	l := newTestLedger()
	alice := makeAddress(0xa1, 1)
	if err := l.Receive(alice, big.NewInt(100)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := l.Move(alice, alice, big.NewInt(40)); err != nil {
		t.Fatalf("self move: %v", err)
	}
	balance, _ := l.Balance(alice)
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("self transfer changed balance: %s", balance)
	}
	if err := l.Move(alice, makeAddress(0xb0, 2), big.NewInt(101)); !errors.Is(err, yserrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestLedgerAllowanceExpiry(t *testing.T) {
	l := newTestLedger()
	owner := makeAddress(0xa1, 1)
	spender := makeAddress(0xb0, 2)

	if err := l.SetAllowance(owner, spender, big.NewInt(50), 100, 10); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	got, _ := l.Allowance(owner, spender, 100)
	if got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected allowance at expiry boundary: %s", got)
	}
	got, _ = l.Allowance(owner, spender, 101)
	if got.Sign() != 0 {
		t.Fatalf("expected expired allowance to read zero, got %s", got)
	}
	if err := l.SpendAllowance(owner, spender, big.NewInt(1), 101); !errors.Is(err, yserrors.ErrInsufficientAllowance) {
		t.Fatalf("expected expired allowance to be unspendable, got %v", err)
	}
	if err := l.SpendAllowance(owner, spender, big.NewInt(20), 50); err != nil {
		t.Fatalf("spend allowance: %v", err)
	}
	got, _ = l.Allowance(owner, spender, 50)
	if got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected remaining allowance %s", got)
	}
	if err := l.SetAllowance(owner, spender, big.NewInt(5), 5, 10); !errors.Is(err, yserrors.ErrInvalidAmount) {
		t.Fatalf("expected past expiry to be rejected, got %v", err)
	}
}

func TestLedgerSupply(t *testing.T) {
	l := newTestLedger()
	if err := l.IncreaseSupply(big.NewInt(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if err := l.DecreaseSupply(big.NewInt(11)); !errors.Is(err, yserrors.ErrArithmeticOverflow) {
		t.Fatalf("expected supply underflow, got %v", err)
	}
	if err := l.WriteMetadata(Metadata{Name: "Principal", Symbol: "PT", Decimals: 7}); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	md, err := l.ReadMetadata()
	if err != nil || md.Symbol != "PT" || md.Decimals != 7 {
		t.Fatalf("unexpected metadata %+v (%v)", md, err)
	}
}
