package yieldtoken

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/storage"
)

const testScale = 1_000_000

func makeAddress(prefix, suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = prefix
	raw[len(raw)-1] = suffix
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

type payout struct {
	to     crypto.Address
	shares *big.Int
}

// stubClearinghouse serves a settable rate and records payouts. It only
// honours payouts invoked from the yield ledger's frame.
type stubClearinghouse struct {
	addr    crypto.Address
	ledger  crypto.Address
	rate    *big.Int
	payouts []payout
}

func (s *stubClearinghouse) Address() crypto.Address { return s.addr }

func (s *stubClearinghouse) ExchangeRate(*host.Env) (*big.Int, error) {
	return new(big.Int).Set(s.rate), nil
}

func (s *stubClearinghouse) DistributeYield(env *host.Env, to crypto.Address, shares *big.Int) error {
	frame := env.Enter(s.addr)
	if err := frame.RequireAuth(s.ledger); err != nil {
		return err
	}
	s.payouts = append(s.payouts, payout{to: to, shares: new(big.Int).Set(shares)})
	return nil
}

type fixture struct {
	host   *host.Host
	clock  *host.ManualClock
	ledger *Ledger
	ch     *stubClearinghouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := host.NewManualClock(time.Unix(1_000, 0))
	h, err := host.New(storage.NewMemDB(), host.WithClock(clock))
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	ledger := New(crypto.ComponentAddress("yt", nil))
	ch := &stubClearinghouse{
		addr:   crypto.ComponentAddress("clearinghouse", nil),
		ledger: ledger.Address(),
		rate:   big.NewInt(testScale),
	}
	ledger.Bind(ch)
	f := &fixture{host: h, clock: clock, ledger: ledger, ch: ch}
	f.exec(t, nil, func(env *host.Env) error {
		return ledger.Construct(env, ch.addr, "Yield Token", "YT", 7, testScale)
	})
	return f
}

func (f *fixture) exec(t *testing.T, signers []crypto.Address, fn func(env *host.Env) error) {
	t.Helper()
	if _, err := f.host.Execute(context.Background(), signers, fn); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func (f *fixture) try(signers []crypto.Address, fn func(env *host.Env) error) error {
	_, err := f.host.Execute(context.Background(), signers, fn)
	return err
}

func (f *fixture) setRate(rate int64) {
	f.ch.rate = big.NewInt(rate)
}

// mint mints amount to to as the clearinghouse, using the current stub rate
// as the hint.
func (f *fixture) mint(t *testing.T, to crypto.Address, amount *big.Int) {
	t.Helper()
	f.exec(t, nil, func(env *host.Env) error {
		return f.ledger.Mint(env.Enter(f.ch.addr), to, amount, f.ch.rate)
	})
}

func (f *fixture) claim(t *testing.T, user crypto.Address) *big.Int {
	t.Helper()
	var out *big.Int
	f.exec(t, []crypto.Address{user}, func(env *host.Env) error {
		var err error
		out, err = f.ledger.ClaimYield(env, user)
		return err
	})
	return out
}

func (f *fixture) read(t *testing.T, fn func(env *host.Env) (*big.Int, error)) *big.Int {
	t.Helper()
	var out *big.Int
	if err := f.host.View(context.Background(), func(env *host.Env) error {
		var err error
		out, err = fn(env)
		return err
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return out
}

func (f *fixture) index(t *testing.T, addr crypto.Address) *big.Int {
	return f.read(t, func(env *host.Env) (*big.Int, error) { return f.ledger.UserIndex(env, addr) })
}

func (f *fixture) accrued(t *testing.T, addr crypto.Address) *big.Int {
	return f.read(t, func(env *host.Env) (*big.Int, error) { return f.ledger.AccruedYield(env, addr) })
}

func (f *fixture) balance(t *testing.T, addr crypto.Address) *big.Int {
	return f.read(t, func(env *host.Env) (*big.Int, error) { return f.ledger.Balance(env, addr) })
}

func expectInt(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s want %d", label, got, want)
	}
}

func TestClaimAfterRateIncrease(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x01, 0x01)

	// 1000 shares deposited at 1.0.
	f.mint(t, user, big.NewInt(1_000_000_000))
	expectInt(t, "index after first mint", f.index(t, user), testScale)
	expectInt(t, "accrued after first mint", f.accrued(t, user), 0)

	f.setRate(1_010_000)
	expectInt(t, "claimed", f.claim(t, user), 10)
	expectInt(t, "accrued after claim", f.accrued(t, user), 0)
	expectInt(t, "index after claim", f.index(t, user), 1_010_000)
	expectInt(t, "second claim", f.claim(t, user), 0)

	if len(f.ch.payouts) != 1 || f.ch.payouts[0].to != user {
		t.Fatalf("unexpected payouts: %+v", f.ch.payouts)
	}
	expectInt(t, "payout", f.ch.payouts[0].shares, 10)
}

func TestClaimLargePosition(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x01, 0x02)

	// 1M shares at 1.0; a 1% move is worth 10,000 shares.
	f.mint(t, user, big.NewInt(1_000_000_000_000))
	f.setRate(1_010_000)
	expectInt(t, "claimed", f.claim(t, user), 10_000)
}

func TestNoRetroactiveAccrual(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x01, 0x03)

	f.setRate(1_500_000)
	f.mint(t, user, big.NewInt(1_000_000_000))
	expectInt(t, "accrued", f.accrued(t, user), 0)
	expectInt(t, "index", f.index(t, user), 1_500_000)
	expectInt(t, "claim at same rate", f.claim(t, user), 0)
}

func TestAccrualIsIdempotentAtSameRate(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x01, 0x04)
	f.mint(t, user, big.NewInt(3_000_000_000))

	f.setRate(1_001_000)
	// A zero-amount mint settles at the hint without moving balances.
	f.mint(t, user, big.NewInt(0))
	first := f.accrued(t, user)
	expectInt(t, "first settle", first, 3)
	f.mint(t, user, big.NewInt(0))
	expectInt(t, "second settle", f.accrued(t, user), 3)
	expectInt(t, "index", f.index(t, user), 1_001_000)
}

func TestTransferSettlesBothParties(t *testing.T) {
	f := newFixture(t)
	alice := makeAddress(0x02, 0x01)
	bob := makeAddress(0x02, 0x02)
	f.mint(t, alice, big.NewInt(1_000_000_000))

	f.setRate(1_020_000)
	f.exec(t, []crypto.Address{alice}, func(env *host.Env) error {
		return f.ledger.Transfer(env, alice, bob, big.NewInt(500_000_000))
	})
	expectInt(t, "alice accrued", f.accrued(t, alice), 20)
	expectInt(t, "bob accrued", f.accrued(t, bob), 0)
	expectInt(t, "bob index", f.index(t, bob), 1_020_000)
	expectInt(t, "alice balance", f.balance(t, alice), 500_000_000)
	expectInt(t, "bob balance", f.balance(t, bob), 500_000_000)

	f.setRate(1_030_000)
	expectInt(t, "alice claim", f.claim(t, alice), 24)
	expectInt(t, "bob claim", f.claim(t, bob), 4)
}

func TestSelfTransferKeepsBalance(t *testing.T) {
	f := newFixture(t)
	alice := makeAddress(0x02, 0x03)
	f.mint(t, alice, big.NewInt(700))
	f.exec(t, []crypto.Address{alice}, func(env *host.Env) error {
		return f.ledger.Transfer(env, alice, alice, big.NewInt(300))
	})
	expectInt(t, "balance", f.balance(t, alice), 700)
}

func TestZeroBalanceIndexDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	carol := makeAddress(0x02, 0x04)
	f.mint(t, carol, big.NewInt(0))
	expectInt(t, "initial index", f.index(t, carol), testScale)

	f.setRate(1_200_000)
	expectInt(t, "claim", f.claim(t, carol), 0)
	expectInt(t, "index", f.index(t, carol), testScale)
}

func TestEqualHoldersAccrueEqually(t *testing.T) {
	f := newFixture(t)
	a := makeAddress(0x03, 0x01)
	b := makeAddress(0x03, 0x02)
	f.mint(t, a, big.NewInt(123_456_789_000))
	f.mint(t, b, big.NewInt(123_456_789_000))

	f.setRate(1_003_700)
	ca := f.claim(t, a)
	cb := f.claim(t, b)
	if ca.Cmp(cb) != 0 {
		t.Fatalf("unequal claims: %s vs %s", ca, cb)
	}
	if ca.Sign() == 0 {
		t.Fatalf("expected a positive claim")
	}
}

func TestBurnSettlesFirst(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x04, 0x01)
	f.mint(t, user, big.NewInt(2_000_000_000))
	f.setRate(1_005_000)

	f.exec(t, []crypto.Address{user}, func(env *host.Env) error {
		return f.ledger.Burn(env, user, big.NewInt(2_000_000_000))
	})
	expectInt(t, "accrued", f.accrued(t, user), 10)
	expectInt(t, "balance", f.balance(t, user), 0)
	supply := f.read(t, func(env *host.Env) (*big.Int, error) { return f.ledger.TotalSupply(env) })
	expectInt(t, "supply", supply, 0)

	err := f.try([]crypto.Address{user}, func(env *host.Env) error {
		return f.ledger.Burn(env, user, big.NewInt(1))
	})
	if !errors.Is(err, yserrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x05, 0x01)
	other := makeAddress(0x05, 0x02)
	f.mint(t, user, big.NewInt(1_000))

	err := f.try([]crypto.Address{user}, func(env *host.Env) error {
		return f.ledger.Mint(env, user, big.NewInt(1), big.NewInt(testScale))
	})
	if !errors.Is(err, yserrors.ErrUnauthorized) {
		t.Fatalf("expected user mint to be rejected, got %v", err)
	}

	err = f.try([]crypto.Address{other}, func(env *host.Env) error {
		return f.ledger.Transfer(env, user, other, big.NewInt(1))
	})
	if !errors.Is(err, yserrors.ErrUnauthorized) {
		t.Fatalf("expected transfer without holder signature to fail, got %v", err)
	}

	err = f.try([]crypto.Address{other}, func(env *host.Env) error {
		_, err := f.ledger.ClaimYield(env, user)
		return err
	})
	if !errors.Is(err, yserrors.ErrUnauthorized) {
		t.Fatalf("expected claim on behalf of another holder to fail, got %v", err)
	}

	err = f.try([]crypto.Address{user}, func(env *host.Env) error {
		return f.ledger.Transfer(env, user, other, big.NewInt(-1))
	})
	if !errors.Is(err, yserrors.ErrInvalidAmount) {
		t.Fatalf("expected negative transfer to fail, got %v", err)
	}
}

func TestAllowanceSurfaceUnsupported(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x06, 0x01)
	err := f.try([]crypto.Address{user}, func(env *host.Env) error {
		return f.ledger.Approve(env, user, makeAddress(0x06, 0x02), big.NewInt(1), 0)
	})
	if !errors.Is(err, yserrors.ErrUnsupported) {
		t.Fatalf("expected unsupported approve, got %v", err)
	}
	allowance := f.read(t, func(env *host.Env) (*big.Int, error) {
		return f.ledger.Allowance(env, user, makeAddress(0x06, 0x02))
	})
	expectInt(t, "allowance", allowance, 0)
}

func TestClaimRequiresMatchingClearinghouse(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x07, 0x01)
	f.mint(t, user, big.NewInt(1_000))
	f.ledger.Bind(&stubClearinghouse{addr: crypto.ComponentAddress("impostor", nil), rate: big.NewInt(2 * testScale)})
	err := f.try([]crypto.Address{user}, func(env *host.Env) error {
		_, err := f.ledger.ClaimYield(env, user)
		return err
	})
	if err == nil {
		t.Fatalf("expected claim through a foreign clearinghouse to fail")
	}
}
