package vault

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

func makeAddress(prefix, suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = prefix
	raw[len(raw)-1] = suffix
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

type fixture struct {
	host     *host.Host
	clock    *host.ManualClock
	vault    *Vault
	operator crypto.Address
}

func newFixture(t *testing.T, bps uint64) *fixture {
	t.Helper()
	clock := host.NewManualClock(time.Unix(1_000, 0))
	h, err := host.New(storage.NewMemDB(), host.WithClock(clock))
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	asset := NewAsset(crypto.ComponentAddress("asset", nil))
	f := &fixture{
		host:     h,
		clock:    clock,
		vault:    New(crypto.ComponentAddress("vault", nil), asset),
		operator: makeAddress(0xAA, 0x01),
	}
	f.exec(t, []crypto.Address{f.operator}, func(env *host.Env) error {
		if err := asset.Construct(env, f.operator, "Test Dollar", "TUSD", 7); err != nil {
			return err
		}
		return f.vault.Construct(env, f.operator, bps, 0)
	})
	return f
}

func (f *fixture) exec(t *testing.T, signers []crypto.Address, fn func(env *host.Env) error) {
	t.Helper()
	if _, err := f.host.Execute(context.Background(), signers, fn); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func (f *fixture) rate(t *testing.T) *big.Int {
	t.Helper()
	var out *big.Int
	if err := f.host.View(context.Background(), func(env *host.Env) error {
		var err error
		out, err = f.vault.ExchangeRate(env)
		return err
	}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	return out
}

func (f *fixture) fund(t *testing.T, to crypto.Address, amount int64) {
	t.Helper()
	f.exec(t, []crypto.Address{f.operator}, func(env *host.Env) error {
		return f.vault.Asset().Fund(env, to, big.NewInt(amount))
	})
}

func TestRateGrowsLinearly(t *testing.T) {
	f := newFixture(t, 1)
	if got := f.rate(t); got.Cmp(big.NewInt(DefaultScale)) != 0 {
		t.Fatalf("initial rate: got %s want %d", got, DefaultScale)
	}
	f.clock.Advance(100 * time.Second)
	if got := f.rate(t); got.Cmp(big.NewInt(1_010_000)) != 0 {
		t.Fatalf("rate after 100s: got %s want 1010000", got)
	}
	var vector []*big.Int
	if err := f.host.View(context.Background(), func(env *host.Env) error {
		var err error
		vector, err = f.vault.AssetAmountsPerShares(env, big.NewInt(1))
		return err
	}); err != nil {
		t.Fatalf("asset amounts: %v", err)
	}
	if len(vector) != 1 || vector[0].Cmp(big.NewInt(1_010_000)) != 0 {
		t.Fatalf("unexpected asset amounts %v", vector)
	}
}

func TestDepositWithdrawKeepsRateMonotonic(t *testing.T) {
	f := newFixture(t, 1)
	user := makeAddress(0x01, 0x01)
	f.fund(t, user, 1_000_000)

	f.clock.Advance(100 * time.Second)
	before := f.rate(t)

	var shares *big.Int
	f.exec(t, []crypto.Address{user}, func(env *host.Env) error {
		var err error
		shares, err = f.vault.Deposit(env, user, big.NewInt(1_000_000))
		return err
	})
	if shares.Cmp(big.NewInt(990_099)) != 0 {
		t.Fatalf("minted shares: got %s want 990099", shares)
	}
	afterDeposit := f.rate(t)
	if afterDeposit.Cmp(before) < 0 {
		t.Fatalf("rate fell on deposit: %s -> %s", before, afterDeposit)
	}

	var assets *big.Int
	f.exec(t, []crypto.Address{user}, func(env *host.Env) error {
		var err error
		assets, err = f.vault.Withdraw(env, user, shares)
		return err
	})
	if assets.Sign() <= 0 || assets.Cmp(big.NewInt(1_000_000)) > 0 {
		t.Fatalf("unexpected withdrawal %s", assets)
	}
	if afterWithdraw := f.rate(t); afterWithdraw.Cmp(afterDeposit) < 0 {
		t.Fatalf("rate fell on withdraw: %s -> %s", afterDeposit, afterWithdraw)
	}
	var held *big.Int
	if err := f.host.View(context.Background(), func(env *host.Env) error {
		var err error
		held, err = f.vault.Asset().Balance(env, user)
		return err
	}); err != nil {
		t.Fatalf("balance: %v", err)
	}
	if held.Cmp(assets) != 0 {
		t.Fatalf("user asset balance %s, withdrawn %s", held, assets)
	}
}

func TestWithdrawLimitedByHeldAssets(t *testing.T) {
	f := newFixture(t, 100)
	user := makeAddress(0x01, 0x02)
	f.fund(t, user, 1_000)
	f.exec(t, []crypto.Address{user}, func(env *host.Env) error {
		_, err := f.vault.Deposit(env, user, big.NewInt(1_000))
		return err
	})
	// Virtual growth dwarfs the real assets the vault holds.
	f.clock.Advance(time.Hour)
	_, err := f.host.Execute(context.Background(), []crypto.Address{user}, func(env *host.Env) error {
		_, err := f.vault.Withdraw(env, user, big.NewInt(1_000))
		return err
	})
	if !errors.Is(err, yserrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient vault liquidity, got %v", err)
	}
}

func TestSetYieldRateFoldsGrowth(t *testing.T) {
	f := newFixture(t, 1)
	f.clock.Advance(100 * time.Second)
	f.exec(t, []crypto.Address{f.operator}, func(env *host.Env) error {
		return f.vault.SetYieldRate(env, 0)
	})
	f.clock.Advance(time.Hour)
	if got := f.rate(t); got.Cmp(big.NewInt(1_010_000)) != 0 {
		t.Fatalf("rate after pause: got %s want 1010000", got)
	}

	stranger := makeAddress(0x02, 0x01)
	_, err := f.host.Execute(context.Background(), []crypto.Address{stranger}, func(env *host.Env) error {
		return f.vault.SetYieldRate(env, 5)
	})
	if !errors.Is(err, yserrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestShareTransfers(t *testing.T) {
	f := newFixture(t, 0)
	alice := makeAddress(0x03, 0x01)
	bob := makeAddress(0x03, 0x02)
	f.fund(t, alice, 5_000)
	f.exec(t, []crypto.Address{alice}, func(env *host.Env) error {
		if _, err := f.vault.Deposit(env, alice, big.NewInt(5_000)); err != nil {
			return err
		}
		if err := f.vault.Transfer(env, alice, bob, big.NewInt(1_000)); err != nil {
			return err
		}
		return f.vault.Approve(env, alice, bob, big.NewInt(500), 0)
	})
	f.exec(t, []crypto.Address{bob}, func(env *host.Env) error {
		return f.vault.TransferFrom(env, bob, alice, bob, big.NewInt(500))
	})
	if err := f.host.View(context.Background(), func(env *host.Env) error {
		a, err := f.vault.Balance(env, alice)
		if err != nil {
			return err
		}
		b, err := f.vault.Balance(env, bob)
		if err != nil {
			return err
		}
		if a.Int64() != 3_500 || b.Int64() != 1_500 {
			t.Fatalf("unexpected balances alice=%s bob=%s", a, b)
		}
		md, err := f.vault.Metadata(env)
		if err != nil {
			return err
		}
		if md.Symbol != ShareSymbol || md.Decimals != ShareDecimals {
			t.Fatalf("unexpected metadata %+v", md)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
