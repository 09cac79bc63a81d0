package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yieldsplit/config"
	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/events"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/storage"
)

const start = 1_000_000

type fixture struct {
	engine   *Engine
	clock    *host.ManualClock
	recorder *events.Recorder
	admin    crypto.Address
	user     crypto.Address
}

func account(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := host.NewManualClock(time.Unix(start, 0))
	recorder := &events.Recorder{}
	h, err := host.New(storage.NewMemDB(), host.WithClock(clock), host.WithEmitter(recorder))
	require.NoError(t, err)
	cfg := config.Default()
	cfg.StorageBackend = storage.BackendMemory
	cfg.Series.MaturitySeconds = 1_000
	eng, err := New(h, cfg)
	require.NoError(t, err)
	f := &fixture{engine: eng, clock: clock, recorder: recorder, admin: account(0xA0), user: account(0x01)}
	info, err := eng.Bootstrap(context.Background(), f.admin)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.Number)
	require.Equal(t, uint64(start+1_000), info.Maturity)
	return f
}

func (f *fixture) enter(t *testing.T, assets int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Fund(ctx, f.admin, f.user, big.NewInt(assets))
	require.NoError(t, err)
	res, err := f.engine.VaultDeposit(ctx, f.user, big.NewInt(assets))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(assets).String(), res.Amount.String(), "shares at the initial rate")
	res, err = f.engine.Deposit(ctx, f.user, res.Amount)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(assets), big.NewInt(1_000_000)).String(), res.Amount.String())
}

func TestBootstrapResumes(t *testing.T) {
	f := newFixture(t)
	info, err := f.engine.Bootstrap(context.Background(), f.admin)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.Number)
	require.Len(t, f.recorder.OfType(events.TypeSeriesDeployed), 1)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enter(t, 1_000_000_000)

	f.clock.Advance(100 * time.Second)
	rate, err := f.engine.Rate(ctx)
	require.NoError(t, err)
	require.Equal(t, "1010000", rate.Upstream.String())
	require.Equal(t, "1000000", rate.Stored.String())

	res, err := f.engine.Claim(ctx, 0, f.user)
	require.NoError(t, err)
	require.Equal(t, "10000000", res.Amount.String())
	require.NotEmpty(t, res.Receipt.HashHex())

	acct, err := f.engine.Account(ctx, 0, f.user)
	require.NoError(t, err)
	require.Equal(t, "10000000", acct.Shares.String())
	require.Equal(t, "1010000", acct.Index.String())
	require.Zero(t, acct.Accrued.Sign())

	_, err = f.engine.Redeem(ctx, 0, f.user, big.NewInt(1))
	require.True(t, errors.Is(err, yserrors.ErrMaturityNotReached), "got %v", err)

	rolled, _, err := f.engine.Rollover(ctx, f.admin, 0)
	require.NoError(t, err)
	require.False(t, rolled)

	f.clock.Set(time.Unix(start+1_000, 0))
	rolled, _, err = f.engine.Rollover(ctx, f.admin, 0)
	require.NoError(t, err)
	require.True(t, rolled)
	info, err := f.engine.Series(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), info.Number)
	require.Equal(t, uint64(start+2_000), info.Maturity)

	half := new(big.Int).Mul(big.NewInt(500_000_000), big.NewInt(1_000_000))
	res, err = f.engine.Redeem(ctx, 1, f.user, half)
	require.NoError(t, err)

	locked := f.recorder.OfType(events.TypeRateLocked)
	require.Len(t, locked, 1)
	frozen := locked[0].(events.RateLocked).Rate
	require.Equal(t, new(big.Int).Quo(half, frozen).String(), res.Amount.String())

	old, err := f.engine.Account(ctx, 1, f.user)
	require.NoError(t, err)
	require.Equal(t, half.String(), old.Principal.String())
}

func TestOperationsRejectBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Deposit(ctx, f.user, big.NewInt(0))
	require.True(t, errors.Is(err, yserrors.ErrInvalidAmount), "got %v", err)

	_, err = f.engine.Fund(ctx, f.user, f.user, big.NewInt(10))
	require.True(t, errors.Is(err, yserrors.ErrUnauthorized), "got %v", err)

	_, err = f.engine.TransferYield(ctx, f.user, f.admin, big.NewInt(1))
	require.True(t, errors.Is(err, yserrors.ErrInsufficientBalance), "got %v", err)

	_, _, err = f.engine.Rollover(ctx, f.user, 0)
	require.True(t, errors.Is(err, yserrors.ErrUnauthorized), "got %v", err)
}

func TestPrincipalAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enter(t, 1_000)
	spender := account(0x02)

	_, err := f.engine.ApprovePrincipal(ctx, f.user, spender, big.NewInt(400), 0)
	require.NoError(t, err)
	_, err = f.engine.TransferPrincipalFrom(ctx, spender, f.user, spender, big.NewInt(300))
	require.NoError(t, err)

	remaining, err := f.engine.Allowance(ctx, f.user, spender)
	require.NoError(t, err)
	require.Equal(t, "100", remaining.String())

	acct, err := f.engine.Account(ctx, 0, spender)
	require.NoError(t, err)
	require.Equal(t, "300", acct.Principal.String())
}

func TestBootstrapRefusesChangedScale(t *testing.T) {
	db := storage.NewMemDB()
	clock := host.NewManualClock(time.Unix(start, 0))
	admin := account(0xA0)
	open := func(scale uint64) *Engine {
		h, err := host.New(db, host.WithClock(clock))
		require.NoError(t, err)
		cfg := config.Default()
		cfg.StorageBackend = storage.BackendMemory
		cfg.Series.MaturitySeconds = 1_000
		cfg.Series.Scale = scale
		eng, err := New(h, cfg)
		require.NoError(t, err)
		return eng
	}
	ctx := context.Background()
	_, err := open(1_000_000).Bootstrap(ctx, admin)
	require.NoError(t, err)

	_, err = open(10_000_000).Bootstrap(ctx, admin)
	require.ErrorIs(t, err, ErrScaleMismatch)

	clock.Set(time.Unix(start+1_000, 0))
	eng := open(1_000_000)
	_, err = eng.Bootstrap(ctx, admin)
	require.NoError(t, err)
	rolled, _, err := eng.Rollover(ctx, admin, 0)
	require.NoError(t, err)
	require.True(t, rolled)

	rate, err := eng.Rate(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), rate.Scale)
	require.NoError(t, eng.Host().View(ctx, func(env *host.Env) error {
		s, err := eng.deployer.Current(env)
		if err != nil {
			return err
		}
		scale, err := s.Yield.Scale(env)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(1_000_000), scale)
		return nil
	}))
}

func TestRefreshRateAdvancesStoredRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Advance(100 * time.Second)

	res, err := f.engine.RefreshRate(ctx, f.user, 0)
	require.NoError(t, err)
	require.Equal(t, "1010000", res.Amount.String())
	require.Len(t, f.recorder.OfType(events.TypeRateUpdated), 1)

	rate, err := f.engine.Rate(ctx)
	require.NoError(t, err)
	require.Equal(t, "1010000", rate.Stored.String())
	require.False(t, rate.Locked)
}

func TestSeriesReportsVault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enter(t, 1_000)
	f.clock.Advance(10 * time.Second)

	info, err := f.engine.Series(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.VaultYieldBps)
	require.Equal(t, uint64(10), info.VaultIdle)
	require.Equal(t, "1000001000", info.VaultShares.String())
	require.Equal(t, "1001001001", info.VaultAssets.String())
}

func TestRolloverIgnoresAbsoluteMaturity(t *testing.T) {
	clock := host.NewManualClock(time.Unix(start, 0))
	h, err := host.New(storage.NewMemDB(), host.WithClock(clock))
	require.NoError(t, err)
	cfg := config.Default()
	cfg.StorageBackend = storage.BackendMemory
	cfg.Series.Maturity = start + 500
	cfg.Series.MaturitySeconds = 1_000
	eng, err := New(h, cfg)
	require.NoError(t, err)
	ctx := context.Background()
	admin := account(0xA0)

	info, err := eng.Bootstrap(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, uint64(start+500), info.Maturity)

	clock.Set(time.Unix(start+600, 0))
	rolled, _, err := eng.Rollover(ctx, admin, 0)
	require.NoError(t, err)
	require.True(t, rolled)
	info, err = eng.Series(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(start+1_600), info.Maturity)
}
