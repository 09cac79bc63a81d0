package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"time"

	"yieldsplit/config"
	"yieldsplit/core/engine"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/storage"
)

type simOptions struct {
	ConfigPath string
	Assets     int64
	Step       time.Duration
	Steps      int
	Redeem     bool
}

// simStep is one line of simulate output.
type simStep struct {
	Elapsed  int64    `json:"elapsed"`
	Rate     *big.Int `json:"rate"`
	Claimed  string   `json:"claimed"`
	Shares   *big.Int `json:"shares"`
	Yield    *big.Int `json:"yield"`
	Redeemed string   `json:"redeemed,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func runSimulate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	opts := simOptions{}
	fs.StringVar(&opts.ConfigPath, "config", "", "Series configuration to simulate (defaults apply when empty)")
	fs.Int64Var(&opts.Assets, "assets", 1_000_000, "Underlying assets deposited by the simulated user")
	fs.DurationVar(&opts.Step, "step", time.Hour, "Time between claims")
	fs.IntVar(&opts.Steps, "steps", 24, "Number of claims")
	fs.BoolVar(&opts.Redeem, "redeem", true, "Advance to maturity and redeem the principal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return simulate(context.Background(), stdout, opts)
}

func simulate(ctx context.Context, w io.Writer, opts simOptions) error {
	if opts.Assets <= 0 {
		return fmt.Errorf("assets must be positive")
	}
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.StorageBackend = storage.BackendMemory

	start := time.Unix(1_700_000_000, 0)
	clock := host.NewManualClock(start)
	h, err := host.New(storage.NewMemDB(), host.WithClock(clock))
	if err != nil {
		return err
	}
	eng, err := engine.New(h, cfg)
	if err != nil {
		return err
	}
	admin := crypto.MustNewAddress(crypto.AccountPrefix, fill(0xA0))
	user := crypto.MustNewAddress(crypto.AccountPrefix, fill(0x01))
	info, err := eng.Bootstrap(ctx, admin)
	if err != nil {
		return err
	}

	assets := big.NewInt(opts.Assets)
	if _, err := eng.Fund(ctx, admin, user, assets); err != nil {
		return err
	}
	shares, err := eng.VaultDeposit(ctx, user, assets)
	if err != nil {
		return err
	}
	if _, err := eng.Deposit(ctx, user, shares.Amount); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i := 1; i <= opts.Steps; i++ {
		clock.Advance(opts.Step)
		step, err := simulateClaim(ctx, eng, user, clock.Now().Sub(start))
		if err != nil {
			return err
		}
		if err := enc.Encode(step); err != nil {
			return err
		}
	}
	if !opts.Redeem {
		return nil
	}

	if now := uint64(clock.Now().Unix()); now < info.Maturity {
		clock.Set(time.Unix(int64(info.Maturity), 0))
	}
	step, err := simulateClaim(ctx, eng, user, clock.Now().Sub(start))
	if err != nil {
		return err
	}
	acct, err := eng.Account(ctx, info.Number, user)
	if err != nil {
		return err
	}
	res, err := eng.Redeem(ctx, info.Number, user, acct.Principal)
	if err != nil {
		// Claimed yield can leave custody short of the final redemption.
		step.Error = err.Error()
	} else {
		step.Redeemed = res.Amount.String()
	}
	return enc.Encode(step)
}

func simulateClaim(ctx context.Context, eng *engine.Engine, user crypto.Address, elapsed time.Duration) (*simStep, error) {
	claimed, err := eng.Claim(ctx, 0, user)
	if err != nil {
		return nil, err
	}
	rate, err := eng.Rate(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := eng.Account(ctx, 0, user)
	if err != nil {
		return nil, err
	}
	return &simStep{
		Elapsed: int64(elapsed / time.Second),
		Rate:    rate.Stored,
		Claimed: claimed.Amount.String(),
		Shares:  acct.Shares,
		Yield:   acct.Yield,
	}, nil
}

func fill(b byte) []byte {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return raw
}
