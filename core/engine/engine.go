package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"yieldsplit/config"
	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/native/common"
	"yieldsplit/native/oracle"
	"yieldsplit/native/series"
	"yieldsplit/native/vault"
	"yieldsplit/observability"
)

// ErrScaleMismatch is returned by Bootstrap when the configured rate scale
// differs from the one the deployment was constructed with.
var ErrScaleMismatch = errors.New("engine: configured scale differs from deployment")

// Component addresses of the singletons hosted next to every series.
var (
	AssetAddress    = crypto.ComponentAddress("asset", nil)
	VaultAddress    = crypto.ComponentAddress("vault", nil)
	DeployerAddress = crypto.ComponentAddress("deployer", nil)
)

// Engine drives the current series of a deployment through a host. Every
// state-changing call is one host transaction.
type Engine struct {
	host     *host.Host
	asset    *vault.Asset
	vault    *vault.Vault
	oracle   *oracle.Adapter
	deployer *series.Deployer
	cfg      *config.Config
	metrics  *observability.EngineMetrics
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records every operation on m.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New wires the reference vault, its rate adapter and the series deployer
// described by cfg onto h. It touches no state.
func New(h *host.Host, cfg *config.Config, opts ...Option) (*Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("engine: host required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("engine: config required")
	}
	kind, err := oracle.ParseVaultKind(cfg.Vault.Kind)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	asset := vault.NewAsset(AssetAddress)
	v := vault.New(VaultAddress, asset)
	adapter, err := oracle.NewAdapter(kind, v)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		host:     h,
		asset:    asset,
		vault:    v,
		oracle:   adapter,
		deployer: series.NewDeployer(DeployerAddress, adapter, v, cfg.SeriesParams()),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Host returns the underlying host.
func (e *Engine) Host() *host.Host { return e.host }

// Bootstrap constructs the vault, its asset and the deployer on first start
// and deploys the first series. On later starts it resumes the existing state.
// admin becomes the operator of every component.
func (e *Engine) Bootstrap(ctx context.Context, admin crypto.Address) (*SeriesInfo, error) {
	_, err := e.host.Execute(ctx, []crypto.Address{admin}, func(env *host.Env) error {
		constructed, err := e.vault.Constructed(env)
		if err != nil {
			return err
		}
		if !constructed {
			if err := e.asset.Construct(env, admin, e.cfg.Vault.AssetName, e.cfg.Vault.AssetSymbol, e.cfg.Series.Decimals); err != nil {
				return err
			}
			if err := e.vault.Construct(env, admin, e.cfg.Vault.YieldBps, e.cfg.Series.Scale); err != nil {
				return err
			}
			if err := e.deployer.Construct(env, admin); err != nil {
				return err
			}
			e.logger.Info("engine constructed", slog.String("vault", e.vault.Address().String()))
		}
		if err := e.checkScale(env); err != nil {
			return err
		}
		_, err = e.deployer.Current(env)
		if !errors.Is(err, series.ErrNoSeries) {
			return err
		}
		s, err := e.deployer.Deploy(env, e.cfg.MaturityAt(time.Unix(int64(env.Timestamp()), 0)))
		if err != nil {
			return err
		}
		e.logger.Info("series deployed",
			slog.Uint64("number", s.Number),
			slog.String("series", s.Clearinghouse.Address().String()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("engine: bootstrap: %w", err)
	}
	return e.Series(ctx)
}

// checkScale refuses to resume a deployment whose vault or deployer were
// constructed with a scale other than the configured one.
func (e *Engine) checkScale(env *host.Env) error {
	want := e.cfg.Series.Scale
	vaultScale, err := e.vault.Scale(env)
	if err != nil {
		return err
	}
	deployerScale, err := e.deployer.Scale(env)
	if err != nil {
		return err
	}
	if vaultScale != want || deployerScale != want {
		return fmt.Errorf("%w: configured %d, vault %d, deployer %d", ErrScaleMismatch, want, vaultScale, deployerScale)
	}
	return nil
}

func (e *Engine) record(op string, err error) {
	e.metrics.RecordOperation(op, yserrors.Label(err))
}

// at resolves series number, zero meaning the current one.
func (e *Engine) at(env *host.Env, number uint64) (*series.Series, error) {
	if number == 0 {
		return e.deployer.Current(env)
	}
	return e.deployer.Get(env, number)
}

// execute runs fn against series number as a transaction signed by signer.
func (e *Engine) execute(ctx context.Context, op string, number uint64, signer crypto.Address, fn func(env *host.Env, s *series.Series) error) (*host.Receipt, error) {
	receipt, err := e.host.Execute(ctx, []crypto.Address{signer}, func(env *host.Env) error {
		s, err := e.at(env, number)
		if err != nil {
			return err
		}
		return fn(env, s)
	})
	e.record(op, err)
	if err != nil {
		e.logger.Debug("operation failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	return receipt, err
}

// Result is the outcome of a state-changing operation.
type Result struct {
	Amount  *big.Int
	Receipt *host.Receipt
}

func amountResult(receipt *host.Receipt, err error, amount *big.Int) (*Result, error) {
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = new(big.Int)
	}
	return &Result{Amount: amount, Receipt: receipt}, nil
}

// Deposit splits shares of user into PT and YT. Amount is the quantity of
// each minted.
func (e *Engine) Deposit(ctx context.Context, user crypto.Address, shares *big.Int) (*Result, error) {
	var minted *big.Int
	receipt, err := e.execute(ctx, "deposit", 0, user, func(env *host.Env, s *series.Series) error {
		var err error
		minted, err = s.Clearinghouse.Deposit(env, user, shares)
		return err
	})
	return amountResult(receipt, err, minted)
}

// Claim pays user's accrued yield on series number in vault shares. Zero
// selects the current series.
func (e *Engine) Claim(ctx context.Context, number uint64, user crypto.Address) (*Result, error) {
	var paid *big.Int
	receipt, err := e.execute(ctx, "claim", number, user, func(env *host.Env, s *series.Series) error {
		var err error
		paid, err = s.Yield.ClaimYield(env, user)
		return err
	})
	return amountResult(receipt, err, paid)
}

// Redeem burns principal PT of series number held by user after maturity
// and returns the shares paid out. Zero selects the current series.
func (e *Engine) Redeem(ctx context.Context, number uint64, user crypto.Address, principal *big.Int) (*Result, error) {
	var shares *big.Int
	receipt, err := e.execute(ctx, "redeem", number, user, func(env *host.Env, s *series.Series) error {
		var err error
		shares, err = s.Clearinghouse.RedeemPrincipal(env, user, principal)
		return err
	})
	return amountResult(receipt, err, shares)
}

// TransferPrincipal moves PT between accounts.
func (e *Engine) TransferPrincipal(ctx context.Context, from, to crypto.Address, amount *big.Int) (*Result, error) {
	receipt, err := e.execute(ctx, "pt_transfer", 0, from, func(env *host.Env, s *series.Series) error {
		return s.Principal.Transfer(env, from, to, amount)
	})
	return amountResult(receipt, err, amount)
}

// ApprovePrincipal sets spender's PT allowance over from's balance.
func (e *Engine) ApprovePrincipal(ctx context.Context, from, spender crypto.Address, amount *big.Int, expiresAt uint64) (*Result, error) {
	receipt, err := e.execute(ctx, "pt_approve", 0, from, func(env *host.Env, s *series.Series) error {
		return s.Principal.Approve(env, from, spender, amount, expiresAt)
	})
	return amountResult(receipt, err, amount)
}

// TransferPrincipalFrom moves PT from from to to using spender's allowance.
func (e *Engine) TransferPrincipalFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int) (*Result, error) {
	receipt, err := e.execute(ctx, "pt_transfer_from", 0, spender, func(env *host.Env, s *series.Series) error {
		return s.Principal.TransferFrom(env, spender, from, to, amount)
	})
	return amountResult(receipt, err, amount)
}

// TransferYield moves YT, settling both parties first.
func (e *Engine) TransferYield(ctx context.Context, from, to crypto.Address, amount *big.Int) (*Result, error) {
	receipt, err := e.execute(ctx, "yt_transfer", 0, from, func(env *host.Env, s *series.Series) error {
		return s.Yield.Transfer(env, from, to, amount)
	})
	return amountResult(receipt, err, amount)
}

// BurnYield destroys YT held by from. Accrued yield stays claimable.
func (e *Engine) BurnYield(ctx context.Context, from crypto.Address, amount *big.Int) (*Result, error) {
	receipt, err := e.execute(ctx, "yt_burn", 0, from, func(env *host.Env, s *series.Series) error {
		return s.Yield.Burn(env, from, amount)
	})
	return amountResult(receipt, err, amount)
}

// VaultDeposit exchanges assets of user for vault shares.
func (e *Engine) VaultDeposit(ctx context.Context, user crypto.Address, assets *big.Int) (*Result, error) {
	var shares *big.Int
	receipt, err := e.host.Execute(ctx, []crypto.Address{user}, func(env *host.Env) error {
		var err error
		shares, err = e.vault.Deposit(env, user, assets)
		return err
	})
	e.record("vault_deposit", err)
	return amountResult(receipt, err, shares)
}

// VaultWithdraw exchanges vault shares of user back into assets.
func (e *Engine) VaultWithdraw(ctx context.Context, user crypto.Address, shares *big.Int) (*Result, error) {
	var assets *big.Int
	receipt, err := e.host.Execute(ctx, []crypto.Address{user}, func(env *host.Env) error {
		var err error
		assets, err = e.vault.Withdraw(env, user, shares)
		return err
	})
	e.record("vault_withdraw", err)
	return amountResult(receipt, err, assets)
}

// Fund mints the vault's underlying asset to to. Admin only.
func (e *Engine) Fund(ctx context.Context, admin, to crypto.Address, amount *big.Int) (*Result, error) {
	receipt, err := e.host.Execute(ctx, []crypto.Address{admin}, func(env *host.Env) error {
		return e.asset.Fund(env, to, amount)
	})
	e.record("fund", err)
	return amountResult(receipt, err, amount)
}

// SetVaultYield changes the reference vault's per-second yield. Admin only.
func (e *Engine) SetVaultYield(ctx context.Context, admin crypto.Address, bps uint64) (*host.Receipt, error) {
	receipt, err := e.host.Execute(ctx, []crypto.Address{admin}, func(env *host.Env) error {
		return e.vault.SetYieldRate(env, bps)
	})
	e.record("set_vault_yield", err)
	return receipt, err
}

// Rollover deploys a new series once the current one has matured. A zero
// maturity is resolved from the configuration. It reports whether a series
// was deployed.
func (e *Engine) Rollover(ctx context.Context, admin crypto.Address, maturity uint64) (bool, *host.Receipt, error) {
	var rolled bool
	receipt, err := e.host.Execute(ctx, []crypto.Address{admin}, func(env *host.Env) error {
		target := maturity
		if target == 0 {
			target = e.cfg.RolloverMaturityAt(time.Unix(int64(env.Timestamp()), 0))
		}
		var err error
		rolled, err = e.deployer.RolloverIfExpired(env, target)
		return err
	})
	e.record("rollover", err)
	if err != nil {
		return false, nil, err
	}
	if rolled {
		e.logger.Info("series rolled over", slog.Uint64("sequence", receipt.Sequence))
	}
	return rolled, receipt, nil
}

// RefreshRate advances the high-water-mark rate of series number from the
// vault, freezing it once maturity has passed, and returns the stored rate.
// Zero selects the current series. A vault that cannot be queried aborts
// the transaction.
func (e *Engine) RefreshRate(ctx context.Context, signer crypto.Address, number uint64) (*Result, error) {
	var rate *big.Int
	receipt, err := e.execute(ctx, "refresh_rate", number, signer, func(env *host.Env, s *series.Series) error {
		var err error
		rate, err = s.Clearinghouse.ExchangeRate(env)
		return err
	})
	return amountResult(receipt, err, rate)
}

// RateView describes the exchange rate of the current series.
type RateView struct {
	Stored   *big.Int `json:"stored"`
	Upstream *big.Int `json:"upstream,omitempty"`
	Scale    uint64   `json:"scale"`
	Locked   bool     `json:"locked"`
	Maturity uint64   `json:"maturity"`
	Now      uint64   `json:"now"`
}

// Rate reports the stored rate and what the vault quotes right now. The
// upstream rate is omitted when the vault cannot be queried.
func (e *Engine) Rate(ctx context.Context) (*RateView, error) {
	view := &RateView{}
	err := e.host.View(ctx, func(env *host.Env) error {
		s, err := e.deployer.Current(env)
		if err != nil {
			return err
		}
		if view.Scale, err = e.deployer.Scale(env); err != nil {
			return err
		}
		ch := s.Clearinghouse
		if view.Stored, err = ch.StoredRate(env); err != nil {
			return err
		}
		if view.Locked, err = ch.RateLocked(env); err != nil {
			return err
		}
		if view.Maturity, err = ch.Maturity(env); err != nil {
			return err
		}
		view.Now = env.Timestamp()
		if upstream, err := e.oracle.Rate(env); err == nil {
			view.Upstream = upstream
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SeriesInfo describes the current series.
type SeriesInfo struct {
	Number          uint64          `json:"number"`
	Clearinghouse   string          `json:"clearinghouse"`
	PrincipalToken  string          `json:"principal_token"`
	YieldToken      string          `json:"yield_token"`
	Vault           string          `json:"vault"`
	VaultKind       string          `json:"vault_kind"`
	Maturity        uint64          `json:"maturity"`
	Custody         *big.Int        `json:"custody"`
	VaultAssets     *big.Int        `json:"vault_assets"`
	VaultShares     *big.Int        `json:"vault_shares"`
	VaultYieldBps   uint64          `json:"vault_yield_bps"`
	VaultIdle       uint64          `json:"vault_idle_seconds"`
	PrincipalSupply *big.Int        `json:"principal_supply"`
	YieldSupply     *big.Int        `json:"yield_supply"`
	Principal       common.Metadata `json:"principal"`
	Yield           common.Metadata `json:"yield"`
}

// Series describes the current series.
func (e *Engine) Series(ctx context.Context) (*SeriesInfo, error) {
	info := &SeriesInfo{}
	err := e.host.View(ctx, func(env *host.Env) error {
		s, err := e.deployer.Current(env)
		if err != nil {
			return err
		}
		ch := s.Clearinghouse
		info.Number = s.Number
		info.Clearinghouse = ch.Address().String()
		info.PrincipalToken = s.Principal.Address().String()
		info.YieldToken = s.Yield.Address().String()
		vaultAddr, err := ch.Vault(env)
		if err != nil {
			return err
		}
		info.Vault = vaultAddr.String()
		kind, err := ch.VaultKind(env)
		if err != nil {
			return err
		}
		info.VaultKind = kind.String()
		if info.Maturity, err = ch.Maturity(env); err != nil {
			return err
		}
		if info.Custody, err = ch.Custody(env); err != nil {
			return err
		}
		if info.VaultAssets, err = e.vault.TotalAssets(env); err != nil {
			return err
		}
		if info.VaultShares, err = e.vault.TotalShares(env); err != nil {
			return err
		}
		if info.VaultYieldBps, err = e.vault.YieldRate(env); err != nil {
			return err
		}
		if info.VaultIdle, err = e.vault.TimeElapsed(env); err != nil {
			return err
		}
		if info.PrincipalSupply, err = s.Principal.TotalSupply(env); err != nil {
			return err
		}
		if info.YieldSupply, err = s.Yield.TotalSupply(env); err != nil {
			return err
		}
		if info.Principal, err = s.Principal.Metadata(env); err != nil {
			return err
		}
		info.Yield, err = s.Yield.Metadata(env)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Account is the position of one address across the vault and the current
// series.
type Account struct {
	Address   string   `json:"address"`
	Series    uint64   `json:"series"`
	Assets    *big.Int `json:"assets"`
	Shares    *big.Int `json:"shares"`
	Principal *big.Int `json:"principal"`
	Yield     *big.Int `json:"yield"`
	Index     *big.Int `json:"index"`
	Accrued   *big.Int `json:"accrued"`
}

// Account returns the balances of addr on series number, zero meaning the
// current one. Accrued is as of the last settlement and does not include
// yield earned since.
func (e *Engine) Account(ctx context.Context, number uint64, addr crypto.Address) (*Account, error) {
	acct := &Account{Address: addr.String()}
	err := e.host.View(ctx, func(env *host.Env) error {
		var err error
		if acct.Assets, err = e.asset.Balance(env, addr); err != nil {
			return err
		}
		if acct.Shares, err = e.vault.Balance(env, addr); err != nil {
			return err
		}
		s, err := e.at(env, number)
		if err != nil {
			return err
		}
		acct.Series = s.Number
		if acct.Principal, err = s.Principal.Balance(env, addr); err != nil {
			return err
		}
		if acct.Yield, err = s.Yield.Balance(env, addr); err != nil {
			return err
		}
		if acct.Index, err = s.Yield.UserIndex(env, addr); err != nil {
			return err
		}
		acct.Accrued, err = s.Yield.AccruedYield(env, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Allowance returns spender's PT allowance over owner's balance.
func (e *Engine) Allowance(ctx context.Context, owner, spender crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := e.host.View(ctx, func(env *host.Env) error {
		s, err := e.deployer.Current(env)
		if err != nil {
			return err
		}
		out, err = s.Principal.Allowance(env, owner, spender)
		return err
	})
	return out, err
}
