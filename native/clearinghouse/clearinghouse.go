package clearinghouse

import (
	"errors"
	"fmt"
	"math/big"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/events"
	"yieldsplit/core/host"
	"yieldsplit/core/state"
	"yieldsplit/crypto"
	"yieldsplit/native/common"
	"yieldsplit/native/oracle"
)

var (
	errNilClearinghouse = errors.New("clearinghouse: not configured")
	errNotBootstrapped  = errors.New("clearinghouse: ledgers not bootstrapped")
	errLedgerMismatch   = errors.New("clearinghouse: ledger address does not match the wired ledger")
	errKindMismatch     = errors.New("clearinghouse: vault kind does not match the oracle")
	errVaultMismatch    = errors.New("clearinghouse: vault address does not match the share token")

	keyAdmin          = state.Key("admin")
	keyVault          = state.Key("vault")
	keyVaultKind      = state.Key("vault_kind")
	keyMaturity       = state.Key("maturity")
	keyExchangeRate   = state.Key("exchange_rate")
	keyRateLocked     = state.Key("rate_locked")
	keyPrincipalToken = state.Key("principal_token")
	keyYieldToken     = state.Key("yield_token")
)

// RateOracle reads the live value of one vault share.
type RateOracle interface {
	Kind() oracle.VaultKind
	Rate(env *host.Env) (*big.Int, error)
}

// ShareToken is the vault share ledger the clearinghouse custodies.
type ShareToken interface {
	Address() crypto.Address
	Transfer(env *host.Env, from, to crypto.Address, amount *big.Int) error
	Balance(env *host.Env, addr crypto.Address) (*big.Int, error)
}

// PrincipalLedger is the PT surface the clearinghouse administers.
type PrincipalLedger interface {
	Address() crypto.Address
	Mint(env *host.Env, to crypto.Address, amount *big.Int) error
	Burn(env *host.Env, from crypto.Address, amount *big.Int) error
}

// YieldLedger is the YT surface the clearinghouse administers.
type YieldLedger interface {
	Address() crypto.Address
	Mint(env *host.Env, to crypto.Address, amount, rateHint *big.Int) error
}

// Collaborators are the components a clearinghouse calls into.
type Collaborators struct {
	Oracle    RateOracle
	Shares    ShareToken
	Principal PrincipalLedger
	Yield     YieldLedger
}

// Clearinghouse owns the high-water-mark exchange rate of one maturity
// series and coordinates deposits, yield payouts and principal redemption.
type Clearinghouse struct {
	addr crypto.Address
	deps Collaborators
}

// New returns the clearinghouse living at addr.
func New(addr crypto.Address, deps Collaborators) *Clearinghouse {
	return &Clearinghouse{addr: addr, deps: deps}
}

// Address returns the clearinghouse's component address.
func (c *Clearinghouse) Address() crypto.Address {
	if c == nil {
		return crypto.Address{}
	}
	return c.addr
}

func (c *Clearinghouse) enter(env *host.Env) (*host.Env, *state.Store, error) {
	if c == nil || env == nil || c.deps.Oracle == nil || c.deps.Shares == nil {
		return nil, nil, errNilClearinghouse
	}
	frame := env.Enter(c.addr)
	return frame, frame.Store(c.addr), nil
}

func (c *Clearinghouse) requireConstructed(store *state.Store) error {
	ok, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("clearinghouse: %w", yserrors.ErrNotInitialized)
	}
	return nil
}

// Construct records the series parameters and seeds the exchange rate from
// the vault. It fails when the vault cannot be queried.
func (c *Clearinghouse) Construct(env *host.Env, admin, vault crypto.Address, kind oracle.VaultKind, maturity uint64) error {
	frame, store, err := c.enter(env)
	if err != nil {
		return err
	}
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("clearinghouse: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("clearinghouse: admin required")
	}
	if vault != c.deps.Shares.Address() {
		return errVaultMismatch
	}
	if kind != c.deps.Oracle.Kind() {
		return errKindMismatch
	}
	rate, err := c.deps.Oracle.Rate(frame)
	if err != nil {
		return fmt.Errorf("clearinghouse: construct: %w", err)
	}
	if err := store.SetAddress(keyAdmin, admin); err != nil {
		return err
	}
	if err := store.SetAddress(keyVault, vault); err != nil {
		return err
	}
	if err := store.SetUint64(keyVaultKind, uint64(kind)); err != nil {
		return err
	}
	if err := store.SetUint64(keyMaturity, maturity); err != nil {
		return err
	}
	return store.SetBigInt(keyExchangeRate, rate)
}

// BootstrapTokens records the PT and YT ledgers. Admin only, once.
func (c *Clearinghouse) BootstrapTokens(env *host.Env, principalToken, yieldToken crypto.Address) error {
	frame, store, err := c.enter(env)
	if err != nil {
		return err
	}
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return fmt.Errorf("clearinghouse: bootstrap: %w", yserrors.ErrNotInitialized)
	}
	if err := frame.RequireAuth(admin); err != nil {
		return fmt.Errorf("clearinghouse: bootstrap: %w", err)
	}
	done, err := store.Has(keyPrincipalToken)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("clearinghouse: bootstrap: %w", yserrors.ErrAlreadyInitialized)
	}
	if c.deps.Principal == nil || c.deps.Yield == nil ||
		principalToken != c.deps.Principal.Address() || yieldToken != c.deps.Yield.Address() {
		return errLedgerMismatch
	}
	if err := store.SetAddress(keyPrincipalToken, principalToken); err != nil {
		return err
	}
	if err := store.SetAddress(keyYieldToken, yieldToken); err != nil {
		return err
	}
	frame.Emit(events.Bootstrapped{Clearinghouse: c.addr, PrincipalToken: principalToken, YieldToken: yieldToken})
	return nil
}

func (c *Clearinghouse) requireBootstrapped(store *state.Store) error {
	ok, err := store.Has(keyPrincipalToken)
	if err != nil {
		return err
	}
	if !ok {
		return errNotBootstrapped
	}
	return nil
}

// refreshRate advances the stored rate to the vault's rate when that is
// higher, then freezes it once maturity has been reached. It returns the
// stored rate.
func (c *Clearinghouse) refreshRate(frame *host.Env, store *state.Store) (*big.Int, error) {
	stored, err := store.BigInt(keyExchangeRate)
	if err != nil {
		return nil, err
	}
	locked, err := store.Bool(keyRateLocked)
	if err != nil {
		return nil, err
	}
	if locked {
		return stored, nil
	}
	live, err := c.deps.Oracle.Rate(frame)
	if err != nil {
		return nil, err
	}
	if live.Cmp(stored) > 0 {
		if err := store.SetBigInt(keyExchangeRate, live); err != nil {
			return nil, err
		}
		frame.Emit(events.RateUpdated{Clearinghouse: c.addr, Previous: stored, Rate: live})
		stored = live
	}
	maturity, err := store.Uint64(keyMaturity)
	if err != nil {
		return nil, err
	}
	if now := frame.Timestamp(); now >= maturity {
		if err := store.SetBool(keyRateLocked, true); err != nil {
			return nil, err
		}
		frame.Emit(events.RateLocked{Clearinghouse: c.addr, Rate: stored, Maturity: maturity, LockedAt: now})
	}
	return stored, nil
}

// ExchangeRate refreshes and returns the protocol rate. Every call may
// advance the high-water mark or freeze it.
func (c *Clearinghouse) ExchangeRate(env *host.Env) (*big.Int, error) {
	frame, store, err := c.enter(env)
	if err != nil {
		return nil, err
	}
	if err := c.requireConstructed(store); err != nil {
		return nil, err
	}
	rate, err := c.refreshRate(frame, store)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse: exchange rate: %w", err)
	}
	return rate, nil
}

// Deposit takes shares of from into custody and mints shares*rate of both PT
// and YT to from. It returns the minted amount.
func (c *Clearinghouse) Deposit(env *host.Env, from crypto.Address, shares *big.Int) (*big.Int, error) {
	frame, store, err := c.enter(env)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireAuth(from); err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	if err := common.RequirePositive(shares); err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	if err := c.requireBootstrapped(store); err != nil {
		return nil, err
	}
	rate, err := c.refreshRate(frame, store)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	minted, err := common.Mul(shares, rate)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	if err := c.deps.Shares.Transfer(frame, from, c.addr, shares); err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	if err := c.deps.Principal.Mint(frame, from, minted); err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	if err := c.deps.Yield.Mint(frame, from, minted, rate); err != nil {
		return nil, fmt.Errorf("clearinghouse: deposit: %w", err)
	}
	frame.Emit(events.Deposit{Clearinghouse: c.addr, Account: from, Shares: shares, Minted: minted, Rate: rate})
	return minted, nil
}

// DistributeYield pays shares out of custody to to. Only the yield ledger
// may call it; non-positive amounts are ignored.
func (c *Clearinghouse) DistributeYield(env *host.Env, to crypto.Address, shares *big.Int) error {
	frame, store, err := c.enter(env)
	if err != nil {
		return err
	}
	yieldToken, err := store.Address(keyYieldToken)
	if err != nil {
		return err
	}
	if yieldToken.IsZero() {
		return errNotBootstrapped
	}
	if err := frame.RequireAuth(yieldToken); err != nil {
		return fmt.Errorf("clearinghouse: distribute: %w", err)
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil
	}
	if _, err := c.refreshRate(frame, store); err != nil {
		return fmt.Errorf("clearinghouse: distribute: %w", err)
	}
	if err := c.deps.Shares.Transfer(frame, c.addr, to, shares); err != nil {
		return fmt.Errorf("clearinghouse: distribute: %w", err)
	}
	frame.Emit(events.YieldDistributed{Clearinghouse: c.addr, Account: to, Shares: shares})
	return nil
}

// RedeemPrincipal burns principal PT of from after maturity and returns
// principal/rate shares at the frozen rate, truncating. It returns the
// shares paid out.
func (c *Clearinghouse) RedeemPrincipal(env *host.Env, from crypto.Address, principal *big.Int) (*big.Int, error) {
	frame, store, err := c.enter(env)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireAuth(from); err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	if err := common.RequirePositive(principal); err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	if err := c.requireBootstrapped(store); err != nil {
		return nil, err
	}
	maturity, err := store.Uint64(keyMaturity)
	if err != nil {
		return nil, err
	}
	if now := frame.Timestamp(); now < maturity {
		return nil, fmt.Errorf("clearinghouse: redeem: %d seconds left: %w", maturity-now, yserrors.ErrMaturityNotReached)
	}
	rate, err := c.refreshRate(frame, store)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	shares, err := common.Div(principal, rate)
	if err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	if err := c.deps.Principal.Burn(frame, from, principal); err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	if err := c.deps.Shares.Transfer(frame, c.addr, from, shares); err != nil {
		return nil, fmt.Errorf("clearinghouse: redeem: %w", err)
	}
	frame.Emit(events.PrincipalRedeemed{Clearinghouse: c.addr, Account: from, Principal: principal, Shares: shares, Rate: rate})
	return shares, nil
}

// StoredRate returns the stored rate without refreshing it.
func (c *Clearinghouse) StoredRate(env *host.Env) (*big.Int, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return nil, err
	}
	return store.BigInt(keyExchangeRate)
}

// RateLocked reports whether the rate is frozen.
func (c *Clearinghouse) RateLocked(env *host.Env) (bool, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return false, err
	}
	return store.Bool(keyRateLocked)
}

// Maturity returns the maturity timestamp in unix seconds.
func (c *Clearinghouse) Maturity(env *host.Env) (uint64, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return 0, err
	}
	return store.Uint64(keyMaturity)
}

// Vault returns the vault share token address.
func (c *Clearinghouse) Vault(env *host.Env) (crypto.Address, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return store.Address(keyVault)
}

// VaultKind returns the rate convention recorded at construction.
func (c *Clearinghouse) VaultKind(env *host.Env) (oracle.VaultKind, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return 0, err
	}
	kind, err := store.Uint64(keyVaultKind)
	if err != nil {
		return 0, err
	}
	return oracle.VaultKind(kind), nil
}

// Admin returns the bootstrap authority.
func (c *Clearinghouse) Admin(env *host.Env) (crypto.Address, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return store.Address(keyAdmin)
}

// PrincipalToken returns the PT ledger address, zero before bootstrap.
func (c *Clearinghouse) PrincipalToken(env *host.Env) (crypto.Address, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return store.Address(keyPrincipalToken)
}

// YieldToken returns the YT ledger address, zero before bootstrap.
func (c *Clearinghouse) YieldToken(env *host.Env) (crypto.Address, error) {
	_, store, err := c.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return store.Address(keyYieldToken)
}

// Custody returns the vault shares held by the clearinghouse.
func (c *Clearinghouse) Custody(env *host.Env) (*big.Int, error) {
	frame, _, err := c.enter(env)
	if err != nil {
		return nil, err
	}
	return c.deps.Shares.Balance(frame, c.addr)
}
