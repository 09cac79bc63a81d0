package vault

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
)

const (
	// InitialVirtualBalance seeds both assets and shares so the rate starts
	// at exactly one.
	InitialVirtualBalance = 1_000_000_000
	// BasisPoints is the denominator of the yield rate.
	BasisPoints = 10_000
	// DefaultScale is the fixed-point scale of reported rates.
	DefaultScale = 1_000_000

	ShareName     = "Vault Share Token"
	ShareSymbol   = "SHARE"
	ShareDecimals = 7
)

var (
	errNilVault = errors.New("vault: not configured")

	keyAsset         = state.Key("asset")
	keyYieldBps      = state.Key("yield_bps")
	keyLastUpdate    = state.Key("last_update")
	keyVirtualAssets = state.Key("virtual_assets")
	keyVirtualShares = state.Key("virtual_shares")
	keyAccrued       = state.Key("accrued")
	keyScale         = state.Key("scale")

	basisPoints = big.NewInt(BasisPoints)
)

// Vault is a reference yield-bearing vault. Its assets grow linearly with
// time at a configurable rate in basis points per second; growth is folded
// into a virtual balance whenever the vault is touched, so the reported rate
// never decreases. Its shares are an ordinary transferable ledger.
type Vault struct {
	addr  crypto.Address
	asset *Asset
}

// New returns the vault at addr holding asset.
func New(addr crypto.Address, asset *Asset) *Vault {
	return &Vault{addr: addr, asset: asset}
}

// Address returns the vault's component address.
func (v *Vault) Address() crypto.Address {
	if v == nil {
		return crypto.Address{}
	}
	return v.addr
}

// Asset returns the underlying asset ledger.
func (v *Vault) Asset() *Asset {
	if v == nil {
		return nil
	}
	return v.asset
}

func (v *Vault) enter(env *host.Env) (*host.Env, *state.Store, error) {
	if v == nil || v.asset == nil || env == nil {
		return nil, nil, errNilVault
	}
	frame := env.Enter(v.addr)
	return frame, frame.Store(v.addr), nil
}

// Construct initializes the vault. scale of zero selects DefaultScale.
func (v *Vault) Construct(env *host.Env, admin crypto.Address, yieldBps, scale uint64) error {
	frame, store, err := v.enter(env)
	if err != nil {
		return err
	}
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("vault: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("vault: admin required")
	}
	if scale == 0 {
		scale = DefaultScale
	}
	initial := big.NewInt(InitialVirtualBalance)
	writes := []func() error{
		func() error { return store.SetAddress(keyAdmin, admin) },
		func() error { return store.SetAddress(keyAsset, v.asset.Address()) },
		func() error { return store.SetUint64(keyYieldBps, yieldBps) },
		func() error { return store.SetUint64(keyScale, scale) },
		func() error { return store.SetUint64(keyLastUpdate, frame.Timestamp()) },
		func() error { return store.SetBigInt(keyVirtualAssets, initial) },
		func() error { return store.SetBigInt(keyVirtualShares, initial) },
		func() error {
			return common.NewLedger(store).WriteMetadata(common.Metadata{Name: ShareName, Symbol: ShareSymbol, Decimals: ShareDecimals})
		},
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}
	return nil
}

// pendingYield returns the growth of principal since the last checkpoint.
func (v *Vault) pendingYield(frame *host.Env, store *state.Store, principal *big.Int) (*big.Int, error) {
	last, err := store.Uint64(keyLastUpdate)
	if err != nil {
		return nil, err
	}
	now := frame.Timestamp()
	if now <= last {
		return big.NewInt(0), nil
	}
	bps, err := store.Uint64(keyYieldBps)
	if err != nil {
		return nil, err
	}
	growth, err := common.Mul(principal, new(big.Int).SetUint64(bps))
	if err != nil {
		return nil, err
	}
	if growth, err = common.Mul(growth, new(big.Int).SetUint64(now-last)); err != nil {
		return nil, err
	}
	return common.Div(growth, basisPoints)
}

// principal is held assets plus the virtual balance plus folded yield.
func (v *Vault) principal(frame *host.Env, store *state.Store) (*big.Int, error) {
	held, err := v.asset.Balance(frame, v.addr)
	if err != nil {
		return nil, err
	}
	virtual, err := store.BigInt(keyVirtualAssets)
	if err != nil {
		return nil, err
	}
	accrued, err := store.BigInt(keyAccrued)
	if err != nil {
		return nil, err
	}
	sum, err := common.Add(held, virtual)
	if err != nil {
		return nil, err
	}
	return common.Add(sum, accrued)
}

func (v *Vault) totalAssets(frame *host.Env, store *state.Store) (*big.Int, error) {
	principal, err := v.principal(frame, store)
	if err != nil {
		return nil, err
	}
	growth, err := v.pendingYield(frame, store, principal)
	if err != nil {
		return nil, err
	}
	return common.Add(principal, growth)
}

func (v *Vault) totalShares(store *state.Store) (*big.Int, error) {
	supply, err := common.NewLedger(store).TotalSupply()
	if err != nil {
		return nil, err
	}
	virtual, err := store.BigInt(keyVirtualShares)
	if err != nil {
		return nil, err
	}
	return common.Add(supply, virtual)
}

// checkpoint folds pending growth into the accrued balance and restarts the
// clock.
func (v *Vault) checkpoint(frame *host.Env, store *state.Store) error {
	principal, err := v.principal(frame, store)
	if err != nil {
		return err
	}
	growth, err := v.pendingYield(frame, store, principal)
	if err != nil {
		return err
	}
	if growth.Sign() > 0 {
		accrued, err := store.BigInt(keyAccrued)
		if err != nil {
			return err
		}
		next, err := common.Add(accrued, growth)
		if err != nil {
			return err
		}
		if err := store.SetBigInt(keyAccrued, next); err != nil {
			return err
		}
	}
	return store.SetUint64(keyLastUpdate, frame.Timestamp())
}

func (v *Vault) requireConstructed(store *state.Store) error {
	ok, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault: %w", yserrors.ErrNotInitialized)
	}
	return nil
}

// TotalAssets returns the assets backing all shares, including growth not yet
// folded in.
func (v *Vault) TotalAssets(env *host.Env) (*big.Int, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	if err := v.requireConstructed(store); err != nil {
		return nil, err
	}
	return v.totalAssets(frame, store)
}

// TotalShares returns issued plus virtual shares.
func (v *Vault) TotalShares(env *host.Env) (*big.Int, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	return v.totalShares(store)
}

// ConvertToAssets returns the value of shares in assets, multiplied by the
// vault's rate scale. For one share this is the exchange rate.
func (v *Vault) ConvertToAssets(env *host.Env, shares *big.Int) (*big.Int, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	if err := v.requireConstructed(store); err != nil {
		return nil, err
	}
	if err := common.RequireNonNegative(shares); err != nil {
		return nil, fmt.Errorf("vault: convert: %w", err)
	}
	scale, err := store.Uint64(keyScale)
	if err != nil {
		return nil, err
	}
	totalShares, err := v.totalShares(store)
	if err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 {
		return new(big.Int).Mul(shares, new(big.Int).SetUint64(scale)), nil
	}
	assets, err := v.totalAssets(frame, store)
	if err != nil {
		return nil, err
	}
	value, err := common.Mul(shares, assets)
	if err != nil {
		return nil, err
	}
	if value, err = common.Mul(value, new(big.Int).SetUint64(scale)); err != nil {
		return nil, err
	}
	return common.Div(value, totalShares)
}

// AssetAmountsPerShares reports the scaled value of shares per underlying
// asset. The vault holds a single asset.
func (v *Vault) AssetAmountsPerShares(env *host.Env, shares *big.Int) ([]*big.Int, error) {
	value, err := v.ConvertToAssets(env, shares)
	if err != nil {
		return nil, err
	}
	return []*big.Int{value}, nil
}

// ExchangeRate returns the scaled value of one share.
func (v *Vault) ExchangeRate(env *host.Env) (*big.Int, error) {
	return v.ConvertToAssets(env, big.NewInt(1))
}

// Deposit moves assets from from into the vault and mints shares at the
// current rate. It returns the minted shares.
func (v *Vault) Deposit(env *host.Env, from crypto.Address, assets *big.Int) (*big.Int, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	if err := v.requireConstructed(store); err != nil {
		return nil, err
	}
	if err := frame.RequireAuth(from); err != nil {
		return nil, fmt.Errorf("vault: deposit: %w", err)
	}
	if err := common.RequirePositive(assets); err != nil {
		return nil, fmt.Errorf("vault: deposit: %w", err)
	}
	if err := v.checkpoint(frame, store); err != nil {
		return nil, err
	}
	totalAssets, err := v.totalAssets(frame, store)
	if err != nil {
		return nil, err
	}
	totalShares, err := v.totalShares(store)
	if err != nil {
		return nil, err
	}
	shares := new(big.Int).Set(assets)
	if totalShares.Sign() > 0 && totalAssets.Sign() > 0 {
		if shares, err = common.Mul(assets, totalShares); err != nil {
			return nil, err
		}
		if shares, err = common.Div(shares, totalAssets); err != nil {
			return nil, err
		}
	}
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("vault: deposit of %s assets buys no shares: %w", assets, yserrors.ErrInvalidAmount)
	}
	if err := v.asset.Transfer(frame, from, v.addr, assets); err != nil {
		return nil, fmt.Errorf("vault: deposit: %w", err)
	}
	ledger := common.NewLedger(store)
	if err := ledger.Receive(from, shares); err != nil {
		return nil, err
	}
	if err := ledger.IncreaseSupply(shares); err != nil {
		return nil, err
	}
	frame.Emit(events.VaultDeposit{Vault: v.addr, Account: from, Assets: assets, Shares: shares})
	return shares, nil
}

// Withdraw burns shares of to and pays out their value in assets. The vault
// can only pay out assets it actually holds.
func (v *Vault) Withdraw(env *host.Env, to crypto.Address, shares *big.Int) (*big.Int, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	if err := v.requireConstructed(store); err != nil {
		return nil, err
	}
	if err := frame.RequireAuth(to); err != nil {
		return nil, fmt.Errorf("vault: withdraw: %w", err)
	}
	if err := common.RequirePositive(shares); err != nil {
		return nil, fmt.Errorf("vault: withdraw: %w", err)
	}
	if err := v.checkpoint(frame, store); err != nil {
		return nil, err
	}
	ledger := common.NewLedger(store)
	balance, err := ledger.Balance(to)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(shares) < 0 {
		return nil, fmt.Errorf("vault: withdraw: %s holds %s shares, needs %s: %w", to, balance, shares, yserrors.ErrInsufficientBalance)
	}
	totalAssets, err := v.totalAssets(frame, store)
	if err != nil {
		return nil, err
	}
	totalShares, err := v.totalShares(store)
	if err != nil {
		return nil, err
	}
	assets, err := common.Mul(shares, totalAssets)
	if err != nil {
		return nil, err
	}
	if assets, err = common.Div(assets, totalShares); err != nil {
		return nil, err
	}
	held, err := v.asset.Balance(frame, v.addr)
	if err != nil {
		return nil, err
	}
	if held.Cmp(assets) < 0 {
		return nil, fmt.Errorf("vault: withdraw: holds %s assets, owes %s: %w", held, assets, yserrors.ErrInsufficientBalance)
	}
	if err := ledger.Spend(to, shares); err != nil {
		return nil, err
	}
	if err := ledger.DecreaseSupply(shares); err != nil {
		return nil, err
	}
	if err := v.asset.Transfer(frame, v.addr, to, assets); err != nil {
		return nil, fmt.Errorf("vault: withdraw: %w", err)
	}
	frame.Emit(events.VaultWithdraw{Vault: v.addr, Account: to, Assets: assets, Shares: shares})
	return assets, nil
}

// SetYieldRate changes the growth rate. Growth up to now is folded in at the
// old rate first. Admin only.
func (v *Vault) SetYieldRate(env *host.Env, bps uint64) error {
	frame, store, err := v.enter(env)
	if err != nil {
		return err
	}
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return fmt.Errorf("vault: %w", yserrors.ErrNotInitialized)
	}
	if err := frame.RequireAuth(admin); err != nil {
		return fmt.Errorf("vault: set yield rate: %w", err)
	}
	if err := v.checkpoint(frame, store); err != nil {
		return err
	}
	return store.SetUint64(keyYieldBps, bps)
}

// Constructed reports whether Construct has run.
func (v *Vault) Constructed(env *host.Env) (bool, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return false, err
	}
	return store.Has(keyAdmin)
}

// YieldRate returns the growth rate in basis points per second.
func (v *Vault) YieldRate(env *host.Env) (uint64, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return 0, err
	}
	return store.Uint64(keyYieldBps)
}

// Scale returns the fixed-point scale of reported rates.
func (v *Vault) Scale(env *host.Env) (uint64, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return 0, err
	}
	if err := v.requireConstructed(store); err != nil {
		return 0, err
	}
	return store.Uint64(keyScale)
}

// TimeElapsed returns the seconds since the vault was last touched.
func (v *Vault) TimeElapsed(env *host.Env) (uint64, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return 0, err
	}
	last, err := store.Uint64(keyLastUpdate)
	if err != nil {
		return 0, err
	}
	if now := frame.Timestamp(); now > last {
		return now - last, nil
	}
	return 0, nil
}

// Transfer moves shares from from to to. Requires from's authorization.
func (v *Vault) Transfer(env *host.Env, from, to crypto.Address, amount *big.Int) error {
	frame, store, err := v.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("vault: transfer: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("vault: transfer: %w", err)
	}
	if err := common.NewLedger(store).Move(from, to, amount); err != nil {
		return fmt.Errorf("vault: transfer: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: v.addr, From: from, To: to, Amount: amount})
	return nil
}

// Approve lets spender move up to amount of from's shares.
func (v *Vault) Approve(env *host.Env, from, spender crypto.Address, amount *big.Int, expiresAt uint64) error {
	frame, store, err := v.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("vault: approve: %w", err)
	}
	if err := common.NewLedger(store).SetAllowance(from, spender, amount, expiresAt, frame.Timestamp()); err != nil {
		return fmt.Errorf("vault: approve: %w", err)
	}
	frame.Emit(events.TokenApprove{Token: v.addr, Owner: from, Spender: spender, Amount: amount, ExpiresAt: expiresAt})
	return nil
}

// Allowance returns the live share allowance of spender over from.
func (v *Vault) Allowance(env *host.Env, from, spender crypto.Address) (*big.Int, error) {
	frame, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).Allowance(from, spender, frame.Timestamp())
}

// TransferFrom moves shares using spender's allowance.
func (v *Vault) TransferFrom(env *host.Env, spender, from, to crypto.Address, amount *big.Int) error {
	frame, store, err := v.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(spender); err != nil {
		return fmt.Errorf("vault: transfer from: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("vault: transfer from: %w", err)
	}
	ledger := common.NewLedger(store)
	if err := ledger.SpendAllowance(from, spender, amount, frame.Timestamp()); err != nil {
		return fmt.Errorf("vault: transfer from: %w", err)
	}
	if err := ledger.Move(from, to, amount); err != nil {
		return fmt.Errorf("vault: transfer from: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: v.addr, From: from, To: to, Amount: amount})
	return nil
}

// Balance returns the share balance of addr.
func (v *Vault) Balance(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).Balance(addr)
}

// Metadata returns the share token metadata.
func (v *Vault) Metadata(env *host.Env) (common.Metadata, error) {
	_, store, err := v.enter(env)
	if err != nil {
		return common.Metadata{}, err
	}
	return common.NewLedger(store).ReadMetadata()
}
