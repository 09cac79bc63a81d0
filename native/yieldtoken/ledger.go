package yieldtoken

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

var (
	errNilLedger  = errors.New("yield ledger: not configured")
	errNotBound   = errors.New("yield ledger: clearinghouse not bound")
	errAdminBound = errors.New("yield ledger: bound clearinghouse is not the admin")

	keyAdmin = state.Key("admin")
	keyScale = state.Key("scale")
)

// Clearinghouse is the collaborator that owns the exchange rate and pays out
// claimed yield.
type Clearinghouse interface {
	Address() crypto.Address
	ExchangeRate(env *host.Env) (*big.Int, error)
	DistributeYield(env *host.Env, to crypto.Address, shares *big.Int) error
}

// Ledger is the yield claim ledger. Next to balances it tracks, per holder,
// the rate at which yield was last settled and the yield settled but not yet
// claimed.
type Ledger struct {
	addr          crypto.Address
	clearinghouse Clearinghouse
}

// New returns the ledger living at addr. Bind must be called before any
// operation that needs a live rate.
func New(addr crypto.Address) *Ledger {
	return &Ledger{addr: addr}
}

// Bind attaches the clearinghouse that administers the ledger.
func (l *Ledger) Bind(ch Clearinghouse) {
	if l != nil {
		l.clearinghouse = ch
	}
}

// Address returns the ledger's component address.
func (l *Ledger) Address() crypto.Address {
	if l == nil {
		return crypto.Address{}
	}
	return l.addr
}

func indexKey(addr crypto.Address) []byte {
	return state.Key("index", addr)
}

func accruedKey(addr crypto.Address) []byte {
	return state.Key("accrued", addr)
}

func (l *Ledger) enter(env *host.Env) (*host.Env, *state.Store, error) {
	if l == nil || env == nil {
		return nil, nil, errNilLedger
	}
	frame := env.Enter(l.addr)
	return frame, frame.Store(l.addr), nil
}

// Construct records the admin, metadata and the fixed-point scale of the
// rate. It can run only once.
func (l *Ledger) Construct(env *host.Env, admin crypto.Address, name, symbol string, decimals uint32, scale uint64) error {
	_, store, err := l.enter(env)
	if err != nil {
		return err
	}
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("yield ledger: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("yield ledger: admin required")
	}
	if scale == 0 {
		return fmt.Errorf("yield ledger: scale must be positive: %w", yserrors.ErrInvalidAmount)
	}
	md, err := common.NormalizeMetadata(name, symbol, decimals)
	if err != nil {
		return fmt.Errorf("yield ledger: %w", err)
	}
	if err := store.SetAddress(keyAdmin, admin); err != nil {
		return err
	}
	if err := store.SetUint64(keyScale, scale); err != nil {
		return err
	}
	return common.NewLedger(store).WriteMetadata(md)
}

func (l *Ledger) requireAdmin(frame *host.Env, store *state.Store) error {
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return yserrors.ErrNotInitialized
	}
	return frame.RequireAuth(admin)
}

// bound returns the clearinghouse after checking that it is the admin
// recorded at construction.
func (l *Ledger) bound(store *state.Store) (Clearinghouse, error) {
	if l.clearinghouse == nil {
		return nil, errNotBound
	}
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return nil, err
	}
	if admin != l.clearinghouse.Address() {
		return nil, errAdminBound
	}
	return l.clearinghouse, nil
}

func (l *Ledger) currentRate(frame *host.Env, store *state.Store) (*big.Int, error) {
	ch, err := l.bound(store)
	if err != nil {
		return nil, err
	}
	rate, err := ch.ExchangeRate(frame)
	if err != nil {
		return nil, err
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("rate %v: %w", rate, yserrors.ErrUpstreamQuery)
	}
	return rate, nil
}

// accrue settles the yield account has earned on its balance since its index
// was last moved, at rate.
func (l *Ledger) accrue(frame *host.Env, store *state.Store, account crypto.Address, rate *big.Int) error {
	index, err := store.BigInt(indexKey(account))
	if err != nil {
		return err
	}
	if index.Sign() == 0 {
		return store.SetBigInt(indexKey(account), rate)
	}
	balance, err := common.NewLedger(store).Balance(account)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 || rate.Cmp(index) <= 0 {
		return nil
	}
	scale, err := store.Uint64(keyScale)
	if err != nil {
		return err
	}
	delta, err := common.Sub(rate, index)
	if err != nil {
		return err
	}
	pending, err := common.Mul(balance, delta)
	if err != nil {
		return err
	}
	if pending, err = common.Div(pending, index); err != nil {
		return err
	}
	if pending, err = common.Div(pending, new(big.Int).SetUint64(scale)); err != nil {
		return err
	}
	accrued, err := store.BigInt(accruedKey(account))
	if err != nil {
		return err
	}
	next, err := common.Add(accrued, pending)
	if err != nil {
		return err
	}
	if err := store.SetBigInt(accruedKey(account), next); err != nil {
		return err
	}
	if err := store.SetBigInt(indexKey(account), rate); err != nil {
		return err
	}
	if pending.Sign() > 0 {
		frame.Emit(events.YieldAccrued{Token: l.addr, Account: account, Amount: pending, Index: rate})
	}
	return nil
}

// Mint credits amount to to, settling to's yield at rateHint first. Admin
// only. The hint is the rate the clearinghouse used for the same deposit.
func (l *Ledger) Mint(env *host.Env, to crypto.Address, amount, rateHint *big.Int) error {
	frame, store, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := l.requireAdmin(frame, store); err != nil {
		return fmt.Errorf("yield ledger: mint: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("yield ledger: mint: %w", err)
	}
	if err := common.RequirePositive(rateHint); err != nil {
		return fmt.Errorf("yield ledger: mint: rate hint: %w", err)
	}
	if err := l.accrue(frame, store, to, rateHint); err != nil {
		return fmt.Errorf("yield ledger: mint: %w", err)
	}
	ledger := common.NewLedger(store)
	if err := ledger.Receive(to, amount); err != nil {
		return fmt.Errorf("yield ledger: mint: %w", err)
	}
	if err := ledger.IncreaseSupply(amount); err != nil {
		return fmt.Errorf("yield ledger: mint: %w", err)
	}
	frame.Emit(events.TokenMint{Token: l.addr, Account: to, Amount: amount})
	return nil
}

// Transfer moves amount from from to to after settling both parties against
// their pre-transfer balances.
func (l *Ledger) Transfer(env *host.Env, from, to crypto.Address, amount *big.Int) error {
	frame, store, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	ledger := common.NewLedger(store)
	balance, err := ledger.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("yield ledger: transfer: %s holds %s, needs %s: %w", from, balance, amount, yserrors.ErrInsufficientBalance)
	}
	rate, err := l.currentRate(frame, store)
	if err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	if err := l.accrue(frame, store, from, rate); err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	if err := l.accrue(frame, store, to, rate); err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	if err := ledger.Move(from, to, amount); err != nil {
		return fmt.Errorf("yield ledger: transfer: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: l.addr, From: from, To: to, Amount: amount})
	return nil
}

// Burn destroys amount of from's balance after settling from's yield.
func (l *Ledger) Burn(env *host.Env, from crypto.Address, amount *big.Int) error {
	frame, store, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	ledger := common.NewLedger(store)
	balance, err := ledger.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("yield ledger: burn: %s holds %s, needs %s: %w", from, balance, amount, yserrors.ErrInsufficientBalance)
	}
	rate, err := l.currentRate(frame, store)
	if err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	if err := l.accrue(frame, store, from, rate); err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	if err := ledger.Spend(from, amount); err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	if err := ledger.DecreaseSupply(amount); err != nil {
		return fmt.Errorf("yield ledger: burn: %w", err)
	}
	frame.Emit(events.TokenBurn{Token: l.addr, Account: from, Amount: amount})
	return nil
}

// ClaimYield settles user's yield and has the clearinghouse pay it out in
// vault shares. It returns the amount paid, zero when nothing was owed.
func (l *Ledger) ClaimYield(env *host.Env, user crypto.Address) (*big.Int, error) {
	frame, store, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireAuth(user); err != nil {
		return nil, fmt.Errorf("yield ledger: claim: %w", err)
	}
	rate, err := l.currentRate(frame, store)
	if err != nil {
		return nil, fmt.Errorf("yield ledger: claim: %w", err)
	}
	if err := l.accrue(frame, store, user, rate); err != nil {
		return nil, fmt.Errorf("yield ledger: claim: %w", err)
	}
	claimable, err := store.BigInt(accruedKey(user))
	if err != nil {
		return nil, err
	}
	if claimable.Sign() == 0 {
		return big.NewInt(0), nil
	}
	// Cleared before the payout call.
	if err := store.Delete(accruedKey(user)); err != nil {
		return nil, err
	}
	if err := l.clearinghouse.DistributeYield(frame, user, claimable); err != nil {
		return nil, fmt.Errorf("yield ledger: claim: %w", err)
	}
	frame.Emit(events.YieldClaimed{Token: l.addr, Account: user, Amount: claimable})
	return claimable, nil
}

// Approve is not offered by the yield ledger.
func (l *Ledger) Approve(*host.Env, crypto.Address, crypto.Address, *big.Int, uint64) error {
	return fmt.Errorf("yield ledger: approve: %w", yserrors.ErrUnsupported)
}

// TransferFrom is not offered by the yield ledger.
func (l *Ledger) TransferFrom(*host.Env, crypto.Address, crypto.Address, crypto.Address, *big.Int) error {
	return fmt.Errorf("yield ledger: transfer from: %w", yserrors.ErrUnsupported)
}

// Allowance is always zero.
func (l *Ledger) Allowance(*host.Env, crypto.Address, crypto.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).Balance(addr)
}

// UserIndex returns the rate at which addr was last settled, zero if the
// account was never touched.
func (l *Ledger) UserIndex(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return store.BigInt(indexKey(addr))
}

// AccruedYield returns the settled, unclaimed yield of addr. It does not
// settle against the current rate.
func (l *Ledger) AccruedYield(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return store.BigInt(accruedKey(addr))
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply(env *host.Env) (*big.Int, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).TotalSupply()
}

// Metadata returns name, symbol and decimals.
func (l *Ledger) Metadata(env *host.Env) (common.Metadata, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return common.Metadata{}, err
	}
	return common.NewLedger(store).ReadMetadata()
}

// Admin returns the minting authority.
func (l *Ledger) Admin(env *host.Env) (crypto.Address, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return store.Address(keyAdmin)
}

// Scale returns the fixed-point scale of the rate.
func (l *Ledger) Scale(env *host.Env) (uint64, error) {
	_, store, err := l.enter(env)
	if err != nil {
		return 0, err
	}
	return store.Uint64(keyScale)
}
