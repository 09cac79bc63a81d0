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

var (
	errNilAsset = errors.New("asset ledger: not configured")

	keyAdmin = state.Key("admin")
)

// Asset is the underlying asset the vault accepts. Its admin (the operator)
// funds accounts; holders move their own balances.
type Asset struct {
	addr crypto.Address
}

// NewAsset returns the asset ledger living at addr.
func NewAsset(addr crypto.Address) *Asset {
	return &Asset{addr: addr}
}

// Address returns the asset's component address.
func (a *Asset) Address() crypto.Address {
	if a == nil {
		return crypto.Address{}
	}
	return a.addr
}

func (a *Asset) enter(env *host.Env) (*host.Env, *state.Store, error) {
	if a == nil || env == nil {
		return nil, nil, errNilAsset
	}
	frame := env.Enter(a.addr)
	return frame, frame.Store(a.addr), nil
}

// Construct records the funding admin and metadata.
func (a *Asset) Construct(env *host.Env, admin crypto.Address, name, symbol string, decimals uint32) error {
	_, store, err := a.enter(env)
	if err != nil {
		return err
	}
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("asset ledger: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("asset ledger: admin required")
	}
	md, err := common.NormalizeMetadata(name, symbol, decimals)
	if err != nil {
		return fmt.Errorf("asset ledger: %w", err)
	}
	if err := store.SetAddress(keyAdmin, admin); err != nil {
		return err
	}
	return common.NewLedger(store).WriteMetadata(md)
}

// Fund mints amount of the asset to to. Admin only.
func (a *Asset) Fund(env *host.Env, to crypto.Address, amount *big.Int) error {
	frame, store, err := a.enter(env)
	if err != nil {
		return err
	}
	admin, err := store.Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return fmt.Errorf("asset ledger: fund: %w", yserrors.ErrNotInitialized)
	}
	if err := frame.RequireAuth(admin); err != nil {
		return fmt.Errorf("asset ledger: fund: %w", err)
	}
	if err := common.RequirePositive(amount); err != nil {
		return fmt.Errorf("asset ledger: fund: %w", err)
	}
	ledger := common.NewLedger(store)
	if err := ledger.Receive(to, amount); err != nil {
		return fmt.Errorf("asset ledger: fund: %w", err)
	}
	if err := ledger.IncreaseSupply(amount); err != nil {
		return fmt.Errorf("asset ledger: fund: %w", err)
	}
	frame.Emit(events.TokenMint{Token: a.addr, Account: to, Amount: amount})
	return nil
}

// Transfer moves amount from from to to. Requires from's authorization.
func (a *Asset) Transfer(env *host.Env, from, to crypto.Address, amount *big.Int) error {
	frame, store, err := a.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("asset ledger: transfer: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("asset ledger: transfer: %w", err)
	}
	if err := common.NewLedger(store).Move(from, to, amount); err != nil {
		return fmt.Errorf("asset ledger: transfer: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: a.addr, From: from, To: to, Amount: amount})
	return nil
}

// Balance returns the asset balance of addr.
func (a *Asset) Balance(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, store, err := a.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).Balance(addr)
}

// TotalSupply returns the funded supply.
func (a *Asset) TotalSupply(env *host.Env) (*big.Int, error) {
	_, store, err := a.enter(env)
	if err != nil {
		return nil, err
	}
	return common.NewLedger(store).TotalSupply()
}

// Metadata returns name, symbol and decimals.
func (a *Asset) Metadata(env *host.Env) (common.Metadata, error) {
	_, store, err := a.enter(env)
	if err != nil {
		return common.Metadata{}, err
	}
	return common.NewLedger(store).ReadMetadata()
}
