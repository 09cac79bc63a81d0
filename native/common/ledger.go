package common

import (
	"fmt"
	"math/big"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/state"
	"yieldsplit/crypto"
)

var (
	keyTotalSupply = state.Key("total_supply")
)

// Ledger implements the balance, supply and allowance bookkeeping shared by
// the fungible ledgers. It performs no authorization; callers do.
type Ledger struct {
	store *state.Store
}

// NewLedger wraps the component store.
func NewLedger(store *state.Store) Ledger {
	return Ledger{store: store}
}

func balanceKey(addr crypto.Address) []byte {
	return state.Key("balance", addr)
}

func allowanceKey(owner, spender crypto.Address) []byte {
	return state.Key("allowance", owner, spender)
}

// Balance returns the balance of addr, zero when never credited.
func (l Ledger) Balance(addr crypto.Address) (*big.Int, error) {
	return l.store.BigInt(balanceKey(addr))
}

// SetBalance overwrites the balance of addr.
func (l Ledger) SetBalance(addr crypto.Address, amount *big.Int) error {
	return l.store.SetBigInt(balanceKey(addr), amount)
}

// TotalSupply returns the sum of all balances.
func (l Ledger) TotalSupply() (*big.Int, error) {
	return l.store.BigInt(keyTotalSupply)
}

// Receive credits amount to addr.
func (l Ledger) Receive(addr crypto.Address, amount *big.Int) error {
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	next, err := Add(balance, amount)
	if err != nil {
		return err
	}
	return l.SetBalance(addr, next)
}

// Spend debits amount from addr, failing with ErrInsufficientBalance.
func (l Ledger) Spend(addr crypto.Address, amount *big.Int) error {
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s, needs %s: %w", addr, balance, amount, yserrors.ErrInsufficientBalance)
	}
	next, err := Sub(balance, amount)
	if err != nil {
		return err
	}
	return l.SetBalance(addr, next)
}

// Move debits from and then credits to, so a self-transfer is a no-op.
func (l Ledger) Move(from, to crypto.Address, amount *big.Int) error {
	if err := l.Spend(from, amount); err != nil {
		return err
	}
	return l.Receive(to, amount)
}

// IncreaseSupply adds amount to the total supply.
func (l Ledger) IncreaseSupply(amount *big.Int) error {
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	next, err := Add(supply, amount)
	if err != nil {
		return err
	}
	return l.store.SetBigInt(keyTotalSupply, next)
}

// DecreaseSupply subtracts amount from the total supply.
func (l Ledger) DecreaseSupply(amount *big.Int) error {
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	next, err := Sub(supply, amount)
	if err != nil {
		return err
	}
	return l.store.SetBigInt(keyTotalSupply, next)
}

type allowanceRecord struct {
	Amount    *big.Int
	ExpiresAt uint64
}

// Allowance returns what spender may still move out of owner's balance at
// time now. Expired allowances read as zero. An expiry of 0 never expires.
func (l Ledger) Allowance(owner, spender crypto.Address, now uint64) (*big.Int, error) {
	var record allowanceRecord
	ok, err := l.store.Decode(allowanceKey(owner, spender), &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	if record.ExpiresAt != 0 && now > record.ExpiresAt {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

// SetAllowance records an allowance. A positive amount must not already be
// expired.
func (l Ledger) SetAllowance(owner, spender crypto.Address, amount *big.Int, expiresAt, now uint64) error {
	if err := RequireNonNegative(amount); err != nil {
		return err
	}
	if amount.Sign() > 0 && expiresAt != 0 && expiresAt < now {
		return fmt.Errorf("allowance expiry %d is before %d: %w", expiresAt, now, yserrors.ErrInvalidAmount)
	}
	if amount.Sign() == 0 {
		return l.store.Delete(allowanceKey(owner, spender))
	}
	return l.store.Encode(allowanceKey(owner, spender), allowanceRecord{Amount: amount, ExpiresAt: expiresAt})
}

// SpendAllowance consumes amount from the allowance, failing with
// ErrInsufficientAllowance.
func (l Ledger) SpendAllowance(owner, spender crypto.Address, amount *big.Int, now uint64) error {
	var record allowanceRecord
	ok, err := l.store.Decode(allowanceKey(owner, spender), &record)
	if err != nil {
		return err
	}
	available := big.NewInt(0)
	if ok && record.Amount != nil && (record.ExpiresAt == 0 || now <= record.ExpiresAt) {
		available = record.Amount
	}
	if available.Cmp(amount) < 0 {
		return fmt.Errorf("%s may spend %s of %s, needs %s: %w", spender, available, owner, amount, yserrors.ErrInsufficientAllowance)
	}
	if amount.Sign() == 0 {
		return nil
	}
	remaining, err := Sub(available, amount)
	if err != nil {
		return err
	}
	if remaining.Sign() == 0 {
		return l.store.Delete(allowanceKey(owner, spender))
	}
	return l.store.Encode(allowanceKey(owner, spender), allowanceRecord{Amount: remaining, ExpiresAt: record.ExpiresAt})
}

// Metadata persistence shared by the ledgers.

var (
	keyName     = state.Key("name")
	keySymbol   = state.Key("symbol")
	keyDecimals = state.Key("decimals")
)

// WriteMetadata stores md.
func (l Ledger) WriteMetadata(md Metadata) error {
	if err := l.store.SetString(keyName, md.Name); err != nil {
		return err
	}
	if err := l.store.SetString(keySymbol, md.Symbol); err != nil {
		return err
	}
	return l.store.SetUint64(keyDecimals, uint64(md.Decimals))
}

// ReadMetadata loads the stored metadata.
func (l Ledger) ReadMetadata() (Metadata, error) {
	name, err := l.store.String(keyName)
	if err != nil {
		return Metadata{}, err
	}
	symbol, err := l.store.String(keySymbol)
	if err != nil {
		return Metadata{}, err
	}
	decimals, err := l.store.Uint64(keyDecimals)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Name: name, Symbol: symbol, Decimals: uint32(decimals)}, nil
}
