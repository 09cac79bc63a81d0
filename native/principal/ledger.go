package principal

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
	errNilLedger = errors.New("principal ledger: not configured")

	keyAdmin = state.Key("admin")
)

// Ledger is the principal claim ledger. Only its admin (the clearinghouse)
// may mint or burn; holders move their own balances.
type Ledger struct {
	addr crypto.Address
}

// New returns the ledger living at addr.
func New(addr crypto.Address) *Ledger {
	return &Ledger{addr: addr}
}

// Address returns the ledger's component address.
func (l *Ledger) Address() crypto.Address {
	if l == nil {
		return crypto.Address{}
	}
	return l.addr
}

func (l *Ledger) enter(env *host.Env) (*host.Env, common.Ledger, error) {
	if l == nil || env == nil {
		return nil, common.Ledger{}, errNilLedger
	}
	frame := env.Enter(l.addr)
	return frame, common.NewLedger(frame.Store(l.addr)), nil
}

// Construct records the admin and metadata. It can run only once.
func (l *Ledger) Construct(env *host.Env, admin crypto.Address, name, symbol string, decimals uint32) error {
	frame, _, err := l.enter(env)
	if err != nil {
		return err
	}
	store := frame.Store(l.addr)
	exists, err := store.Has(keyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("principal ledger: construct: %w", yserrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("principal ledger: admin required")
	}
	md, err := common.NormalizeMetadata(name, symbol, decimals)
	if err != nil {
		return fmt.Errorf("principal ledger: %w", err)
	}
	if err := store.SetAddress(keyAdmin, admin); err != nil {
		return err
	}
	return common.NewLedger(store).WriteMetadata(md)
}

// Admin returns the minting authority.
func (l *Ledger) Admin(env *host.Env) (crypto.Address, error) {
	frame, _, err := l.enter(env)
	if err != nil {
		return crypto.Address{}, err
	}
	return frame.Store(l.addr).Address(keyAdmin)
}

func (l *Ledger) requireAdmin(frame *host.Env) error {
	admin, err := frame.Store(l.addr).Address(keyAdmin)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return yserrors.ErrNotInitialized
	}
	return frame.RequireAuth(admin)
}

// Mint credits amount to to. Admin only.
func (l *Ledger) Mint(env *host.Env, to crypto.Address, amount *big.Int) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := l.requireAdmin(frame); err != nil {
		return fmt.Errorf("principal ledger: mint: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("principal ledger: mint: %w", err)
	}
	if err := ledger.Receive(to, amount); err != nil {
		return fmt.Errorf("principal ledger: mint: %w", err)
	}
	if err := ledger.IncreaseSupply(amount); err != nil {
		return fmt.Errorf("principal ledger: mint: %w", err)
	}
	frame.Emit(events.TokenMint{Token: l.addr, Account: to, Amount: amount})
	return nil
}

// Burn destroys amount from from. Admin only.
func (l *Ledger) Burn(env *host.Env, from crypto.Address, amount *big.Int) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := l.requireAdmin(frame); err != nil {
		return fmt.Errorf("principal ledger: burn: %w", err)
	}
	if err := l.burn(frame, ledger, from, amount); err != nil {
		return fmt.Errorf("principal ledger: burn: %w", err)
	}
	return nil
}

func (l *Ledger) burn(frame *host.Env, ledger common.Ledger, from crypto.Address, amount *big.Int) error {
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := ledger.Spend(from, amount); err != nil {
		return err
	}
	if err := ledger.DecreaseSupply(amount); err != nil {
		return err
	}
	frame.Emit(events.TokenBurn{Token: l.addr, Account: from, Amount: amount})
	return nil
}

// Transfer moves amount from from to to. Requires from's authorization.
func (l *Ledger) Transfer(env *host.Env, from, to crypto.Address, amount *big.Int) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("principal ledger: transfer: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("principal ledger: transfer: %w", err)
	}
	if err := ledger.Move(from, to, amount); err != nil {
		return fmt.Errorf("principal ledger: transfer: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: l.addr, From: from, To: to, Amount: amount})
	return nil
}

// Approve lets spender move up to amount of from's balance until expiresAt
// (unix seconds, 0 for no expiry).
func (l *Ledger) Approve(env *host.Env, from, spender crypto.Address, amount *big.Int, expiresAt uint64) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(from); err != nil {
		return fmt.Errorf("principal ledger: approve: %w", err)
	}
	if err := ledger.SetAllowance(from, spender, amount, expiresAt, frame.Timestamp()); err != nil {
		return fmt.Errorf("principal ledger: approve: %w", err)
	}
	frame.Emit(events.TokenApprove{Token: l.addr, Owner: from, Spender: spender, Amount: amount, ExpiresAt: expiresAt})
	return nil
}

// Allowance returns the live allowance of spender over from.
func (l *Ledger) Allowance(env *host.Env, from, spender crypto.Address) (*big.Int, error) {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return ledger.Allowance(from, spender, frame.Timestamp())
}

// TransferFrom moves amount from from to to using spender's allowance.
func (l *Ledger) TransferFrom(env *host.Env, spender, from, to crypto.Address, amount *big.Int) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(spender); err != nil {
		return fmt.Errorf("principal ledger: transfer from: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("principal ledger: transfer from: %w", err)
	}
	if err := ledger.SpendAllowance(from, spender, amount, frame.Timestamp()); err != nil {
		return fmt.Errorf("principal ledger: transfer from: %w", err)
	}
	if err := ledger.Move(from, to, amount); err != nil {
		return fmt.Errorf("principal ledger: transfer from: %w", err)
	}
	frame.Emit(events.TokenTransfer{Token: l.addr, From: from, To: to, Amount: amount})
	return nil
}

// BurnFrom destroys amount of from's balance using spender's allowance.
func (l *Ledger) BurnFrom(env *host.Env, spender, from crypto.Address, amount *big.Int) error {
	frame, ledger, err := l.enter(env)
	if err != nil {
		return err
	}
	if err := frame.RequireAuth(spender); err != nil {
		return fmt.Errorf("principal ledger: burn from: %w", err)
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return fmt.Errorf("principal ledger: burn from: %w", err)
	}
	if err := ledger.SpendAllowance(from, spender, amount, frame.Timestamp()); err != nil {
		return fmt.Errorf("principal ledger: burn from: %w", err)
	}
	if err := l.burn(frame, ledger, from, amount); err != nil {
		return fmt.Errorf("principal ledger: burn from: %w", err)
	}
	return nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(env *host.Env, addr crypto.Address) (*big.Int, error) {
	_, ledger, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return ledger.Balance(addr)
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply(env *host.Env) (*big.Int, error) {
	_, ledger, err := l.enter(env)
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply()
}

// Metadata returns name, symbol and decimals.
func (l *Ledger) Metadata(env *host.Env) (common.Metadata, error) {
	_, ledger, err := l.enter(env)
	if err != nil {
		return common.Metadata{}, err
	}
	return ledger.ReadMetadata()
}
