package host

import (
	"context"
	"fmt"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/events"
	"yieldsplit/core/state"
	"yieldsplit/crypto"
)

type transaction struct {
	ctx       context.Context
	journal   *state.Journal
	timestamp uint64
	signers   []crypto.Address
	events    []events.Event
	readOnly  bool
}

// Env is the execution frame handed to component operations. Each component
// enters its own frame on entry so that callees can see who invoked them.
type Env struct {
	tx       *transaction
	contract crypto.Address
	invoker  crypto.Address
}

// Context returns the context of the surrounding transaction.
func (e *Env) Context() context.Context {
	return e.tx.ctx
}

// Timestamp is the ledger time of the transaction in unix seconds. It is fixed
// for the whole transaction.
func (e *Env) Timestamp() uint64 {
	return e.tx.timestamp
}

// Contract returns the component executing the current frame. It is the zero
// address at the root of the transaction.
func (e *Env) Contract() crypto.Address {
	return e.contract
}

// Invoker returns the component that called into the current frame, or the
// zero address when the frame was entered directly by the transaction.
func (e *Env) Invoker() crypto.Address {
	return e.invoker
}

// Enter returns the frame for a call into contract made from e.
func (e *Env) Enter(contract crypto.Address) *Env {
	return &Env{tx: e.tx, contract: contract, invoker: e.contract}
}

// RequireAuth succeeds when addr signed the transaction or addr is the
// component that directly invoked the current frame.
func (e *Env) RequireAuth(addr crypto.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("empty address: %w", yserrors.ErrUnauthorized)
	}
	if addr == e.invoker {
		return nil
	}
	if !addr.IsComponent() {
		for _, signer := range e.tx.signers {
			if signer == addr {
				return nil
			}
		}
	}
	return fmt.Errorf("%s did not authorize the call: %w", addr, yserrors.ErrUnauthorized)
}

// Store returns the key-value view owned by the given component.
func (e *Env) Store(owner crypto.Address) *state.Store {
	return state.NewStore(e.tx.journal, owner.Bytes())
}

// Emit buffers an event. Events reach subscribers only after commit.
func (e *Env) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	e.tx.events = append(e.tx.events, ev)
}

// ReadOnly reports whether the frame belongs to a View call.
func (e *Env) ReadOnly() bool {
	return e.tx.readOnly
}
