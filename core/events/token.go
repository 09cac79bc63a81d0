package events

import (
	"math/big"

	"yieldsplit/core/types"
	"yieldsplit/crypto"
)

const (
	TypeTokenMint     = "token.mint"
	TypeTokenBurn     = "token.burn"
	TypeTokenTransfer = "token.transfer"
	TypeTokenApprove  = "token.approve"
	// TypeYieldAccrued is emitted when an account's pending yield is settled
	// against a higher rate.
	TypeYieldAccrued = "yield.accrued"
	// TypeYieldClaimed is emitted when accrued yield is claimed.
	TypeYieldClaimed = "yield.claimed"
)

type TokenMint struct {
	Token   crypto.Address
	Account crypto.Address
	Amount  *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMint,
		Attributes: map[string]string{
			"token":   e.Token.String(),
			"account": e.Account.String(),
			"amount":  amountString(e.Amount),
		},
	}
}

type TokenBurn struct {
	Token   crypto.Address
	Account crypto.Address
	Amount  *big.Int
}

func (TokenBurn) EventType() string { return TypeTokenBurn }

func (e TokenBurn) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenBurn,
		Attributes: map[string]string{
			"token":   e.Token.String(),
			"account": e.Account.String(),
			"amount":  amountString(e.Amount),
		},
	}
}

type TokenTransfer struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"token":  e.Token.String(),
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": amountString(e.Amount),
		},
	}
}

type TokenApprove struct {
	Token     crypto.Address
	Owner     crypto.Address
	Spender   crypto.Address
	Amount    *big.Int
	ExpiresAt uint64
}

func (TokenApprove) EventType() string { return TypeTokenApprove }

func (e TokenApprove) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApprove,
		Attributes: map[string]string{
			"token":     e.Token.String(),
			"owner":     e.Owner.String(),
			"spender":   e.Spender.String(),
			"amount":    amountString(e.Amount),
			"expiresAt": uintString(e.ExpiresAt),
		},
	}
}

type YieldAccrued struct {
	Token   crypto.Address
	Account crypto.Address
	Amount  *big.Int
	Index   *big.Int
}

func (YieldAccrued) EventType() string { return TypeYieldAccrued }

func (e YieldAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldAccrued,
		Attributes: map[string]string{
			"token":   e.Token.String(),
			"account": e.Account.String(),
			"amount":  amountString(e.Amount),
			"index":   amountString(e.Index),
		},
	}
}

type YieldClaimed struct {
	Token   crypto.Address
	Account crypto.Address
	Amount  *big.Int
}

func (YieldClaimed) EventType() string { return TypeYieldClaimed }

func (e YieldClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldClaimed,
		Attributes: map[string]string{
			"token":   e.Token.String(),
			"account": e.Account.String(),
			"amount":  amountString(e.Amount),
		},
	}
}
