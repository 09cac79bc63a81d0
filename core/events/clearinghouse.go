package events

import (
	"math/big"

	"yieldsplit/core/types"
	"yieldsplit/crypto"
)

const (
	// TypeDeposit is emitted when vault shares are split into PT and YT.
	TypeDeposit = "clearinghouse.deposit"
	// TypeYieldDistributed is emitted when accrued yield is paid out in shares.
	TypeYieldDistributed = "clearinghouse.yield_distributed"
	// TypePrincipalRedeemed is emitted when PT is redeemed after maturity.
	TypePrincipalRedeemed = "clearinghouse.principal_redeemed"
	// TypeRateUpdated is emitted when the high-water mark advances.
	TypeRateUpdated = "clearinghouse.rate_updated"
	// TypeRateLocked is emitted once, when the rate freezes at maturity.
	TypeRateLocked = "clearinghouse.rate_locked"
	// TypeBootstrapped is emitted when the ledger addresses are recorded.
	TypeBootstrapped = "clearinghouse.bootstrapped"
)

type Deposit struct {
	Clearinghouse crypto.Address
	Account       crypto.Address
	Shares        *big.Int
	Minted        *big.Int
	Rate          *big.Int
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposit,
		Attributes: map[string]string{
			"clearinghouse": e.Clearinghouse.String(),
			"account":       e.Account.String(),
			"shares":        amountString(e.Shares),
			"minted":        amountString(e.Minted),
			"rate":          amountString(e.Rate),
		},
	}
}

type YieldDistributed struct {
	Clearinghouse crypto.Address
	Account       crypto.Address
	Shares        *big.Int
}

func (YieldDistributed) EventType() string { return TypeYieldDistributed }

func (e YieldDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeYieldDistributed,
		Attributes: map[string]string{
			"clearinghouse": e.Clearinghouse.String(),
			"account":       e.Account.String(),
			"shares":        amountString(e.Shares),
		},
	}
}

type PrincipalRedeemed struct {
	Clearinghouse crypto.Address
	Account       crypto.Address
	Principal     *big.Int
	Shares        *big.Int
	Rate          *big.Int
}

func (PrincipalRedeemed) EventType() string { return TypePrincipalRedeemed }

func (e PrincipalRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypePrincipalRedeemed,
		Attributes: map[string]string{
			"clearinghouse": e.Clearinghouse.String(),
			"account":       e.Account.String(),
			"principal":     amountString(e.Principal),
			"shares":        amountString(e.Shares),
			"rate":          amountString(e.Rate),
		},
	}
}

type RateUpdated struct {
	Clearinghouse crypto.Address
	Previous      *big.Int
	Rate          *big.Int
}

func (RateUpdated) EventType() string { return TypeRateUpdated }

func (e RateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRateUpdated,
		Attributes: map[string]string{
			"clearinghouse": e.Clearinghouse.String(),
			"previous":      amountString(e.Previous),
			"rate":          amountString(e.Rate),
		},
	}
}

type RateLocked struct {
	Clearinghouse crypto.Address
	Rate          *big.Int
	Maturity      uint64
	LockedAt      uint64
}

func (RateLocked) EventType() string { return TypeRateLocked }

func (e RateLocked) Event() *types.Event {
	return &types.Event{
		Type: TypeRateLocked,
		Attributes: map[string]string{
			"clearinghouse": e.Clearinghouse.String(),
			"rate":          amountString(e.Rate),
			"maturity":      uintString(e.Maturity),
			"lockedAt":      uintString(e.LockedAt),
		},
	}
}

type Bootstrapped struct {
	Clearinghouse  crypto.Address
	PrincipalToken crypto.Address
	YieldToken     crypto.Address
}

func (Bootstrapped) EventType() string { return TypeBootstrapped }

func (e Bootstrapped) Event() *types.Event {
	return &types.Event{
		Type: TypeBootstrapped,
		Attributes: map[string]string{
			"clearinghouse":  e.Clearinghouse.String(),
			"principalToken": e.PrincipalToken.String(),
			"yieldToken":     e.YieldToken.String(),
		},
	}
}
