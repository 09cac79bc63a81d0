package events

import (
	"math/big"

	"yieldsplit/core/types"
	"yieldsplit/crypto"
)

const (
	TypeSeriesDeployed   = "series.deployed"
	TypeSeriesRolledOver = "series.rolled_over"
	TypeVaultDeposit     = "vault.deposit"
	TypeVaultWithdraw    = "vault.withdraw"
)

type SeriesDeployed struct {
	Clearinghouse  crypto.Address
	PrincipalToken crypto.Address
	YieldToken     crypto.Address
	Vault          crypto.Address
	Maturity       uint64
	Number         uint64
}

func (SeriesDeployed) EventType() string { return TypeSeriesDeployed }

func (e SeriesDeployed) Event() *types.Event {
	return &types.Event{
		Type: TypeSeriesDeployed,
		Attributes: map[string]string{
			"clearinghouse":  e.Clearinghouse.String(),
			"principalToken": e.PrincipalToken.String(),
			"yieldToken":     e.YieldToken.String(),
			"vault":          e.Vault.String(),
			"maturity":       uintString(e.Maturity),
			"number":         uintString(e.Number),
		},
	}
}

type SeriesRolledOver struct {
	Previous      crypto.Address
	Clearinghouse crypto.Address
	Maturity      uint64
}

func (SeriesRolledOver) EventType() string { return TypeSeriesRolledOver }

func (e SeriesRolledOver) Event() *types.Event {
	return &types.Event{
		Type: TypeSeriesRolledOver,
		Attributes: map[string]string{
			"previous":      e.Previous.String(),
			"clearinghouse": e.Clearinghouse.String(),
			"maturity":      uintString(e.Maturity),
		},
	}
}

type VaultDeposit struct {
	Vault   crypto.Address
	Account crypto.Address
	Assets  *big.Int
	Shares  *big.Int
}

func (VaultDeposit) EventType() string { return TypeVaultDeposit }

func (e VaultDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposit,
		Attributes: map[string]string{
			"vault":   e.Vault.String(),
			"account": e.Account.String(),
			"assets":  amountString(e.Assets),
			"shares":  amountString(e.Shares),
		},
	}
}

type VaultWithdraw struct {
	Vault   crypto.Address
	Account crypto.Address
	Assets  *big.Int
	Shares  *big.Int
}

func (VaultWithdraw) EventType() string { return TypeVaultWithdraw }

func (e VaultWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultWithdraw,
		Attributes: map[string]string{
			"vault":   e.Vault.String(),
			"account": e.Account.String(),
			"assets":  amountString(e.Assets),
			"shares":  amountString(e.Shares),
		},
	}
}
