package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/host"
)

// VaultKind selects the rate query convention of the vault.
type VaultKind uint8

const (
	// Vault4626 vaults report the value of shares via ConvertToAssets.
	Vault4626 VaultKind = iota + 1
	// VaultDefindex vaults report a per-asset vector via
	// AssetAmountsPerShares; the first entry is the rate.
	VaultDefindex
)

func (k VaultKind) String() string {
	switch k {
	case Vault4626:
		return "4626"
	case VaultDefindex:
		return "defindex"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k VaultKind) Valid() bool {
	return k == Vault4626 || k == VaultDefindex
}

// ParseVaultKind parses the configuration spelling of a vault kind.
func ParseVaultKind(raw string) (VaultKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "4626", "erc4626", "vault4626":
		return Vault4626, nil
	case "defindex":
		return VaultDefindex, nil
	default:
		return 0, fmt.Errorf("oracle: unknown vault kind %q", raw)
	}
}

// RateVault is the 4626-style query surface.
type RateVault interface {
	ConvertToAssets(env *host.Env, shares *big.Int) (*big.Int, error)
}

// DefindexVault is the Defindex query surface.
type DefindexVault interface {
	AssetAmountsPerShares(env *host.Env, shares *big.Int) ([]*big.Int, error)
}

var (
	errNilAdapter = errors.New("oracle: adapter not configured")
	oneShare      = big.NewInt(1)
)

// Adapter normalizes both vault conventions into a single scaled rate. It
// keeps no state; every call is a live read.
type Adapter struct {
	kind     VaultKind
	rate     RateVault
	defindex DefindexVault
}

// NewAdapter binds vault under kind. The vault must implement the query
// surface kind requires.
func NewAdapter(kind VaultKind, vault interface{}) (*Adapter, error) {
	a := &Adapter{kind: kind}
	switch kind {
	case Vault4626:
		rv, ok := vault.(RateVault)
		if !ok {
			return nil, fmt.Errorf("oracle: %T does not implement ConvertToAssets", vault)
		}
		a.rate = rv
	case VaultDefindex:
		dv, ok := vault.(DefindexVault)
		if !ok {
			return nil, fmt.Errorf("oracle: %T does not implement AssetAmountsPerShares", vault)
		}
		a.defindex = dv
	default:
		return nil, fmt.Errorf("oracle: unsupported vault kind %s", kind)
	}
	return a, nil
}

// Kind returns the configured vault kind.
func (a *Adapter) Kind() VaultKind {
	if a == nil {
		return 0
	}
	return a.kind
}

// Rate queries the value of one share. Any failure, including an empty or
// non-positive answer, is reported as ErrUpstreamQuery.
func (a *Adapter) Rate(env *host.Env) (*big.Int, error) {
	if a == nil {
		return nil, errNilAdapter
	}
	var (
		rate *big.Int
		err  error
	)
	switch a.kind {
	case Vault4626:
		rate, err = a.rate.ConvertToAssets(env, oneShare)
	case VaultDefindex:
		var amounts []*big.Int
		amounts, err = a.defindex.AssetAmountsPerShares(env, oneShare)
		if err == nil {
			if len(amounts) == 0 {
				err = errors.New("empty asset amounts")
			} else {
				rate = amounts[0]
			}
		}
	default:
		err = fmt.Errorf("unsupported vault kind %s", a.kind)
	}
	if err != nil {
		return nil, fmt.Errorf("oracle: %s rate query: %v: %w", a.kind, err, yserrors.ErrUpstreamQuery)
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: %s vault reported rate %v: %w", a.kind, rate, yserrors.ErrUpstreamQuery)
	}
	return new(big.Int).Set(rate), nil
}
