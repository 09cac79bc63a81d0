package common

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxDecimals is the largest decimals value a ledger accepts.
const MaxDecimals = 18

// Metadata is the immutable descriptive data of a ledger.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}

// NormalizeMetadata trims and NFKC-normalizes name and symbol and validates
// decimals.
func NormalizeMetadata(name, symbol string, decimals uint32) (Metadata, error) {
	md := Metadata{
		Name:     norm.NFKC.String(strings.TrimSpace(name)),
		Symbol:   norm.NFKC.String(strings.TrimSpace(symbol)),
		Decimals: decimals,
	}
	if md.Name == "" {
		return Metadata{}, fmt.Errorf("token name required")
	}
	if md.Symbol == "" {
		return Metadata{}, fmt.Errorf("token symbol required")
	}
	if decimals > MaxDecimals {
		return Metadata{}, fmt.Errorf("decimals %d exceed %d", decimals, MaxDecimals)
	}
	return md, nil
}
