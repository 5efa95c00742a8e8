package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TraceTypeIBC marks a cross-chain trace that carries the denom a token is
// known by on the broker chain.
const TraceTypeIBC = "ibc"

// Trace describes one cross-chain hop of an asset's provenance.
type Trace struct {
	Type      string `json:"type" toml:"type"`
	ChainPath string `json:"chain_path" toml:"chain_path"`
}

// Asset is an immutable snapshot of a registry entry. The swap intent
// references assets by value; the registry owns the canonical copies.
type Asset struct {
	// Address is the chain-qualified address or denom of the token on the
	// home chain.
	Address  string  `json:"address" toml:"address"`
	Symbol   string  `json:"symbol" toml:"symbol"`
	Name     string  `json:"name" toml:"name"`
	Decimals int32   `json:"decimals" toml:"decimals"`
	Traces   []Trace `json:"traces,omitempty" toml:"traces"`
}

// RoutableDenom maps the asset to the denom the external router understands.
// Assets that crossed over via IBC carry the routable denom in their trace;
// the chain's native asset routes under its own address.
func (a Asset) RoutableDenom() (string, error) {
	for _, t := range a.Traces {
		if t.Type == TraceTypeIBC && t.ChainPath != "" {
			return t.ChainPath, nil
		}
	}
	if a.Address != "" {
		return a.Address, nil
	}
	return "", fmt.Errorf("asset %s has no routable denom", a.Symbol)
}

// ToBaseAmount converts a display amount to the asset's base units,
// truncating any fractional base unit.
func ToBaseAmount(a Asset, display decimal.Decimal) decimal.Decimal {
	return display.Shift(a.Decimals).Truncate(0)
}

// ToDisplayAmount converts an amount in base units to display units.
func ToDisplayAmount(a Asset, base decimal.Decimal) decimal.Decimal {
	return base.Shift(-a.Decimals)
}
