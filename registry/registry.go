// Package registry holds the immutable asset snapshots the swap intent
// references. The registry is bootstrapped from configuration; this core
// does not fetch remote chain registries.
package registry

import (
	"fmt"

	"github.com/maspnet/shieldswap/models"
)

// Registry is an in-memory index of assets by symbol and address.
type Registry struct {
	bySymbol  map[string]models.Asset
	byAddress map[string]models.Asset
	ordered   []models.Asset
}

// New builds a registry from asset snapshots. Later duplicates win, so a
// config can override an earlier entry.
func New(assets []models.Asset) *Registry {
	r := &Registry{
		bySymbol:  make(map[string]models.Asset, len(assets)),
		byAddress: make(map[string]models.Asset, len(assets)),
		ordered:   make([]models.Asset, 0, len(assets)),
	}
	for _, a := range assets {
		r.bySymbol[a.Symbol] = a
		r.byAddress[a.Address] = a
		r.ordered = append(r.ordered, a)
	}
	return r
}

// BySymbol returns the asset registered under symbol.
func (r *Registry) BySymbol(symbol string) (models.Asset, bool) {
	a, ok := r.bySymbol[symbol]
	return a, ok
}

// ByAddress returns the asset registered under address.
func (r *Registry) ByAddress(address string) (models.Asset, bool) {
	a, ok := r.byAddress[address]
	return a, ok
}

// Assets returns all assets in registration order.
func (r *Registry) Assets() []models.Asset {
	out := make([]models.Asset, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// RoutableDenom resolves the router-side denom for an asset in the
// registry. Both swap assets must resolve before a quote can be fetched.
func (r *Registry) RoutableDenom(a models.Asset) (string, error) {
	registered, ok := r.byAddress[a.Address]
	if !ok {
		return "", fmt.Errorf("asset %s not in registry", a.Symbol)
	}
	return registered.RoutableDenom()
}
