// Package state holds the shared swap intent and the quantities derived
// from it. The store is the single writer for intent and slippage; any
// component may read, and readers must re-read rather than cache values
// across suspension points.
package state

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/store"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "state").Logger()
}

// Store owns the swap intent, the slippage setting, and the last known
// quote. Selected asset symbols are persisted across restarts; amounts
// are not.
type Store struct {
	mu       sync.RWMutex
	intent   models.SwapIntent
	slippage models.SlippageSetting

	// Last successful quote and the pair it was fetched for. Kept
	// independently of the live fetch so a quote stays on screen while a
	// refresh is in flight, but never across a pair change.
	lastQuote     *models.Quote
	lastQuotePair string

	persist  *store.Store
	registry *registry.Registry

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// New creates a Store, restoring the persisted asset selections when the
// registry still knows their symbols. persist may be nil.
func New(persist *store.Store, reg *registry.Registry) *Store {
	s := &Store{
		intent:   models.SwapIntent{Mode: models.ModeNone},
		slippage: models.SlippageSetting{Default: DefaultSlippage},
		persist:  persist,
		registry: reg,
		subs:     make(map[int]chan struct{}),
	}

	if persist != nil && reg != nil {
		prefs, err := persist.Preferences()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load swap preferences")
			return s
		}
		if a, ok := reg.BySymbol(prefs.AssetSymbolSell); ok {
			s.intent.SellAsset = &a
		}
		if a, ok := reg.BySymbol(prefs.AssetSymbolBuy); ok {
			s.intent.BuyAsset = &a
		}
	}
	return s
}

// Intent returns a copy of the current swap intent.
func (s *Store) Intent() models.SwapIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intent
}

// SetIntent replaces the intent wholesale.
func (s *Store) SetIntent(intent models.SwapIntent) {
	s.UpdateIntent(func(models.SwapIntent) models.SwapIntent { return intent })
}

// UpdateIntent applies fn to the previous intent. The result is
// normalized so that mode always agrees with which amount is present.
func (s *Store) UpdateIntent(fn func(prev models.SwapIntent) models.SwapIntent) {
	s.mu.Lock()
	prevPair := s.intent.PairKey()
	s.intent = normalize(fn(s.intent))
	if s.intent.PairKey() != prevPair {
		// A quote for the old pair must never be shown for the new one.
		s.lastQuote = nil
		s.lastQuotePair = ""
	}
	s.mu.Unlock()

	s.persistSymbols()
	s.notify()
}

// normalize clamps mode to agree with the amounts actually present.
func normalize(i models.SwapIntent) models.SwapIntent {
	switch i.Mode {
	case models.ModeSell:
		if i.SellAmount == nil {
			i.Mode = models.ModeNone
		}
	case models.ModeBuy:
		if i.BuyAmount == nil {
			i.Mode = models.ModeNone
		}
	}
	return i
}

// SetSellAmount marks the sell side authoritative with the given amount.
// A nil amount clears both amounts and resets the mode.
func (s *Store) SetSellAmount(amount *decimal.Decimal) {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		if amount == nil {
			return models.SwapIntent{
				Mode:      models.ModeNone,
				SellAsset: prev.SellAsset,
				BuyAsset:  prev.BuyAsset,
			}
		}
		prev.Mode = models.ModeSell
		prev.SellAmount = amount
		return prev
	})
}

// SetBuyAmount marks the buy side authoritative with the given amount.
// A nil amount clears both amounts and resets the mode.
func (s *Store) SetBuyAmount(amount *decimal.Decimal) {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		if amount == nil {
			return models.SwapIntent{
				Mode:      models.ModeNone,
				SellAsset: prev.SellAsset,
				BuyAsset:  prev.BuyAsset,
			}
		}
		prev.Mode = models.ModeBuy
		prev.BuyAmount = amount
		return prev
	})
}

// SelectSellAsset sets the sell asset. Selecting the asset currently on
// the buy side swaps the two slots instead of duplicating it.
func (s *Store) SelectSellAsset(asset models.Asset) {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		if prev.BuyAsset != nil && prev.BuyAsset.Address == asset.Address {
			prev.BuyAsset = prev.SellAsset
		}
		prev.SellAsset = &asset
		return prev
	})
}

// SelectBuyAsset sets the buy asset, with the symmetric slot swap.
func (s *Store) SelectBuyAsset(asset models.Asset) {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		if prev.SellAsset != nil && prev.SellAsset.Address == asset.Address {
			prev.SellAsset = prev.BuyAsset
		}
		prev.BuyAsset = &asset
		return prev
	})
}

// SwapSides exchanges the sell and buy assets. When an amount has been
// typed, the numeric values stay put but the authoritative role flips:
// the old derived buy amount becomes the new typed sell amount and vice
// versa.
func (s *Store) SwapSides() {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		if prev.SellAsset == nil || prev.BuyAsset == nil {
			return prev
		}
		next := prev
		next.SellAsset, next.BuyAsset = prev.BuyAsset, prev.SellAsset
		if prev.Mode != models.ModeNone {
			if prev.Mode == models.ModeSell {
				next.Mode = models.ModeBuy
			} else {
				next.Mode = models.ModeSell
			}
			next.SellAmount, next.BuyAmount = prev.BuyAmount, prev.SellAmount
		}
		return next
	})
}

// ClearAmounts drops both amounts, keeping the selected assets. Called
// when a completed swap returns the screen to idle.
func (s *Store) ClearAmounts() {
	s.UpdateIntent(func(prev models.SwapIntent) models.SwapIntent {
		return models.SwapIntent{
			Mode:      models.ModeNone,
			SellAsset: prev.SellAsset,
			BuyAsset:  prev.BuyAsset,
		}
	})
}

// ApplyQuote records a successful quote for the current pair.
func (s *Store) ApplyQuote(q *models.Quote) {
	if q == nil {
		return
	}
	s.mu.Lock()
	s.lastQuote = q
	s.lastQuotePair = s.intent.PairKey()
	s.mu.Unlock()
	s.notify()
}

// Quote returns the last successful quote, or nil when none exists for
// the current asset pair.
func (s *Store) Quote() *models.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastQuote == nil || s.lastQuotePair != s.intent.PairKey() {
		return nil
	}
	return s.lastQuote
}

// SellAmount is the sell-side display amount: the typed value when the
// sell side is authoritative, otherwise the amount derived from the
// quote's input side.
func (s *Store) SellAmount() *decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.intent.Mode == models.ModeSell || s.intent.Mode == models.ModeNone {
		return s.intent.SellAmount
	}
	if s.lastQuote == nil || s.lastQuotePair != s.intent.PairKey() || s.intent.SellAsset == nil {
		return nil
	}
	v := models.ToDisplayAmount(*s.intent.SellAsset, s.lastQuote.AmountIn)
	return &v
}

// BuyAmount is the buy-side display amount, symmetric with SellAmount.
func (s *Store) BuyAmount() *decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.intent.Mode == models.ModeBuy {
		return s.intent.BuyAmount
	}
	if s.lastQuote == nil || s.lastQuotePair != s.intent.PairKey() || s.intent.BuyAsset == nil {
		return nil
	}
	v := models.ToDisplayAmount(*s.intent.BuyAsset, s.lastQuote.AmountOut)
	return &v
}

// Slippage returns the current slippage setting.
func (s *Store) Slippage() models.SlippageSetting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slippage
}

// SetSlippageInput applies a user-typed slippage percentage. Invalid or
// empty input clears the override, reverting to the default.
func (s *Store) SetSlippageInput(input string) {
	override := ParseSlippageInput(input)
	s.mu.Lock()
	s.slippage.Override = override
	s.mu.Unlock()
	s.notify()
}

// MinAmount is the minimum acceptable output in base units, or nil when
// no quote exists for the current pair.
func (s *Store) MinAmount() *decimal.Decimal {
	s.mu.RLock()
	q := s.lastQuote
	if q != nil && s.lastQuotePair != s.intent.PairKey() {
		q = nil
	}
	slip := s.slippage.Effective()
	s.mu.RUnlock()
	return MinAmount(q, slip)
}

// Subscribe registers for change notifications. The returned cancel
// function must be called to release the subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) persistSymbols() {
	if s.persist == nil {
		return
	}
	s.mu.RLock()
	prefs := store.Preferences{}
	if s.intent.SellAsset != nil {
		prefs.AssetSymbolSell = s.intent.SellAsset.Symbol
	}
	if s.intent.BuyAsset != nil {
		prefs.AssetSymbolBuy = s.intent.BuyAsset.Symbol
	}
	s.mu.RUnlock()

	if err := s.persist.SavePreferences(prefs); err != nil {
		log.Warn().Err(err).Msg("Failed to persist asset selection")
	}
}
