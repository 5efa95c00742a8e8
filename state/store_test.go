package state_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/state"
	"github.com/maspnet/shieldswap/store"
)

var (
	nam = models.Asset{
		Address:  "tnam1qxvg64psvhwumv3mwrrjfcz0h3t3274hwggyzcee",
		Symbol:   "NAM",
		Name:     "Namada",
		Decimals: 6,
	}
	osmo = models.Asset{
		Address:  "tnam1p5z5538v3kdk3wdx7r2hpqm4uq9926dz3ughcp7n",
		Symbol:   "OSMO",
		Name:     "Osmosis",
		Decimals: 6,
		Traces: []models.Trace{
			{Type: "ibc", ChainPath: "uosmo"},
		},
	}
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newStore(t *testing.T) *state.Store {
	t.Helper()
	return state.New(nil, registry.New([]models.Asset{nam, osmo}))
}

func TestSetSellAmountMarksSellAuthoritative(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)

	s.SetSellAmount(decPtr("10"))

	intent := s.Intent()
	assert.Equal(t, intent.Mode, models.ModeSell)
	assert.True(t, intent.SellAmount.Equal(dec("10")))
}

func TestSetAmountNilResetsMode(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.SetSellAmount(decPtr("10"))

	s.SetSellAmount(nil)

	intent := s.Intent()
	assert.Equal(t, intent.Mode, models.ModeNone)
	assert.Nil(t, intent.SellAmount)
	assert.Nil(t, intent.BuyAmount)
	assert.NotNil(t, intent.SellAsset)
	assert.NotNil(t, intent.BuyAsset)
}

func TestSelectDuplicateAssetSwapsSlots(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)

	// Selecting the buy-side asset on the sell side must not duplicate it.
	s.SelectSellAsset(osmo)

	intent := s.Intent()
	assert.Equal(t, intent.SellAsset.Symbol, "OSMO")
	assert.Equal(t, intent.BuyAsset.Symbol, "NAM")
}

func TestSwapSidesRoundTrip(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.SetSellAmount(decPtr("10"))

	s.SwapSides()

	intent := s.Intent()
	assert.Equal(t, intent.SellAsset.Symbol, "OSMO")
	assert.Equal(t, intent.BuyAsset.Symbol, "NAM")
	assert.Equal(t, intent.Mode, models.ModeBuy)
	assert.True(t, intent.BuyAmount.Equal(dec("10")))

	s.SwapSides()

	intent = s.Intent()
	assert.Equal(t, intent.SellAsset.Symbol, "NAM")
	assert.Equal(t, intent.BuyAsset.Symbol, "OSMO")
	assert.Equal(t, intent.Mode, models.ModeSell)
	assert.True(t, intent.SellAmount.Equal(dec("10")))
}

func TestSwapSidesWithoutBothAssetsIsNoop(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)

	s.SwapSides()

	intent := s.Intent()
	assert.Equal(t, intent.SellAsset.Symbol, "NAM")
	assert.Nil(t, intent.BuyAsset)
}

func TestDerivedBuyAmountFromQuote(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.SetSellAmount(decPtr("10"))

	s.ApplyQuote(&models.Quote{
		AmountIn:  dec("10000000"),
		AmountOut: dec("95000000"),
		Amount:    dec("95000000"),
	})

	buy := s.BuyAmount()
	if buy == nil {
		t.Fatal("expected derived buy amount")
	}
	assert.True(t, buy.Equal(dec("95")))

	// The typed side stays the typed value.
	sell := s.SellAmount()
	if sell == nil {
		t.Fatal("expected sell amount")
	}
	assert.True(t, sell.Equal(dec("10")))
}

func TestQuoteClearedOnPairChange(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.ApplyQuote(&models.Quote{Amount: dec("95000000")})

	if s.Quote() == nil {
		t.Fatal("expected quote for current pair")
	}

	s.SelectBuyAsset(nam)

	assert.Nil(t, s.Quote())
	assert.Nil(t, s.MinAmount())
}

func TestSlippageOverrideAndRevert(t *testing.T) {
	s := newStore(t)

	assert.True(t, s.Slippage().Effective().Equal(state.DefaultSlippage))

	s.SetSlippageInput("0.5")
	assert.True(t, s.Slippage().Effective().Equal(dec("0.005")))

	// Invalid input reverts to the default.
	s.SetSlippageInput("abc")
	assert.True(t, s.Slippage().Effective().Equal(state.DefaultSlippage))

	s.SetSlippageInput("1.5")
	assert.True(t, s.Slippage().Effective().Equal(dec("0.015")))

	// Empty input also reverts.
	s.SetSlippageInput("")
	assert.True(t, s.Slippage().Effective().Equal(state.DefaultSlippage))
}

func TestParseSlippageInput(t *testing.T) {
	cases := []struct {
		input string
		want  string
		valid bool
	}{
		{"0", "0", true},
		{"1", "0.01", true},
		{"0.5", "0.005", true},
		{"9.9", "0.099", true},
		{"10", "", false},
		{"0.55", "", false},
		{".5", "", false},
		{"-1", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got := state.ParseSlippageInput(tc.input)
		if !tc.valid {
			if got != nil {
				t.Errorf("input %q: expected nil, got %s", tc.input, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("input %q: expected %s, got nil", tc.input, tc.want)
			continue
		}
		if !got.Equal(dec(tc.want)) {
			t.Errorf("input %q: expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestMinAmount(t *testing.T) {
	assert.Nil(t, state.MinAmount(nil, state.DefaultSlippage))

	q := &models.Quote{Amount: dec("1000")}
	min := state.MinAmount(q, dec("0.001"))
	if min == nil {
		t.Fatal("expected min amount")
	}
	assert.True(t, min.Equal(dec("999")))
}

func TestSellPerBuyRate(t *testing.T) {
	assert.Nil(t, state.SellPerBuyRate(nil, decPtr("5")))
	assert.Nil(t, state.SellPerBuyRate(decPtr("10"), nil))
	assert.Nil(t, state.SellPerBuyRate(decPtr("10"), decPtr("0")))

	rate := state.SellPerBuyRate(decPtr("10"), decPtr("5"))
	if rate == nil {
		t.Fatal("expected rate")
	}
	assert.True(t, rate.Equal(dec("2")))
}

func TestSymbolPersistenceAcrossRestart(t *testing.T) {
	persist, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer persist.Close()

	reg := registry.New([]models.Asset{nam, osmo})

	s := state.New(persist, reg)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.SetSellAmount(decPtr("10"))

	// A new store over the same persistence restores the selection but
	// not the amounts.
	restored := state.New(persist, reg)
	intent := restored.Intent()
	assert.Equal(t, intent.SellAsset.Symbol, "NAM")
	assert.Equal(t, intent.BuyAsset.Symbol, "OSMO")
	assert.Nil(t, intent.SellAmount)
	assert.Equal(t, intent.Mode, models.ModeNone)
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	s := newStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.SelectSellAsset(nam)

	select {
	case <-ch:
	default:
		t.Fatal("expected change notification")
	}
}

func TestClearAmountsKeepsAssets(t *testing.T) {
	s := newStore(t)
	s.SelectSellAsset(nam)
	s.SelectBuyAsset(osmo)
	s.SetBuyAmount(decPtr("3"))

	s.ClearAmounts()

	intent := s.Intent()
	assert.Equal(t, intent.Mode, models.ModeNone)
	assert.Nil(t, intent.SellAmount)
	assert.Nil(t, intent.BuyAmount)
	assert.Equal(t, intent.SellAsset.Symbol, "NAM")
	assert.Equal(t, intent.BuyAsset.Symbol, "OSMO")
}
