package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/state"
)

var (
	nam = models.Asset{
		Address:  "tnam1nam",
		Symbol:   "NAM",
		Decimals: 6,
	}
	osmo = models.Asset{
		Address:  "tnam1osmo",
		Symbol:   "OSMO",
		Decimals: 6,
		Traces:   []models.Trace{{Type: "ibc", ChainPath: "uosmo"}},
	}
)

type fetchCall struct {
	forward  bool
	amount   decimal.Decimal
	inDenom  string
	outDenom string
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	quote models.Quote
	err   error
}

func (f *fakeFetcher) QuoteForward(ctx context.Context, baseAmount decimal.Decimal, tokenInDenom, tokenOutDenom string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{forward: true, amount: baseAmount, inDenom: tokenInDenom, outDenom: tokenOutDenom})
	if f.err != nil {
		return nil, f.err
	}
	q := f.quote
	return &q, nil
}

func (f *fakeFetcher) QuoteReverse(ctx context.Context, baseAmount decimal.Decimal, tokenOutDenom, tokenInDenom string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{forward: false, amount: baseAmount, inDenom: tokenInDenom, outDenom: tokenOutDenom})
	if f.err != nil {
		return nil, f.err
	}
	q := f.quote
	return &q, nil
}

func (f *fakeFetcher) snapshot() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func newFixture(t *testing.T, fetcher *fakeFetcher, status StatusFunc) (*state.Store, *Service) {
	t.Helper()
	reg := registry.New([]models.Asset{nam, osmo})
	st := state.New(nil, reg)
	svc := NewService(st, reg, fetcher, status, Options{
		DebounceWindow:  20 * time.Millisecond,
		RefreshInterval: time.Hour,
	})
	return st, svc
}

func TestDebounceCoalescesEdits(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(95000000)}}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)

	// Rapid keystrokes: 1, 15, 10. Only the last one may fetch.
	for _, amount := range []string{"1", "15", "10"} {
		st.SetSellAmount(decPtr(amount))
		svc.onIntentChange(ctx)
	}

	time.Sleep(100 * time.Millisecond)

	calls := fetcher.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", len(calls))
	}
	assert.True(t, calls[0].forward)
	assert.True(t, calls[0].amount.Equal(decimal.NewFromInt(10000000)))
	assert.Equal(t, calls[0].inDenom, "tnam1nam")
	assert.Equal(t, calls[0].outDenom, "uosmo")

	if st.Quote() == nil {
		t.Fatal("expected quote applied to state")
	}
}

func TestDerivedSideUpdateDoesNotRefetch(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(95000000)}}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)
	st.SetSellAmount(decPtr("10"))
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	if got := len(fetcher.snapshot()); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}

	// A quote arriving changes derived amounts but not the fetch key, so
	// the follow-up notification must not fetch again.
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	if got := len(fetcher.snapshot()); got != 1 {
		t.Fatalf("expected no refetch for unchanged key, got %d fetches", got)
	}
}

func TestBuyModeFetchesReverse(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(10000000)}}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)
	st.SetBuyAmount(decPtr("95"))
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	calls := fetcher.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected 1 fetch, got %d", len(calls))
	}
	assert.False(t, calls[0].forward)
	assert.True(t, calls[0].amount.Equal(decimal.NewFromInt(95000000)))
	assert.Equal(t, calls[0].outDenom, "uosmo")
	assert.Equal(t, calls[0].inDenom, "tnam1nam")
}

func TestNoAmountQuotesOneUnit(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(95000000)}}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	calls := fetcher.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected 1 fetch, got %d", len(calls))
	}
	// With no amount typed, a forward quote for one display unit keeps a
	// price on screen.
	assert.True(t, calls[0].forward)
	assert.True(t, calls[0].amount.Equal(decimal.NewFromInt(1000000)))
}

func TestMissingAssetSchedulesNothing(t *testing.T) {
	fetcher := &fakeFetcher{}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, len(fetcher.snapshot()), 0)
}

func TestRefreshGatedOnPhase(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(95000000)}}
	phase := models.PhaseBuilding
	var mu sync.Mutex
	status := func() models.Phase {
		mu.Lock()
		defer mu.Unlock()
		return phase
	}

	st, svc := newFixture(t, fetcher, status)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)
	st.SetSellAmount(decPtr("10"))
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	before := len(fetcher.snapshot())

	// Building: the tick must not refetch under the user.
	svc.onRefreshTick(ctx)
	assert.Equal(t, len(fetcher.snapshot()), before)

	mu.Lock()
	phase = models.PhaseReview
	mu.Unlock()

	svc.onRefreshTick(ctx)
	if got := len(fetcher.snapshot()); got != before+1 {
		t.Fatalf("expected refresh fetch in Review, got %d fetches", got)
	}
}

func TestFetchErrorKeepsLastQuote(t *testing.T) {
	fetcher := &fakeFetcher{quote: models.Quote{Amount: decimal.NewFromInt(95000000)}}
	st, svc := newFixture(t, fetcher, nil)
	ctx := context.Background()

	st.SelectSellAsset(nam)
	st.SelectBuyAsset(osmo)
	st.SetSellAmount(decPtr("10"))
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	if st.Quote() == nil {
		t.Fatal("expected initial quote")
	}

	fetcher.mu.Lock()
	fetcher.err = context.DeadlineExceeded
	fetcher.mu.Unlock()

	st.SetSellAmount(decPtr("20"))
	svc.onIntentChange(ctx)
	time.Sleep(60 * time.Millisecond)

	// The failed refetch leaves the previous quote in place.
	if st.Quote() == nil {
		t.Fatal("expected stale quote to remain available")
	}
}
