// Package quote fetches price quotes from the router and keeps the shared
// swap state current. Fetches are debounced against rapid intent edits and
// refreshed on a fixed interval while the swap is idle or under review.
package quote

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/sqsquery"
	"github.com/maspnet/shieldswap/state"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "quote").Logger()
}

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldswap_quote_fetches_total",
		Help: "Quote fetches issued to the router, by result.",
	}, []string{"result"})
)

// Fetcher is the router client surface the service needs. Satisfied by
// *sqsquery.Client.
type Fetcher interface {
	QuoteForward(ctx context.Context, baseAmount decimal.Decimal, tokenInDenom, tokenOutDenom string) (*models.Quote, error)
	QuoteReverse(ctx context.Context, baseAmount decimal.Decimal, tokenOutDenom, tokenInDenom string) (*models.Quote, error)
}

// StatusFunc reports the current pipeline phase. Periodic refresh only
// runs while the phase is Idle or Review.
type StatusFunc func() models.Phase

// Options tune the fetch cadence. Zero values take the defaults.
type Options struct {
	DebounceWindow  time.Duration
	RefreshInterval time.Duration
}

const (
	defaultDebounceWindow  = 300 * time.Millisecond
	defaultRefreshInterval = 5 * time.Second
)

// Service drives quote fetching for the swap state store.
type Service struct {
	state    *state.Store
	registry *registry.Registry
	fetcher  Fetcher
	status   StatusFunc

	debounceWindow  time.Duration
	refreshInterval time.Duration

	deb debouncer

	mu      sync.Mutex
	lastKey fetchKey
	hasKey  bool
}

// NewService creates a Service. status may be nil, in which case refresh
// is always considered allowed.
func NewService(st *state.Store, reg *registry.Registry, fetcher Fetcher, status StatusFunc, opts Options) *Service {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = defaultDebounceWindow
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if status == nil {
		status = func() models.Phase { return models.PhaseIdle }
	}
	return &Service{
		state:           st,
		registry:        reg,
		fetcher:         fetcher,
		status:          status,
		debounceWindow:  opts.DebounceWindow,
		refreshInterval: opts.RefreshInterval,
	}
}

// fetchKey identifies one logical quote request. Only the authoritative
// side's amount participates, so a derived-side update does not refetch.
type fetchKey struct {
	sellDenom  string
	buyDenom   string
	mode       models.Mode
	baseAmount string
}

// keyFor computes the fetch key for the current intent. ok is false when
// the intent is not yet quotable (missing asset or amount). A resolution
// failure on a selected asset is returned as an error; both swap assets
// must carry a routable denom before any quote can be fetched.
func (s *Service) keyFor(intent models.SwapIntent) (key fetchKey, ok bool, err error) {
	if intent.SellAsset == nil || intent.BuyAsset == nil {
		return key, false, nil
	}

	sellDenom, err := s.registry.RoutableDenom(*intent.SellAsset)
	if err != nil {
		return key, false, err
	}
	buyDenom, err := s.registry.RoutableDenom(*intent.BuyAsset)
	if err != nil {
		return key, false, err
	}

	key = fetchKey{sellDenom: sellDenom, buyDenom: buyDenom, mode: intent.Mode}
	switch intent.Mode {
	case models.ModeSell:
		if intent.SellAmount == nil || intent.SellAmount.IsZero() {
			return key, false, nil
		}
		key.baseAmount = models.ToBaseAmount(*intent.SellAsset, *intent.SellAmount).String()
	case models.ModeBuy:
		if intent.BuyAmount == nil || intent.BuyAmount.IsZero() {
			return key, false, nil
		}
		key.baseAmount = models.ToBaseAmount(*intent.BuyAsset, *intent.BuyAmount).String()
	default:
		// No amount typed yet: quote one display unit of the buy asset so
		// the pair's price can be shown.
		key.baseAmount = models.ToBaseAmount(*intent.BuyAsset, decimal.NewFromInt(1)).String()
	}
	return key, true, nil
}

// Run processes intent changes and periodic refreshes until ctx is done.
func (s *Service) Run(ctx context.Context) {
	changes, cancel := s.state.Subscribe()
	defer cancel()
	defer s.deb.Stop()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	s.onIntentChange(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			s.onIntentChange(ctx)
		case <-ticker.C:
			s.onRefreshTick(ctx)
		}
	}
}

// onIntentChange recomputes the fetch key and schedules a debounced fetch
// when the key changed. Re-scheduling cancels any pending timer, so a
// burst of edits yields one fetch with the last edit's parameters.
func (s *Service) onIntentChange(ctx context.Context) {
	key, ok, err := s.keyFor(s.state.Intent())
	if err != nil {
		log.Error().Err(err).Msg("Cannot resolve routable denom for selected pair")
		s.setKey(fetchKey{}, false)
		return
	}
	if !ok {
		s.setKey(fetchKey{}, false)
		s.deb.Stop()
		return
	}
	if !s.setKey(key, true) {
		return
	}

	s.deb.Schedule(s.debounceWindow, func() {
		s.fetch(ctx, key)
	})
}

// onRefreshTick refetches the current key immediately while the pipeline
// is in a phase where the quote can still change under the user.
func (s *Service) onRefreshTick(ctx context.Context) {
	phase := s.status()
	if phase != models.PhaseIdle && phase != models.PhaseReview {
		return
	}

	s.mu.Lock()
	key, ok := s.lastKey, s.hasKey
	s.mu.Unlock()
	if !ok {
		return
	}
	s.fetch(ctx, key)
}

// setKey records key and reports whether it differs from the previous one.
func (s *Service) setKey(key fetchKey, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := !ok || !s.hasKey || key != s.lastKey
	s.lastKey, s.hasKey = key, ok
	return changed
}

func (s *Service) fetch(ctx context.Context, key fetchKey) {
	amount, err := decimal.NewFromString(key.baseAmount)
	if err != nil {
		log.Error().Str("amount", key.baseAmount).Msg("Bad base amount in fetch key")
		return
	}

	var q *models.Quote
	if key.mode == models.ModeBuy {
		q, err = s.fetcher.QuoteReverse(ctx, amount, key.buyDenom, key.sellDenom)
	} else {
		q, err = s.fetcher.QuoteForward(ctx, amount, key.sellDenom, key.buyDenom)
	}
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		var fe *sqsquery.FetchError
		if errors.As(err, &fe) {
			log.Warn().Str("message", fe.Message).Msg("Router rejected quote request")
		} else {
			log.Warn().Err(err).Msg("Quote fetch failed")
		}
		// Keep the last known quote on screen; the refresh interval is the
		// retry mechanism for transient failures.
		return
	}

	fetchesTotal.WithLabelValues("ok").Inc()

	// Drop the response if the intent moved to a different key while the
	// request was in flight.
	current, ok, err := s.keyFor(s.state.Intent())
	if err != nil || !ok || current != key {
		log.Debug().Msg("Discarding quote for superseded fetch key")
		return
	}
	s.state.ApplyQuote(q)
}

// debouncer coalesces scheduled calls: scheduling cancels any pending
// timer, so only the most recent one fires.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
