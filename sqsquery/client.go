package sqsquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "sqs").Logger()
}

// ErrNoRoutableDenom is returned when an asset cannot be mapped to a denom
// the router understands. This is a precondition failure, not a fetch error.
var ErrNoRoutableDenom = errors.New("asset has no routable denom")

// FetchError is a recoverable quote failure. The router reports these as a
// JSON body with a single message field.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string { return e.Message }

// Client queries the router's quote endpoint with retry and failover to
// backup endpoints when the primary is unavailable.
type Client struct {
	httpClient *http.Client
	primaryURL string
	backupURLs []string
	currentURL string
	mu         sync.RWMutex

	maxRetries int
	retryDelay time.Duration
}

// ClientConfig controls retry and failover behavior.
type ClientConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Timeout:    10 * time.Second,
	}
}

// NewClient creates a Client against a single endpoint.
func NewClient(apiURL string) *Client {
	return NewClientWithFailover(apiURL, nil, DefaultClientConfig())
}

// NewClientWithFailover creates a Client with backup endpoints.
func NewClientWithFailover(primaryURL string, backupURLs []string, cfg ClientConfig) *Client {
	if _, err := url.Parse(primaryURL); err != nil {
		log.Fatal().Err(err).Str("url", primaryURL).Msg("Failed to parse router URL")
		return nil
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		primaryURL: primaryURL,
		backupURLs: validBackups,
		currentURL: primaryURL,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

func (c *Client) getCurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover rotates to the next endpoint in the primary+backups list.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := 0
	for i, u := range all {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}
	next := all[(currentIdx+1)%len(all)]
	if next == c.currentURL {
		return false
	}
	c.currentURL = next
	log.Info().Str("url", next).Msg("Failover to endpoint")
	return true
}

// doRequest performs a GET with retry on the current endpoint, then one
// attempt on the next endpoint after failover.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		body, err := c.get(ctx, c.getCurrentURL()+path)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.get(ctx, c.getCurrentURL()+path)
		if err == nil {
			return body, nil
		}
		return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries+1, lastErr)
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	// The router returns quote errors as 4xx with a message body; surface
	// those as FetchError instead of retrying them.
	if resp.StatusCode != http.StatusOK {
		var qr quoteResponse
		if jsonErr := json.Unmarshal(body, &qr); jsonErr == nil && qr.Message != "" {
			return nil, &FetchError{Message: qr.Message}
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// QuoteForward requests an exact-in quote: sell baseAmount of tokenInDenom
// for tokenOutDenom.
func (c *Client) QuoteForward(ctx context.Context, baseAmount decimal.Decimal, tokenInDenom, tokenOutDenom string) (*models.Quote, error) {
	path := fmt.Sprintf(
		"/router/quote?tokenIn=%s&tokenOutDenom=%s&humanDenoms=false",
		url.QueryEscape(baseAmount.String()+tokenInDenom),
		url.QueryEscape(tokenOutDenom),
	)
	return c.fetchQuote(ctx, path, true)
}

// QuoteReverse requests an exact-out quote: buy baseAmount of tokenOutDenom
// paying with tokenInDenom.
func (c *Client) QuoteReverse(ctx context.Context, baseAmount decimal.Decimal, tokenOutDenom, tokenInDenom string) (*models.Quote, error) {
	path := fmt.Sprintf(
		"/router/quote?tokenOut=%s&tokenInDenom=%s&humanDenoms=false",
		url.QueryEscape(baseAmount.String()+tokenOutDenom),
		url.QueryEscape(tokenInDenom),
	)
	return c.fetchQuote(ctx, path, false)
}

func (c *Client) fetchQuote(ctx context.Context, path string, forward bool) (*models.Quote, error) {
	body, err := c.doRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if resp.Route == nil {
		if resp.Message != "" {
			return nil, &FetchError{Message: resp.Message}
		}
		return nil, errors.New("quote response has no route")
	}

	amountIn, amountOut, err := parseAmounts(resp, forward)
	if err != nil {
		return nil, err
	}

	effectiveFee, err := decimal.NewFromString(resp.EffectiveFee)
	if err != nil {
		return nil, fmt.Errorf("bad effective_fee %q: %w", resp.EffectiveFee, err)
	}
	priceImpact, err := decimal.NewFromString(resp.PriceImpact)
	if err != nil {
		return nil, fmt.Errorf("bad price_impact %q: %w", resp.PriceImpact, err)
	}

	routes := make([]models.Route, 0, len(resp.Route))
	for _, hop := range resp.Route {
		pools := make([]models.Pool, 0, len(hop.Pools))
		for _, p := range hop.Pools {
			pools = append(pools, models.Pool{
				PoolID:        strconv.Itoa(p.ID),
				TokenOutDenom: p.TokenOutDenom,
			})
		}
		routes = append(routes, models.Route{Pools: pools})
	}

	// Amount is the side the user did not type: the output on a forward
	// quote, the input on a reverse one.
	amount := amountOut
	if !forward {
		amount = amountIn
	}

	return &models.Quote{
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		Amount:       amount,
		EffectiveFee: effectiveFee,
		PriceImpact:  priceImpact,
		Routes:       routes,
	}, nil
}

// parseAmounts handles the two response shapes: forward quotes carry an
// object amount_in and a bare string amount_out, reverse quotes the inverse.
func parseAmounts(resp quoteResponse, forward bool) (amountIn, amountOut decimal.Decimal, err error) {
	if forward {
		var in coinAmount
		if err = json.Unmarshal(resp.AmountIn, &in); err != nil {
			return amountIn, amountOut, fmt.Errorf("bad amount_in: %w", err)
		}
		var out string
		if err = json.Unmarshal(resp.AmountOut, &out); err != nil {
			return amountIn, amountOut, fmt.Errorf("bad amount_out: %w", err)
		}
		if amountIn, err = decimal.NewFromString(in.Amount); err != nil {
			return amountIn, amountOut, fmt.Errorf("bad amount_in %q: %w", in.Amount, err)
		}
		if amountOut, err = decimal.NewFromString(out); err != nil {
			return amountIn, amountOut, fmt.Errorf("bad amount_out %q: %w", out, err)
		}
		return amountIn, amountOut, nil
	}

	var in string
	if err = json.Unmarshal(resp.AmountIn, &in); err != nil {
		return amountIn, amountOut, fmt.Errorf("bad amount_in: %w", err)
	}
	var out coinAmount
	if err = json.Unmarshal(resp.AmountOut, &out); err != nil {
		return amountIn, amountOut, fmt.Errorf("bad amount_out: %w", err)
	}
	if amountIn, err = decimal.NewFromString(in); err != nil {
		return amountIn, amountOut, fmt.Errorf("bad amount_in %q: %w", in, err)
	}
	if amountOut, err = decimal.NewFromString(out.Amount); err != nil {
		return amountIn, amountOut, fmt.Errorf("bad amount_out %q: %w", out.Amount, err)
	}
	return amountIn, amountOut, nil
}
