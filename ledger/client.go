package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/maspnet/shieldswap/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "ledger").Logger()
}

// Client talks to the chain service over HTTP. Build, sign and broadcast
// are plain JSON POSTs; outcome events arrive on a streamed
// newline-delimited JSON connection that the client keeps open, with
// reconnect and backoff, for as long as Run's context lives.
type Client struct {
	httpClient *http.Client
	baseURL    string

	events         chan OutcomeEvent
	reconnectDelay time.Duration
}

// ClientConfig controls timeouts and event-stream reconnection.
type ClientConfig struct {
	// Timeout bounds build and broadcast calls. Sign is exempt: it can
	// wait on a hardware device indefinitely.
	Timeout        time.Duration
	ReconnectDelay time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        60 * time.Second,
		ReconnectDelay: 2 * time.Second,
	}
}

// NewClient creates a chain service client against baseURL.
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultClientConfig().ReconnectDelay
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        baseURL,
		events:         make(chan OutcomeEvent, 16),
		reconnectDelay: cfg.ReconnectDelay,
	}
}

type buildRequest struct {
	Signer  models.DisposableSigner `json:"signer"`
	Account models.Account          `json:"account"`
	Params  []BuildParams           `json:"params"`
	Gas     GasConfig               `json:"gas"`
}

// Build asks the chain service to assemble the swap transaction. The
// fee signer pays the wrapper fee; it is never persisted locally.
func (c *Client) Build(ctx context.Context, signer models.DisposableSigner, account models.Account, params BuildParams, gas GasConfig) (EncodedTx, error) {
	var encoded EncodedTx
	req := buildRequest{Signer: signer, Account: account, Params: []BuildParams{params}, Gas: gas}
	if err := c.post(ctx, "/tx/build", req, &encoded); err != nil {
		return EncodedTx{}, fmt.Errorf("build failed: %w", err)
	}
	return encoded, nil
}

type signRequest struct {
	Encoded       EncodedTx `json:"encoded"`
	SignerAddress string    `json:"signer_address"`
}

// Sign requests a signature over the encoded transaction. No client-side
// timeout applies; pass a bounded ctx to cap the wait.
func (c *Client) Sign(ctx context.Context, encoded EncodedTx, signerAddress string) (SignedTx, error) {
	var signed SignedTx
	req := signRequest{Encoded: encoded, SignerAddress: signerAddress}
	if err := c.postWithClient(ctx, &http.Client{}, "/tx/sign", req, &signed); err != nil {
		return SignedTx{}, fmt.Errorf("sign failed: %w", err)
	}
	return signed, nil
}

type broadcastRequest struct {
	Encoded EncodedTx `json:"encoded"`
	Signed  SignedTx  `json:"signed"`
	Kind    string    `json:"kind"`
}

// Broadcast submits the signed transaction. Settlement is reported later
// on the Events stream, not by this call.
func (c *Client) Broadcast(ctx context.Context, encoded EncodedTx, signed SignedTx, kind string) error {
	req := broadcastRequest{Encoded: encoded, Signed: signed, Kind: kind}
	if err := c.post(ctx, "/tx/broadcast", req, nil); err != nil {
		return fmt.Errorf("broadcast failed: %w", err)
	}
	return nil
}

// Events returns the outcome event stream. Run must be started for events
// to flow.
func (c *Client) Events() <-chan OutcomeEvent {
	return c.events
}

// Run keeps the event stream connected until ctx is done.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.streamEvents(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Event stream disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) streamEvents(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/events", nil)
	if err != nil {
		return err
	}

	// Streaming connection: no client timeout, ctx governs the lifetime.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev OutcomeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed outcome event")
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.postWithClient(ctx, c.httpClient, path, body, out)
}

func (c *Client) postWithClient(ctx context.Context, client *http.Client, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var msg struct {
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &msg); jsonErr == nil && msg.Message != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
