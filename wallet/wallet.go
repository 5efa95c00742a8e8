// Package wallet defines the wallet collaborator: the source of accounts,
// balances, gas configuration and disposable signers. Like the chain
// service it is consumed over HTTP and never exposes key material.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/ledger"
	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/signer"
)

// errNotImplemented marks endpoints the wallet service does not offer.
var errNotImplemented = errors.New("endpoint not implemented")

// HardwareInfo reports hardware signing device state. A nil *HardwareInfo
// means the wallet does not involve a hardware device at all.
type HardwareInfo struct {
	DeviceConnected bool   `json:"device_connected"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Wallet is the account and signing-material source for the pipeline.
type Wallet interface {
	// Accounts returns the default accounts; the pipeline picks the
	// shielded one as swap source and the transparent one for fees.
	Accounts(ctx context.Context) ([]models.Account, error)
	// ConnectedAddress is the connected wallet address, empty when no
	// wallet is connected.
	ConnectedAddress(ctx context.Context) (string, error)
	// SpendableBalance is the balance of token available for the swap
	// after reserving the transaction fee.
	SpendableBalance(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
	// Hardware reports hardware device connectivity, nil when none.
	Hardware(ctx context.Context) (*HardwareInfo, error)
	// FreshSigner returns a never-before-used disposable signer.
	FreshSigner(ctx context.Context) (models.DisposableSigner, error)
	// GasConfig is the current fee configuration for an IBC transfer.
	GasConfig(ctx context.Context) (ledger.GasConfig, error)
}

// Client implements Wallet against a wallet service over HTTP. Wallet
// services that do not mint disposable signers themselves fall back to a
// local provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	fallback   signer.Provider
}

// NewClient creates a wallet client against baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		fallback:   signer.NewRandomProvider(""),
	}
}

func (c *Client) Accounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := c.get(ctx, "/wallet/accounts", &accounts); err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	return accounts, nil
}

func (c *Client) ConnectedAddress(ctx context.Context) (string, error) {
	var status struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, "/wallet/status", &status); err != nil {
		return "", fmt.Errorf("failed to fetch wallet status: %w", err)
	}
	return status.Address, nil
}

func (c *Client) SpendableBalance(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	var resp struct {
		Amount decimal.Decimal `json:"amount"`
	}
	path := "/wallet/balance?token=" + url.QueryEscape(tokenAddress)
	if err := c.get(ctx, path, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return resp.Amount, nil
}

func (c *Client) Hardware(ctx context.Context) (*HardwareInfo, error) {
	var resp struct {
		Hardware *HardwareInfo `json:"hardware"`
	}
	if err := c.get(ctx, "/wallet/hardware", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch hardware status: %w", err)
	}
	return resp.Hardware, nil
}

func (c *Client) FreshSigner(ctx context.Context) (models.DisposableSigner, error) {
	var s models.DisposableSigner
	err := c.post(ctx, "/wallet/signer", &s)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, errNotImplemented) {
		return c.fallback.Fresh(ctx)
	}
	return models.DisposableSigner{}, fmt.Errorf("failed to obtain disposable signer: %w", err)
}

func (c *Client) GasConfig(ctx context.Context) (ledger.GasConfig, error) {
	var gas ledger.GasConfig
	if err := c.get(ctx, "/wallet/gas", &gas); err != nil {
		return ledger.GasConfig{}, fmt.Errorf("failed to fetch gas config: %w", err)
	}
	return gas, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented {
		return fmt.Errorf("%w: %s", errNotImplemented, path)
	}
	if resp.StatusCode != http.StatusOK {
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

// ShieldedAccount picks the shielded account from accounts.
func ShieldedAccount(accounts []models.Account) (models.Account, bool) {
	for _, a := range accounts {
		if a.Type == models.AccountShielded {
			return a, true
		}
	}
	return models.Account{}, false
}

// TransparentAccount picks the first non-shielded account from accounts.
func TransparentAccount(accounts []models.Account) (models.Account, bool) {
	for _, a := range accounts {
		if a.Type != models.AccountShielded {
			return a, true
		}
	}
	return models.Account{}, false
}
