// Package config loads the swap daemon configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/maspnet/shieldswap/models"
)

// RouterConfig points at the broker-chain quote router.
type RouterConfig struct {
	URL        string   `toml:"url"`
	BackupURLs []string `toml:"backup_urls"`
	MaxRetries int      `toml:"max_retries"`
	RetryMs    int      `toml:"retry_ms"`
	TimeoutSec int      `toml:"timeout_sec"`
}

// QuoteConfig tunes quote fetch cadence.
type QuoteConfig struct {
	DebounceMs int `toml:"debounce_ms"`
	RefreshSec int `toml:"refresh_sec"`
}

// SwapConfig carries the chain-level swap constants.
type SwapConfig struct {
	ContractAddress   string `toml:"contract_address"`
	ChannelID         string `toml:"channel_id"`
	PortID            string `toml:"port_id"`
	OsmosisRestRPC    string `toml:"osmosis_rest_rpc"`
	ChainID           string `toml:"chain_id"`
	CompletedDelaySec int    `toml:"completed_delay_sec"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RatePerMinute  int      `toml:"rate_per_minute"`
	MaxConcurrent  int      `toml:"max_concurrent_requests"`
	EnableMetrics  bool     `toml:"enable_metrics"`
}

// ServicesConfig points at the external collaborators.
type ServicesConfig struct {
	ChainServiceURL  string `toml:"chain_service_url"`
	WalletServiceURL string `toml:"wallet_service_url"`
}

// Config is the root daemon configuration.
type Config struct {
	DataDir  string         `toml:"data_dir"`
	Router   RouterConfig   `toml:"router"`
	Quote    QuoteConfig    `toml:"quote"`
	Swap     SwapConfig     `toml:"swap"`
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
	Assets   []models.Asset `toml:"assets"`
}

// DefaultConfig returns the configuration used when a field is omitted.
func DefaultConfig() Config {
	return Config{
		DataDir: "data",
		Router: RouterConfig{
			URL:        "https://sqs.osmosis.zone",
			MaxRetries: 2,
			RetryMs:    500,
			TimeoutSec: 10,
		},
		Quote: QuoteConfig{
			DebounceMs: 300,
			RefreshSec: 5,
		},
		Swap: SwapConfig{
			ContractAddress:   "osmo14q5zmg3fp774kpz2j8c52q7gqjn0dnm3vcj3guqpj4p9xylqpc7s2ezh0h",
			ChannelID:         "channel-1",
			PortID:            "transfer",
			OsmosisRestRPC:    "https://osmosis-rest.publicnode.com",
			CompletedDelaySec: 3,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			RatePerMinute: 120,
			MaxConcurrent: 100,
			EnableMetrics: true,
		},
	}
}

// Load reads a TOML config from path on top of the defaults.
func Load(path string) (*Config, error) {
	if !strings.HasSuffix(path, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Router.URL == "" {
		return fmt.Errorf("router.url must be set")
	}
	if c.Swap.ContractAddress == "" {
		return fmt.Errorf("swap.contract_address must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for i, a := range c.Assets {
		if a.Symbol == "" || a.Address == "" {
			return fmt.Errorf("assets[%d]: symbol and address must be set", i)
		}
	}
	return nil
}

// DebounceWindow returns the quote debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Quote.DebounceMs) * time.Millisecond
}

// RefreshInterval returns the quote refresh interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Quote.RefreshSec) * time.Second
}

// CompletedDelay returns how long the completed status stays visible.
func (c *Config) CompletedDelay() time.Duration {
	return time.Duration(c.Swap.CompletedDelaySec) * time.Second
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
