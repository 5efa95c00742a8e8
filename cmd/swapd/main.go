package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/maspnet/shieldswap/config"
	"github.com/maspnet/shieldswap/ledger"
	"github.com/maspnet/shieldswap/pipeline"
	"github.com/maspnet/shieldswap/quote"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/rpc"
	"github.com/maspnet/shieldswap/sqsquery"
	"github.com/maspnet/shieldswap/state"
	"github.com/maspnet/shieldswap/store"
	"github.com/maspnet/shieldswap/wallet"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./swapd.toml", "config file for the swap daemon")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting shieldswap daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	persist, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer persist.Close()

	// Surface refund targets left behind by interrupted attempts.
	if signers, err := persist.Signers(); err != nil {
		log.Warn().Err(err).Msg("Failed to scan persisted signers")
	} else if len(signers) > 0 {
		for _, s := range signers {
			log.Warn().
				Str("address", s.Address).
				Time("created_at", s.CreatedAt).
				Msg("Found persisted refund target from interrupted attempt")
		}
	}

	reg := registry.New(cfg.Assets)
	log.Info().Int("count", len(cfg.Assets)).Msg("Loaded assets")

	st := state.New(persist, reg)

	var router *sqsquery.Client
	if len(cfg.Router.BackupURLs) > 0 {
		router = sqsquery.NewClientWithFailover(cfg.Router.URL, cfg.Router.BackupURLs, sqsquery.ClientConfig{
			MaxRetries: cfg.Router.MaxRetries,
			RetryDelay: time.Duration(cfg.Router.RetryMs) * time.Millisecond,
			Timeout:    time.Duration(cfg.Router.TimeoutSec) * time.Second,
		})
		log.Info().
			Str("primary", cfg.Router.URL).
			Int("backups", len(cfg.Router.BackupURLs)).
			Msg("Router client initialized with failover")
	} else {
		router = sqsquery.NewClient(cfg.Router.URL)
		log.Info().Str("url", cfg.Router.URL).Msg("Router client initialized")
	}

	chain := ledger.NewClient(cfg.Services.ChainServiceURL, ledger.DefaultClientConfig())
	walletClient := wallet.NewClient(cfg.Services.WalletServiceURL, 10*time.Second)

	pipe := pipeline.New(st, persist, walletClient, chain, nil, pipeline.Config{
		ContractAddress:       cfg.Swap.ContractAddress,
		ChannelID:             cfg.Swap.ChannelID,
		PortID:                cfg.Swap.PortID,
		OsmosisRestRPC:        cfg.Swap.OsmosisRestRPC,
		ChainID:               cfg.Swap.ChainID,
		CompletedDisplayDelay: cfg.CompletedDelay(),
	})

	quotes := quote.NewService(st, reg, router, pipe.Phase, quote.Options{
		DebounceWindow:  cfg.DebounceWindow(),
		RefreshInterval: cfg.RefreshInterval(),
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go chain.Run(ctx)
	go pipe.Run(ctx)
	go quotes.Run(ctx)

	serverConfig := &rpc.ServerConfig{
		Address:        cfg.ListenAddr(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		EnableMetrics:  cfg.Server.EnableMetrics,
	}
	if cfg.Server.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.Server.RatePerMinute
	}
	if cfg.Server.MaxConcurrent > 0 {
		serverConfig.Burst = &cfg.Server.MaxConcurrent
	}

	server, err := rpc.NewServer(ctx, serverConfig, st, reg, pipe)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	cancel()
}
