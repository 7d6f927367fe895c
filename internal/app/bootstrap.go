package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"phx_market/internal/infra"
	"phx_market/internal/infra/evm"
	"phx_market/internal/infra/storage"
	"phx_market/internal/ledger"
	"phx_market/internal/pricing"
	"phx_market/internal/risk"
	"phx_market/internal/service"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Metrics *infra.Metrics
	Ledger  *evm.Client
	Store   *storage.StateFile
	Archive *storage.Archive
	Service *service.MarketService

	configPath string
	logFile    string
	console    bool
}

// NewBootstrap creates a new Bootstrap instance. console selects logging to
// stdout as well as the rotating file; CLIs keep stdout for their output.
func NewBootstrap(configPath, logFile string, console bool) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{configPath: configPath, logFile: logFile, console: console}
}

// Initialize loads config, sets up logging and metrics, dials the ledger and
// builds the market service.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	if b.console {
		slog.SetDefault(infra.NewLogger(cfg, b.logFile))
	} else {
		slog.SetDefault(infra.NewFileLogger(cfg, b.logFile))
	}
	slog.Info("🚀 Bootstrapping PHX market...", slog.String("version", cfg.App.Version))

	// 3. Metrics
	b.Metrics = infra.NewMetrics("")

	// 4. Ledger
	client, err := evm.Dial(ctx, evm.Config{
		RPCURL:         cfg.Ledger.RPCURL,
		TokenAddress:   cfg.Ledger.TokenAddress,
		Decimals:       cfg.Ledger.Decimals,
		ReceiptTimeout: time.Duration(cfg.Ledger.ReceiptTimeoutSec) * time.Second,
	}, b.Metrics)
	if err != nil {
		return fmt.Errorf("failed to connect ledger: %w", err)
	}
	b.Ledger = client
	slog.Info("✅ Ledger connected", slog.String("rpc", cfg.Ledger.RPCURL), slog.String("token", cfg.Ledger.TokenAddress))

	// 5. Shared state and optional archive
	b.Store = storage.NewStateFile(cfg.Market.StateFile, cfg.Market.BasePeg, b.Metrics)
	b.Store.SetHistoryCapacity(cfg.Market.HistoryCapacity)
	if cfg.Archive.Enabled {
		archive, err := storage.NewArchive(cfg.Archive.Path)
		if err != nil {
			// The archive is auxiliary; run without it
			slog.Warn("Archive unavailable, continuing without it", slog.Any("error", err))
		} else {
			b.Archive = archive
			slog.Info("✅ Archive initialized")
		}
	}

	// 6. Market service
	opts := service.Options{
		Ledger:            client,
		Store:             b.Store,
		Holders:           ledger.NewHolders(client, cfg.Ledger.TreasuryAddress, cfg.Ledger.Holders),
		Pricing:           PricingParams(cfg),
		Risk:              RiskParams(cfg),
		RiskObserver:      b.Metrics,
		OperationCapacity: cfg.Market.OperationCapacity,
		Observer:          b.Metrics,
	}
	if b.Archive != nil {
		opts.Archive = b.Archive
	}
	b.Service = service.NewMarketService(opts)

	return nil
}

// Close releases the ledger connection and the archive.
func (b *Bootstrap) Close() {
	if b.Ledger != nil {
		b.Ledger.Close()
	}
	if b.Archive != nil {
		if err := b.Archive.Close(); err != nil {
			slog.Warn("Failed to close archive", slog.Any("error", err))
		}
	}
}

// PricingParams maps the market section onto the pricing weights.
func PricingParams(cfg *infra.Config) pricing.Params {
	p := pricing.DefaultParams()
	p.BasePeg = cfg.Market.BasePeg
	p.FloorRatio = cfg.Market.FloorRatio
	p.HistoryCapacity = cfg.Market.HistoryCapacity
	return p
}

// RiskParams maps the market section onto the risk tuning.
func RiskParams(cfg *infra.Config) risk.Params {
	p := risk.DefaultParams()
	p.ReferenceSupply = cfg.Market.ReferenceSupply
	p.LargeTransferThreshold = cfg.Market.LargeTransferThreshold
	return p
}
