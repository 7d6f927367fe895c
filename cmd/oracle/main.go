package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phx_market/internal/api"
	"phx_market/internal/app"
	"phx_market/internal/domain"
	"phx_market/internal/engine"
	"phx_market/internal/event"
	"phx_market/internal/infra/evm"
	"phx_market/internal/trend"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath, "oracle.log", true)
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config
	metrics := bootstrap.Metrics

	// 3. Pprof Server (for performance profiling)
	if cfg.Oracle.PprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", cfg.Oracle.PprofAddr))
			if err := http.ListenAndServe(cfg.Oracle.PprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Tick loop
	interval := time.Duration(cfg.Oracle.TickIntervalSec) * time.Second
	crossover, err := trend.NewCrossover(5, 10)
	if err != nil {
		slog.Error("❌ Invalid trend periods", slog.Any("error", err))
		os.Exit(1)
	}
	for _, s := range bootstrap.Service.History(ctx) {
		crossover.Observe(s.Price.InexactFloat64())
	}
	ticker := engine.NewTicker(1024, bootstrap.Service, interval, metrics, func(snap domain.MarketSnapshot) {
		slog.Debug("Snapshot published",
			slog.String("price", snap.Price.String()),
			slog.String("crash_probability", snap.CrashProbabilityPercent.String()),
		)
		// Runs on the tick loop goroutine only
		if d := crossover.Observe(snap.Price.InexactFloat64()); d != trend.None {
			short, long, _ := crossover.Averages()
			slog.Info("📈 Trend signal", slog.String("direction", d.String()),
				slog.Float64("ma5", short), slog.Float64("ma10", long))
			metrics.RecordTrendSignal(d.String())
		}
	})
	ticker.SetDumpPath(cfg.Oracle.DumpDir)
	go ticker.Run(ctx)
	slog.InfoContext(ctx, "✅ Tick loop started", slog.Duration("interval", interval))

	// 5. Head watcher (optional)
	if cfg.Ledger.WSURL != "" {
		watcher := evm.NewHeadWatcher(cfg.Ledger.WSURL, ticker.Inbox(), &event.Sequence{}, metrics)
		if err := watcher.Connect(ctx); err != nil {
			slog.Error("Failed to start head watcher", slog.Any("error", err))
		}
		defer watcher.Disconnect()
		slog.InfoContext(ctx, "✅ Head watcher started", slog.String("url", cfg.Ledger.WSURL))
	}

	// 6. HTTP API
	server := api.NewServer(bootstrap.Service, cfg.Oracle.HTTPAddr, metrics.Handler()).HTTPServer()
	go func() {
		slog.Info("🌐 API server started", slog.String("addr", cfg.Oracle.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ PHX market oracle fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API server shutdown", slog.Any("error", err))
	}
}
