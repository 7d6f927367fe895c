package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
ledger:
  rpc_url: "http://localhost:7545"
  token_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
market:
  base_peg: "250"
  large_transfer_threshold: "5000"
oracle:
  tick_interval_sec: 5
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Ledger.RPCURL != "http://localhost:7545" {
		t.Errorf("unexpected rpc url %q", cfg.Ledger.RPCURL)
	}
	if !cfg.Market.BasePeg.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected base peg 250, got %s", cfg.Market.BasePeg)
	}
	if !cfg.Market.LargeTransferThreshold.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected threshold 5000, got %s", cfg.Market.LargeTransferThreshold)
	}
	// Defaults survive for omitted keys
	if cfg.Market.HistoryCapacity != 100 || cfg.Ledger.Decimals != 18 {
		t.Errorf("defaults lost: capacity=%d decimals=%d", cfg.Market.HistoryCapacity, cfg.Ledger.Decimals)
	}
	if cfg.Market.StateFile != "phx_price.json" {
		t.Errorf("unexpected state file %q", cfg.Market.StateFile)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
ledger:
  rpc_url: "http://localhost:7545"
`)
	t.Setenv("PHX_RPC_URL", "http://node:8545")
	t.Setenv("PHX_STATE_FILE", "/shared/phx_price.json")
	t.Setenv("PHX_HOLDERS", "0xA,0xB")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Ledger.RPCURL != "http://node:8545" {
		t.Errorf("env override not applied: %q", cfg.Ledger.RPCURL)
	}
	if cfg.Market.StateFile != "/shared/phx_price.json" {
		t.Errorf("env override not applied: %q", cfg.Market.StateFile)
	}
	if len(cfg.Ledger.Holders) != 2 || cfg.Ledger.Holders[1] != "0xB" {
		t.Errorf("unexpected holders %v", cfg.Ledger.Holders)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("Expected ErrConfigNotFound, got %v", err)
	}
	if domain.IsRetriable(err) {
		t.Error("config errors must not be retriable")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad rpc", func(c *Config) { c.Ledger.RPCURL = "localhost:8545" }, "ledger.rpc_url"},
		{"bad ws", func(c *Config) { c.Ledger.WSURL = "http://x" }, "ledger.ws_url"},
		{"zero peg", func(c *Config) { c.Market.BasePeg = decimal.Zero }, "market.base_peg"},
		{"floor ratio", func(c *Config) { c.Market.FloorRatio = 1.5 }, "market.floor_ratio"},
		{"capacity", func(c *Config) { c.Market.HistoryCapacity = 0 }, "market.history_capacity"},
		{"capacity above max", func(c *Config) { c.Market.HistoryCapacity = 101 }, "market.history_capacity"},
		{"interval", func(c *Config) { c.Oracle.TickIntervalSec = 0 }, "oracle.tick_interval_sec"},
		{"level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			var cerr *domain.ConfigError
			if err := cfg.Validate(); !errors.As(err, &cerr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cerr.Field)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	prevMax := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := CalculateBackoff(attempt)
		if d <= 0 || d > maxBackoff {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
		if d < prevMax/2 {
			t.Errorf("attempt %d: backoff %v shrank from %v", attempt, d, prevMax)
		}
		if d > prevMax {
			prevMax = d
		}
	}
	if d := CalculateBackoff(0); d > baseBackoff {
		t.Errorf("first attempt should be at most %v, got %v", baseBackoff, d)
	}
}
