package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"phx_market/internal/domain"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 PHX_* 환경 변수로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Ledger struct {
		RPCURL            string   `yaml:"rpc_url"`
		WSURL             string   `yaml:"ws_url"` // Empty disables the head watcher
		TokenAddress      string   `yaml:"token_address"`
		TreasuryAddress   string   `yaml:"treasury_address"` // Empty: first node account
		Holders           []string `yaml:"holders"`          // Empty: every node account but the treasury
		Decimals          int32    `yaml:"decimals"`
		ReceiptTimeoutSec int      `yaml:"receipt_timeout_sec"`
	} `yaml:"ledger"`

	Market struct {
		StateFile              string          `yaml:"state_file"`
		BasePeg                decimal.Decimal `yaml:"base_peg"`
		FloorRatio             float64         `yaml:"floor_ratio"`
		HistoryCapacity        int             `yaml:"history_capacity"`
		OperationCapacity      int             `yaml:"operation_capacity"`
		ReferenceSupply        decimal.Decimal `yaml:"reference_supply"`
		LargeTransferThreshold decimal.Decimal `yaml:"large_transfer_threshold"`
	} `yaml:"market"`

	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"` // Empty: per-user data directory
	} `yaml:"archive"`

	Oracle struct {
		TickIntervalSec int    `yaml:"tick_interval_sec"`
		HTTPAddr        string `yaml:"http_addr"`
		PprofAddr       string `yaml:"pprof_addr"`
		DumpDir         string `yaml:"dump_dir"`
	} `yaml:"oracle"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// envOverrides are read from PHX_* variables (and .env).
type envOverrides struct {
	RPCURL          string   `envconfig:"RPC_URL"`
	WSURL           string   `envconfig:"WS_URL"`
	TokenAddress    string   `envconfig:"TOKEN_ADDRESS"`
	TreasuryAddress string   `envconfig:"TREASURY_ADDRESS"`
	Holders         []string `envconfig:"HOLDERS"`
	StateFile       string   `envconfig:"STATE_FILE"`
	ArchivePath     string   `envconfig:"ARCHIVE_PATH"`
	HTTPAddr        string   `envconfig:"HTTP_ADDR"`
	LogLevel        string   `envconfig:"LOG_LEVEL"`
}

// DefaultConfig returns the settings used for anything the file leaves out.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "phx-market"
	cfg.App.Version = "dev"

	cfg.Ledger.RPCURL = "http://127.0.0.1:8545"
	cfg.Ledger.Decimals = 18
	cfg.Ledger.ReceiptTimeoutSec = 30

	cfg.Market.StateFile = "phx_price.json"
	cfg.Market.BasePeg = decimal.NewFromInt(100)
	cfg.Market.FloorRatio = 0.3
	cfg.Market.HistoryCapacity = 100
	cfg.Market.OperationCapacity = 200
	cfg.Market.ReferenceSupply = decimal.NewFromInt(10_000_000)
	cfg.Market.LargeTransferThreshold = decimal.NewFromInt(1000)

	cfg.Oracle.TickIntervalSec = 15
	cfg.Oracle.HTTPAddr = "localhost:9090"
	cfg.Oracle.PprofAddr = "localhost:6060"
	cfg.Oracle.DumpDir = "logs"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Field: "path", Err: fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)}
		}
		return nil, &domain.ConfigError{Field: "path", Err: err}
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !hasPrefix(c.Ledger.RPCURL, "http://") && !hasPrefix(c.Ledger.RPCURL, "https://") &&
		!hasPrefix(c.Ledger.RPCURL, "ws://") && !hasPrefix(c.Ledger.RPCURL, "wss://") {
		return invalid("ledger.rpc_url", "unsupported RPC URL %q", c.Ledger.RPCURL)
	}
	if c.Ledger.WSURL != "" && !hasPrefix(c.Ledger.WSURL, "ws://") && !hasPrefix(c.Ledger.WSURL, "wss://") {
		return invalid("ledger.ws_url", "invalid websocket URL %q", c.Ledger.WSURL)
	}
	if c.Ledger.Decimals < 0 || c.Ledger.Decimals > 36 {
		return invalid("ledger.decimals", "out of range: %d", c.Ledger.Decimals)
	}

	if c.Market.StateFile == "" {
		return invalid("market.state_file", "must not be empty")
	}
	if !c.Market.BasePeg.IsPositive() {
		return invalid("market.base_peg", "must be positive")
	}
	if c.Market.FloorRatio <= 0 || c.Market.FloorRatio >= 1 {
		return invalid("market.floor_ratio", "must be in (0, 1), got %v", c.Market.FloorRatio)
	}
	if c.Market.HistoryCapacity < 1 || c.Market.HistoryCapacity > domain.MaxHistoryCapacity {
		return invalid("market.history_capacity", "must be in [1, %d], got %d", domain.MaxHistoryCapacity, c.Market.HistoryCapacity)
	}
	if c.Market.OperationCapacity <= 0 {
		return invalid("market.operation_capacity", "must be positive")
	}
	if !c.Market.ReferenceSupply.IsPositive() {
		return invalid("market.reference_supply", "must be positive")
	}

	if c.Oracle.TickIntervalSec <= 0 {
		return invalid("oracle.tick_interval_sec", "must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}

	return nil
}

func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	// .env is optional
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process("PHX", &env); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}

	if env.RPCURL != "" {
		cfg.Ledger.RPCURL = env.RPCURL
	}
	if env.WSURL != "" {
		cfg.Ledger.WSURL = env.WSURL
	}
	if env.TokenAddress != "" {
		cfg.Ledger.TokenAddress = env.TokenAddress
	}
	if env.TreasuryAddress != "" {
		cfg.Ledger.TreasuryAddress = env.TreasuryAddress
	}
	if len(env.Holders) > 0 {
		cfg.Ledger.Holders = env.Holders
	}
	if env.StateFile != "" {
		cfg.Market.StateFile = env.StateFile
	}
	if env.ArchivePath != "" {
		cfg.Archive.Path = env.ArchivePath
	}
	if env.HTTPAddr != "" {
		cfg.Oracle.HTTPAddr = env.HTTPAddr
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	return nil
}
