package app

import (
	"testing"

	"phx_market/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParamsFromConfig(t *testing.T) {
	cfg := infra.DefaultConfig()
	cfg.Market.BasePeg = decimal.NewFromInt(50)
	cfg.Market.FloorRatio = 0.5
	cfg.Market.HistoryCapacity = 20
	cfg.Market.ReferenceSupply = decimal.NewFromInt(1_000)
	cfg.Market.LargeTransferThreshold = decimal.NewFromInt(10)

	p := PricingParams(cfg)
	assert.True(t, p.BasePeg.Equal(decimal.NewFromInt(50)))
	assert.True(t, p.Floor().Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 20, p.HistoryCapacity)
	assert.Equal(t, 0.01, p.VolumeWeight, "weights keep their defaults")

	r := RiskParams(cfg)
	assert.True(t, r.ReferenceSupply.Equal(decimal.NewFromInt(1_000)))
	assert.True(t, r.LargeTransferThreshold.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 50, r.LargeTransferWindow)
}

func TestNewBootstrap_DefaultPath(t *testing.T) {
	b := NewBootstrap("", "oracle.log", true)
	assert.Equal(t, DefaultConfigPath, b.configPath)
}
