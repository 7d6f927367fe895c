package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"phx_market/internal/analytics"
	"phx_market/internal/domain"
	"phx_market/internal/trend"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samples(prices ...float64) []domain.PriceSample {
	out := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceSample{Price: decimal.NewFromFloat(p)}
	}
	return out
}

func TestWriteSummary(t *testing.T) {
	stats, err := analytics.ComputeStatistics(samples(100, 102, 101))
	require.NoError(t, err)

	snap := domain.NewMarketSnapshot(decimal.NewFromInt(101), decimal.NewFromInt(100),
		domain.TransferSummary{}, domain.RiskSnapshot{Concentration: 0.25},
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, stats, snap))
	out := buf.String()

	assert.Contains(t, out, "MARKET SUMMARY AS OF 2026-01-02 03:04:05")
	assert.Contains(t, out, "LAST PRICE: $  101.00")
	assert.Contains(t, out, "CHANGE:   -1.00")
	assert.Contains(t, out, "HIGH:     $  102.00")
	assert.Contains(t, out, "TOTAL RETURN: +  1.00%")
	assert.Contains(t, out, "DATA POINTS:    3")
	assert.Contains(t, out, "BASE PEG: $100.00")
	assert.Contains(t, out, "CONCENTRATION:  25.0%")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.LessOrEqual(t, len(line), 84, "line too wide: %q", line)
	}
}

func TestWriteSummary_NoData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, nil, domain.MarketSnapshot{}))
	assert.Equal(t, "NO DATA AVAILABLE\n", buf.String())
}

func TestRenderChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	err := RenderChart(samples(100, 101, 99.5, 103, 104, 102, 98, 100.2), path, ChartOptions{Width: 320, Height: 160})
	require.NoError(t, err)

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())
}

func TestEncodeChart_NotEnoughData(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeChart(&buf, samples(100), ChartOptions{})
	assert.True(t, errors.Is(err, ErrNotEnoughData))
	assert.Zero(t, buf.Len())
}

func TestEncodeChart_FlatSeries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeChart(&buf, samples(100, 100, 100), ChartOptions{Width: 64, Height: 32}))

	img, err := imaging.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestWriteTrend(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 120, 120}
	st, err := trend.Scan(prices, 5, 10)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTrend(&buf, st, len(prices)))
	assert.Contains(t, buf.String(), "LAST: GOLDEN CROSS 1 SAMPLES AGO")

	buf.Reset()
	st, _ = trend.Scan(prices[:4], 5, 10)
	require.NoError(t, WriteTrend(&buf, st, 4))
	assert.Equal(t, "TREND: INSUFFICIENT DATA\n", buf.String())
}

func TestChartOptions_ClampsSize(t *testing.T) {
	o := ChartOptions{Width: 1 << 62, Height: MaxChartSide + 1}.withDefaults()
	assert.Equal(t, MaxChartSide, o.Width)
	assert.Equal(t, MaxChartSide, o.Height)

	o = ChartOptions{}.withDefaults()
	assert.Equal(t, 1200, o.Width)
	assert.Equal(t, 600, o.Height)
}
