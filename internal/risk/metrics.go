// Package risk computes the market risk signals that feed price formation.
// Every function here is pure; Assessor adds the fail-soft wrapper.
package risk

import (
	"sort"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// Params holds the tunables of every risk metric.
type Params struct {
	ReferenceSupply decimal.Decimal // Nominal total issuance used by velocity
	VelocityScale   float64
	VelocityCap     float64

	LargeTransferThreshold decimal.Decimal // Strictly greater counts as large
	LargeTransferWindow    int
	LargeTransferCap       float64

	MomentumWindow    int
	MomentumThreshold float64 // Share of declining steps that triggers the penalty
	MomentumPenalty   float64 // Signed, applied as price *= 1 + penalty
}

// DefaultParams returns the standard market tuning.
func DefaultParams() Params {
	return Params{
		ReferenceSupply:        decimal.NewFromInt(10_000_000),
		VelocityScale:          0.1,
		VelocityCap:            0.5,
		LargeTransferThreshold: decimal.NewFromInt(1000),
		LargeTransferWindow:    50,
		LargeTransferCap:       0.3,
		MomentumWindow:         5,
		MomentumThreshold:      0.6,
		MomentumPenalty:        -0.1,
	}
}

// Concentration returns the Gini coefficient of holder balances in [0, 1].
// Zero holders or a zero total yield 0.
func Concentration(balances []decimal.Decimal) float64 {
	n := len(balances)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	total := 0.0
	for i, b := range balances {
		f := b.InexactFloat64()
		if f < 0 {
			f = 0
		}
		sorted[i] = f
		total += f
	}
	if total <= 0 {
		return 0
	}
	sort.Float64s(sorted)

	// sum_{i,j} |b_i - b_j| == 2 * sum_i (2i - n + 1) * b_i over sorted input
	var weighted float64
	for i, b := range sorted {
		weighted += float64(2*i-n+1) * b
	}
	pairSum := 2 * weighted

	mean := total / float64(n)
	return clamp(pairSum/(2*float64(n)*float64(n)*mean), 0, 1)
}

// Velocity returns min(totalVolume / referenceSupply * scale, cap).
func Velocity(totalVolume decimal.Decimal, transactions int, p Params) float64 {
	if transactions == 0 || !p.ReferenceSupply.IsPositive() {
		return 0
	}
	v := totalVolume.Div(p.ReferenceSupply).InexactFloat64() * p.VelocityScale
	return clamp(v, 0, p.VelocityCap)
}

// LargeTransfer returns the share of oversized transfers among the most
// recent window, capped. Records must be ordered oldest first.
func LargeTransfer(records []domain.TransferRecord, p Params) float64 {
	if len(records) == 0 || p.LargeTransferWindow <= 0 {
		return 0
	}

	start := len(records) - p.LargeTransferWindow
	if start < 0 {
		start = 0
	}

	count := 0
	for _, r := range records[start:] {
		if r.Amount.GreaterThan(p.LargeTransferThreshold) {
			count++
		}
	}
	return clamp(float64(count)/float64(p.LargeTransferWindow), 0, p.LargeTransferCap)
}

// Momentum returns the penalty when enough consecutive steps in the recent
// price window are declines, and 0 otherwise. The share is declines over
// steps (len(window)-1), not over samples.
func Momentum(prices []float64, p Params) float64 {
	if len(prices) < 2 || p.MomentumWindow < 2 {
		return 0
	}

	start := len(prices) - p.MomentumWindow
	if start < 0 {
		start = 0
	}
	window := prices[start:]

	declines := 0
	for i := 1; i < len(window); i++ {
		if window[i] < window[i-1] {
			declines++
		}
	}

	steps := len(window) - 1
	if float64(declines)/float64(steps) >= p.MomentumThreshold {
		return p.MomentumPenalty
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
