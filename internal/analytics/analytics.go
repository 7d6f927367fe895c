// Package analytics derives performance and descriptive statistics from a price history.
package analytics

import (
	"math"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

// Performance summarises the price history from its oldest sample to now.
type Performance struct {
	StartPrice         decimal.Decimal `json:"start_price"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	HighestPrice       decimal.Decimal `json:"highest_price"`
	LowestPrice        decimal.Decimal `json:"lowest_price"`
	TotalChangePercent decimal.Decimal `json:"total_change_percent"`
	FromPeakPercent    decimal.Decimal `json:"from_peak_percent"`
	VolatilityPercent  decimal.Decimal `json:"volatility_percent"`
}

// ComputePerformance returns ErrPerformanceUnavailable for fewer than 2 samples.
func ComputePerformance(samples []domain.PriceSample) (*Performance, error) {
	if len(samples) < 2 {
		return nil, domain.ErrPerformanceUnavailable
	}

	start := samples[0].Price
	current := samples[len(samples)-1].Price
	high, low := start, start
	for _, s := range samples[1:] {
		if s.Price.GreaterThan(high) {
			high = s.Price
		}
		if s.Price.LessThan(low) {
			low = s.Price
		}
	}

	return &Performance{
		StartPrice:         start,
		CurrentPrice:       current,
		HighestPrice:       high,
		LowestPrice:        low,
		TotalChangePercent: percentChange(start, current),
		FromPeakPercent:    percentChange(high, current),
		VolatilityPercent:  decimal.NewFromFloat(Volatility(samples)).Round(2),
	}, nil
}

func percentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(2)
}

// Volatility is the population standard deviation of step returns, in percent.
func Volatility(samples []domain.PriceSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	return stddev(returns(pricesOf(samples))) * 100
}

// Statistics mirrors the figures of the terminal market summary.
type Statistics struct {
	Current       float64 `json:"current_price"`
	Open          float64 `json:"open_price"`
	High          float64 `json:"high_price"`
	Low           float64 `json:"low_price"`
	Mean          float64 `json:"average_price"`
	StdDev        float64 `json:"std_dev"`
	Variance      float64 `json:"variance"`
	Volatility    float64 `json:"volatility"` // Percent
	TotalReturn   float64 `json:"total_return"`
	Change        float64 `json:"day_change"`
	ChangePercent float64 `json:"day_change_pct"`
	Points        int     `json:"total_points"`
}

// ComputeStatistics returns ErrPerformanceUnavailable when there are no samples.
func ComputeStatistics(samples []domain.PriceSample) (*Statistics, error) {
	prices := pricesOf(samples)
	n := len(prices)
	if n == 0 {
		return nil, domain.ErrPerformanceUnavailable
	}

	st := &Statistics{
		Current: prices[n-1],
		Open:    prices[0],
		High:    prices[0],
		Low:     prices[0],
		Points:  n,
	}
	for _, p := range prices {
		st.High = math.Max(st.High, p)
		st.Low = math.Min(st.Low, p)
	}
	st.Mean = mean(prices)
	st.Variance = variance(prices)
	st.StdDev = math.Sqrt(st.Variance)

	if n > 1 {
		st.Volatility = stddev(returns(prices)) * 100
		st.Change = prices[n-1] - prices[n-2]
		if prices[n-2] != 0 {
			st.ChangePercent = st.Change / prices[n-2] * 100
		}
		if prices[0] != 0 {
			st.TotalReturn = (prices[n-1] - prices[0]) / prices[0] * 100
		}
	}
	return st, nil
}

// MovingAverage returns the trailing simple moving average. The first
// window-1 points average over what is available so far.
func MovingAverage(prices []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(prices))
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= window {
			sum -= prices[i-window]
		}
		count := i + 1
		if count > window {
			count = window
		}
		out[i] = sum / float64(count)
	}
	return out
}

func pricesOf(samples []domain.PriceSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price.InexactFloat64()
	}
	return out
}

func returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the population variance.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	return math.Sqrt(variance(values))
}
