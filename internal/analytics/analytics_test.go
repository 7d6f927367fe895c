package analytics

import (
	"errors"
	"math"
	"testing"

	"phx_market/internal/domain"

	"github.com/shopspring/decimal"
)

func samples(prices ...float64) []domain.PriceSample {
	out := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceSample{Price: decimal.NewFromFloat(p)}
	}
	return out
}

func TestComputePerformance(t *testing.T) {
	perf, err := ComputePerformance(samples(100, 110, 90, 99))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !perf.StartPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected start 100 (oldest sample), got %s", perf.StartPrice)
	}
	if !perf.CurrentPrice.Equal(decimal.NewFromInt(99)) {
		t.Errorf("Expected current 99, got %s", perf.CurrentPrice)
	}
	if !perf.HighestPrice.Equal(decimal.NewFromInt(110)) || !perf.LowestPrice.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected high 110 / low 90, got %s / %s", perf.HighestPrice, perf.LowestPrice)
	}
	if !perf.TotalChangePercent.Equal(decimal.NewFromInt(-1)) {
		t.Errorf("Expected total change -1, got %s", perf.TotalChangePercent)
	}
	if !perf.FromPeakPercent.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("Expected from peak -10, got %s", perf.FromPeakPercent)
	}
	if !perf.VolatilityPercent.IsPositive() {
		t.Errorf("Expected positive volatility, got %s", perf.VolatilityPercent)
	}
}

func TestComputePerformance_Unavailable(t *testing.T) {
	for _, in := range [][]domain.PriceSample{nil, samples(100)} {
		if _, err := ComputePerformance(in); !errors.Is(err, domain.ErrPerformanceUnavailable) {
			t.Errorf("Expected ErrPerformanceUnavailable for %d samples, got %v", len(in), err)
		}
	}
}

func TestVolatility(t *testing.T) {
	if v := Volatility(samples(100)); v != 0 {
		t.Errorf("Expected 0 for single sample, got %f", v)
	}
	if v := Volatility(samples(100, 100, 100)); v != 0 {
		t.Errorf("Expected 0 for flat series, got %f", v)
	}

	// Returns: +10%, -10% -> mean 0, population std 10%
	v := Volatility(samples(100, 110, 99))
	if math.Abs(v-10) > 1e-9 {
		t.Errorf("Expected 10, got %f", v)
	}
}

func TestComputeStatistics(t *testing.T) {
	st, err := ComputeStatistics(samples(100, 102, 98, 104))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Points != 4 || st.Open != 100 || st.Current != 104 {
		t.Errorf("unexpected points/open/current: %+v", st)
	}
	if st.High != 104 || st.Low != 98 {
		t.Errorf("unexpected high/low: %+v", st)
	}
	if st.Mean != 101 {
		t.Errorf("Expected mean 101, got %f", st.Mean)
	}
	// Deviations 1,1,9,9 -> variance 5
	if math.Abs(st.Variance-5) > 1e-9 || math.Abs(st.StdDev-math.Sqrt(5)) > 1e-9 {
		t.Errorf("Expected variance 5, got %f", st.Variance)
	}
	if st.Change != 6 {
		t.Errorf("Expected change 6, got %f", st.Change)
	}
	if math.Abs(st.ChangePercent-6.0/98*100) > 1e-9 {
		t.Errorf("unexpected change percent %f", st.ChangePercent)
	}
	if math.Abs(st.TotalReturn-4) > 1e-9 {
		t.Errorf("Expected total return 4, got %f", st.TotalReturn)
	}

	if _, err := ComputeStatistics(nil); !errors.Is(err, domain.ErrPerformanceUnavailable) {
		t.Errorf("Expected ErrPerformanceUnavailable, got %v", err)
	}

	single, _ := ComputeStatistics(samples(100))
	if single.Volatility != 0 || single.Change != 0 || single.TotalReturn != 0 {
		t.Errorf("Expected zero dynamics for a single point, got %+v", single)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5, 6}, 3)
	want := []float64{1, 1.5, 2, 3, 4, 5}

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}

	if len(MovingAverage(nil, 5)) != 0 {
		t.Error("Expected empty result for empty input")
	}
}
