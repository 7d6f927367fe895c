package trend_test

import (
	"testing"

	"phx_market/internal/trend"
)

// BenchmarkCrossover_Observe verifies the ring buffer keeps Observe allocation-free.
func BenchmarkCrossover_Observe(b *testing.B) {
	c, _ := trend.NewCrossover(5, 10)

	// Pre-fill buffer to reach steady state
	for i := 0; i < 10; i++ {
		c.Observe(100 + float64(i))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		c.Observe(95 + float64(i%10))
	}
}
