package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector of the market oracle.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal     *prometheus.CounterVec // status = ok | error | panic
	TickDuration   prometheus.Histogram
	SkippedBlocks  prometheus.Counter
	LedgerErrors   *prometheus.CounterVec
	PersistErrors  *prometheus.CounterVec
	MetricFailures *prometheus.CounterVec
	ArchiveErrors  prometheus.Counter
	Transfers      *prometheus.CounterVec
	TrendSignals   *prometheus.CounterVec // direction = GOLDEN_CROSS | DEAD_CROSS

	LastPrice        prometheus.Gauge
	CrashProbability prometheus.Gauge
	LastBlock        prometheus.Gauge
	WatcherConnected prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "phx_market"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "ticks_total",
			Help:      "Price computations by outcome",
		}, []string{"status"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one reload-compute-persist cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		SkippedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "skipped_blocks_total",
			Help:      "Stale or duplicate block notifications ignored",
		}),
		LedgerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Failed ledger calls by operation",
		}, []string{"op"}),
		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "persist_errors_total",
			Help:      "Shared state read/write failures",
		}, []string{"op"}),
		MetricFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "metric_failures_total",
			Help:      "Risk metrics that fell back to their neutral value",
		}, []string{"metric"}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Failed archive writes",
		}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "transfers_total",
			Help:      "Wallet transfers by outcome",
		}, []string{"status"}),

		LastPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "price",
			Help:      "Most recently computed price",
		}),
		CrashProbability: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "crash_probability_percent",
			Help:      "Crash probability of the latest snapshot",
		}),
		TrendSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "trend_signals_total",
			Help:      "Moving-average crosses observed on published prices",
		}, []string{"direction"}),
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_block",
			Help:      "Highest block number seen by the tick loop",
		}),
		WatcherConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "head_watcher_connected",
			Help:      "1 while the newHeads subscription is live",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTick records a completed (or failed) price computation.
func (m *Metrics) RecordTick(status string, elapsed time.Duration) {
	m.TicksTotal.WithLabelValues(status).Inc()
	m.TickDuration.Observe(elapsed.Seconds())
}

// RecordSnapshot updates the market gauges.
func (m *Metrics) RecordSnapshot(price, crashProbability float64) {
	m.LastPrice.Set(price)
	m.CrashProbability.Set(crashProbability)
}

// RecordSkippedBlock counts an ignored block notification.
func (m *Metrics) RecordSkippedBlock() {
	m.SkippedBlocks.Inc()
}

// SetLastBlock records the newest block the tick loop processed.
func (m *Metrics) SetLastBlock(n uint64) {
	m.LastBlock.Set(float64(n))
}

// LedgerFailed counts a failed ledger call.
func (m *Metrics) LedgerFailed(op string) {
	m.LedgerErrors.WithLabelValues(op).Inc()
}

// PersistFailed counts a shared state read or write failure.
func (m *Metrics) PersistFailed(op string) {
	m.PersistErrors.WithLabelValues(op).Inc()
}

// MetricFailed counts a risk metric that fell back to neutral.
func (m *Metrics) MetricFailed(metric string) {
	m.MetricFailures.WithLabelValues(metric).Inc()
}

// ArchiveFailed counts a failed archive write.
func (m *Metrics) ArchiveFailed() {
	m.ArchiveErrors.Inc()
}

// RecordTransfer counts a wallet transfer outcome.
func (m *Metrics) RecordTransfer(status string) {
	m.Transfers.WithLabelValues(status).Inc()
}

// RecordTrendSignal counts a moving-average cross.
func (m *Metrics) RecordTrendSignal(direction string) {
	m.TrendSignals.WithLabelValues(direction).Inc()
}

// SetWatcherConnected sets the head watcher connection state.
func (m *Metrics) SetWatcherConnected(connected bool) {
	if connected {
		m.WatcherConnected.Set(1)
	} else {
		m.WatcherConnected.Set(0)
	}
}
