// internal/ingestion/metrics.go
package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics – счетчики оркестратора
type Metrics struct {
	blocks       *prometheus.CounterVec
	transactions prometheus.Counter
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	running      prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg. nil означает отдельный реестр, удобно в тестах.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "block_indexer_blocks_total",
			Help: "Blocks handled by ingestion runs, by outcome",
		}, []string{"status"}),
		transactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "block_indexer_transactions_total",
			Help: "Transactions persisted by ingestion runs",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "block_indexer_runs_total",
			Help: "Ingestion runs, by final status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "block_indexer_run_duration_seconds",
			Help:    "Duration of ingestion runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "block_indexer_running",
			Help: "1 while an ingestion run is in progress",
		}),
	}
}
