package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudai",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type.",
		},
		[]string{"type"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudai",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"type"},
	)

	recordsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraudai",
			Name:      "ledger_records",
			Help:      "Records currently retained in the ledger.",
		},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraudai",
			Name:      "ledger_evictions_total",
			Help:      "Records evicted to make room for newer ones.",
		},
	)
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, recordsGauge, evictionsTotal)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(opType string) func() {
	opsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		opDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
