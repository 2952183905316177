package risk

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "verdicts_total",
		Help:      "Risk verdicts by status and producing scorer (oracle or fallback).",
	}, []string{"status", "source"})

	oracleRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "oracle_requests_total",
		Help:      "Oracle enrichment attempts by result (accepted, unavailable, invalid).",
	}, []string{"result"})

	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "analysis_duration_seconds",
		Help:      "Wall-clock time of a full Analyze call, oracle included.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	fraudPatternsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "fraud_patterns",
		Help:      "Number of distinct fraud patterns in the cache.",
	})

	userProfilesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "user_profiles",
		Help:      "Number of user risk profiles held in memory.",
	})

	auditErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudai",
		Subsystem: "risk",
		Name:      "audit_errors_total",
		Help:      "Failed deliveries to the audit sink.",
	})
)

func init() {
	prometheus.MustRegister(
		verdictsTotal,
		oracleRequestsTotal,
		analysisDuration,
		fraudPatternsGauge,
		userProfilesGauge,
		auditErrorsTotal,
	)
}
