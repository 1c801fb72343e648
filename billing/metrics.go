package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sistemacm/ledger-engine/contract"
)

var (
	// OpsTotal counts engine operations by operation and outcome kind.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sistemacm",
			Name:      "billing_operations_total",
			Help:      "Total billing operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// OpDuration observes operation latency by operation.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sistemacm",
			Name:      "billing_operation_duration_seconds",
			Help:      "Billing operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// PostingsTotal counts ledger postings booked, by category.
	PostingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sistemacm",
			Name:      "ledger_postings_total",
			Help:      "Ledger postings committed, by category.",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal, OpDuration, PostingsTotal)
}

// observeOp returns a function that records the outcome and duration of op.
func observeOp(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(contract.KindOf(err))
		}
		OpsTotal.WithLabelValues(op, outcome).Inc()
		OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func countPostings(postings []contract.Posting) {
	for _, p := range postings {
		PostingsTotal.WithLabelValues(p.Category).Inc()
	}
}
