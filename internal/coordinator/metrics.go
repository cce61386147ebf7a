package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/scribe/internal/pending"
)

var (
	jobsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_jobs_resolved_total",
			Help: "Total number of recognition jobs that left the pending table, by outcome.",
		},
		[]string{"outcome"},
	)

	jobsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scribe_jobs_pending",
			Help: "Number of recognition jobs waiting for a final result.",
		},
	)

	quotaUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_quota_updates_total",
			Help: "Total number of external quota updates, by result.",
		},
		[]string{"result"},
	)

	quotaCorruptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_quota_corrupt_total",
			Help: "Total number of persisted quota states that failed to decode.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsResolvedTotal)
	prometheus.MustRegister(jobsPending)
	prometheus.MustRegister(quotaUpdatesTotal)
	prometheus.MustRegister(quotaCorruptTotal)
}

func observeOutcome(o pending.Outcome) {
	jobsResolvedTotal.WithLabelValues(o.String()).Inc()
	jobsPending.Dec()
}
