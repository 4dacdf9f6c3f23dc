package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s1_journal_retention_runs_total",
			Help: "Total number of select journal retention runs by status.",
		},
		[]string{"status"},
	)
	entriesPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s1_journal_entries_pruned_total",
			Help: "Total number of select journal entries deleted by retention runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(retentionRunsTotal, entriesPrunedTotal)
}
