package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	selectRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s1_select_requests_total",
			Help: "Total number of select requests by outcome.",
		},
		[]string{"outcome"},
	)
	selectLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s1_select_latency_ms",
			Help:    "Select latency in milliseconds, from request to encoded payload.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)
	selectRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s1_select_rows_total",
			Help: "Total number of rows returned by select requests.",
		},
	)
	selectScannedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s1_select_scanned_bytes_total",
			Help: "Total number of object bytes decoded by select requests.",
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s1_cache_lookups_total",
			Help: "Object cache lookups by result.",
		},
		[]string{"result"},
	)
	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s1_cache_evictions_total",
			Help: "Total number of objects evicted from the cache.",
		},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s1_cache_entries",
			Help: "Current number of cached objects.",
		},
	)
	journalWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s1_journal_write_failures_total",
			Help: "Total number of select journal entries that could not be written.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		selectRequestsTotal,
		selectLatencyMs,
		selectRowsTotal,
		selectScannedBytesTotal,
		cacheLookupsTotal,
		cacheEvictionsTotal,
		cacheEntries,
		journalWriteFailuresTotal,
	)
}

// ObserveSelect records one finished select request. outcome is "ok" or the
// error code returned to the client.
func ObserveSelect(outcome string, rows int, scannedBytes int64, elapsed time.Duration) {
	selectRequestsTotal.WithLabelValues(outcome).Inc()
	selectLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if rows > 0 {
		selectRowsTotal.Add(float64(rows))
	}
	if scannedBytes > 0 {
		selectScannedBytesTotal.Add(float64(scannedBytes))
	}
}

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

func ObserveCacheEviction() {
	cacheEvictionsTotal.Inc()
}

func SetCacheEntries(n int) {
	if n < 0 {
		n = 0
	}
	cacheEntries.Set(float64(n))
}

func IncrementJournalWriteFailure() {
	journalWriteFailuresTotal.Inc()
}
