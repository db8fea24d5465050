package index

import "github.com/prometheus/client_golang/prometheus"

var reindexTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "termstore",
	Subsystem: "index",
	Name:      "reindex_total",
	Help:      "Full index rebuilds by result.",
}, []string{"index", "result"})

var reindexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "termstore",
	Subsystem: "index",
	Name:      "reindex_duration_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
}, []string{"index"})

var matchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "termstore",
	Subsystem: "index",
	Name:      "matches_total",
}, []string{"index"})

var entries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "termstore",
	Subsystem: "index",
	Name:      "entries",
	Help:      "Document ids currently indexed.",
}, []string{"index"})

// Collectors returns the metrics this package records, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{reindexTotal, reindexDuration, matchesTotal, entries}
}
