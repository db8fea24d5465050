package collection

import "github.com/prometheus/client_golang/prometheus"

var operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "termstore",
	Subsystem: "collection",
	Name:      "operations_total",
	Help:      "Collection operations by result.",
}, []string{"collection", "op", "result"})

var operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "termstore",
	Subsystem: "collection",
	Name:      "operation_duration_seconds",
	Help:      "Latency of collection operations, including subscriber work.",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
}, []string{"collection", "op"})

// Collectors returns the metrics this package records, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{operationsTotal, operationDuration}
}
