package engine

import "github.com/prometheus/client_golang/prometheus"

// Collector reports engine state that lives outside the counters updated on
// each operation.
type Collector struct {
	e *Engine

	indexEntries *prometheus.Desc
	cacheEntries *prometheus.Desc
}

func NewCollector(e *Engine) *Collector {
	return &Collector{
		e: e,
		indexEntries: prometheus.NewDesc(
			"termstore_engine_index_terms",
			"Distinct composite keys held by an index",
			[]string{"collection", "index"}, nil,
		),
		cacheEntries: prometheus.NewDesc(
			"termstore_engine_cache_entries",
			"Documents held in a collection's read cache",
			[]string{"collection"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.indexEntries
	ch <- c.cacheEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.e.names {
		for _, ix := range c.e.indexes[name] {
			ch <- prometheus.MustNewConstMetric(c.indexEntries, prometheus.GaugeValue,
				float64(ix.KeyCount()), name, ix.Name())
		}
		if cached, ok := c.e.caches[name]; ok {
			ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue,
				float64(cached.Len()), name)
		}
	}
}
