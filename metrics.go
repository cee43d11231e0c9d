package slicecache

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector exposes a Cache's stats snapshot as Prometheus
// metrics. It reads the snapshot at scrape time, so registering it adds
// no overhead to cache operations.
type metricsCollector struct {
	c *Cache

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	sizeBytes *prometheus.Desc
	entries   *prometheus.Desc
	hitRate   *prometheus.Desc
}

// NewMetricsCollector creates a prometheus.Collector over c, labelled
// with the cache's store name:
//
//	prometheus.MustRegister(slicecache.NewMetricsCollector(c))
func NewMetricsCollector(c *Cache) prometheus.Collector {
	labels := prometheus.Labels{"store": c.cfg.StoreName}
	return &metricsCollector{
		c: c,
		hits: prometheus.NewDesc("slicecache_hits_total",
			"Number of cache hits.", nil, labels),
		misses: prometheus.NewDesc("slicecache_misses_total",
			"Number of cache misses.", nil, labels),
		evictions: prometheus.NewDesc("slicecache_evictions_total",
			"Number of entries evicted to satisfy the byte budget.", nil, labels),
		sizeBytes: prometheus.NewDesc("slicecache_size_bytes",
			"Bytes of payload currently cached.", nil, labels),
		entries: prometheus.NewDesc("slicecache_entries",
			"Number of live cache entries.", nil, labels),
		hitRate: prometheus.NewDesc("slicecache_hit_rate",
			"Hits / (hits + misses) since open or the last clear.", nil, labels),
	}
}

func (m *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.hits
	ch <- m.misses
	ch <- m.evictions
	ch <- m.sizeBytes
	ch <- m.entries
	ch <- m.hitRate
}

func (m *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := m.c.Stats()
	ch <- prometheus.MustNewConstMetric(m.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(m.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(m.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(m.sizeBytes, prometheus.GaugeValue, float64(s.CurrentSizeBytes))
	ch <- prometheus.MustNewConstMetric(m.entries, prometheus.GaugeValue, float64(s.EntryCount))
	ch <- prometheus.MustNewConstMetric(m.hitRate, prometheus.GaugeValue, s.HitRate)
}
