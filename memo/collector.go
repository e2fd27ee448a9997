package memo

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports memo cache statistics as prometheus gauges.
type Collector struct {
	provider StatsProvider
	entries  *prometheus.Desc
	bytes    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from provider.
func NewCollector(provider StatsProvider) *Collector {
	return &Collector{
		provider: provider,
		entries: prometheus.NewDesc(
			"memo_cache_entries",
			"Number of memoized values held in memory.",
			[]string{"category", "cache_name"}, nil,
		),
		bytes: prometheus.NewDesc(
			"memo_cache_bytes",
			"Serialized size of memoized values held in memory.",
			[]string{"category", "cache_name"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.bytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	type totals struct {
		entries int
		bytes   int
	}

	byCache := make(map[[2]string]*totals)
	for _, stat := range c.provider.GetStats() {
		id := [2]string{stat.CategoryName, stat.CacheName}
		t, ok := byCache[id]
		if !ok {
			t = &totals{}
			byCache[id] = t
		}
		t.entries++
		t.bytes += stat.ByteLength
	}

	for id, t := range byCache {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(t.entries), id[0], id[1])
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(t.bytes), id[0], id[1])
	}
}
