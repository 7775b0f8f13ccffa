package session

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes store counters as prometheus metrics. Register it on
// the application registry alongside the HTTP metrics.
type Collector struct {
	store *Store

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	issued      *prometheus.Desc
	invalidated *prometheus.Desc
	active      *prometheus.Desc
}

// NewCollector builds a Collector for store.
func NewCollector(store *Store) *Collector {
	return &Collector{
		store:       store,
		hits:        prometheus.NewDesc("gatewise_sessions_hits_total", "Session lookups that resolved a live session.", nil, nil),
		misses:      prometheus.NewDesc("gatewise_sessions_misses_total", "Session lookups that found nothing or an expired entry.", nil, nil),
		evictions:   prometheus.NewDesc("gatewise_sessions_evictions_total", "Sessions evicted after exceeding the inactivity window.", nil, nil),
		issued:      prometheus.NewDesc("gatewise_sessions_issued_total", "Sessions issued.", nil, nil),
		invalidated: prometheus.NewDesc("gatewise_sessions_invalidated_total", "Sessions removed by explicit invalidation.", nil, nil),
		active:      prometheus.NewDesc("gatewise_sessions_active", "Sessions currently stored.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.issued
	ch <- c.invalidated
	ch <- c.active
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(c.issued, prometheus.CounterValue, float64(stats.Issued))
	ch <- prometheus.MustNewConstMetric(c.invalidated, prometheus.CounterValue, float64(stats.Invalidated))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.Active))
}
