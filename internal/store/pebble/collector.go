package pebble

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports LSM health for the backing database.
type Collector struct {
	s *Store

	compactions   *prometheus.Desc
	compactDebt   *prometheus.Desc
	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc
	walSize       *prometheus.Desc
	walBytesIn    *prometheus.Desc
}

// Collector returns a prometheus.Collector over s. It reports nothing
// once s is closed.
func (s *Store) Collector() *Collector {
	return &Collector{
		s: s,
		compactions: prometheus.NewDesc(
			"recall_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactDebt: prometheus.NewDesc(
			"recall_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"recall_pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"recall_pebble_memtable_count",
			"Current count of memtables",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"recall_pebble_wal_size_bytes",
			"Size of the live WAL data in bytes",
			nil, nil,
		),
		walBytesIn: prometheus.NewDesc(
			"recall_pebble_wal_bytes_in_total",
			"Logical bytes written to the WAL",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.compactDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walSize
	ch <- c.walBytesIn
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	if c.s.closed {
		return
	}
	m := c.s.db.Metrics()

	ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
}
