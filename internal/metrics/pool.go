package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Stater is satisfied by *pgxpool.Pool.
type Stater interface {
	Stat() *pgxpool.Stat
}

type poolMetric struct {
	desc  *prometheus.Desc
	value func(*pgxpool.Stat) float64
}

// PoolCollector implements prometheus.Collector for pgxpool statistics.
// Stats are read during each scrape; there is no polling goroutine.
type PoolCollector struct {
	pools   map[string]Stater
	metrics []poolMetric
}

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("sheetviz_pgxpool_"+name, help, []string{"pool"}, nil)
}

// NewPoolCollector creates a collector that exports stats per named pool.
func NewPoolCollector(pools map[string]Stater) *PoolCollector {
	return &PoolCollector{
		pools: pools,
		metrics: []poolMetric{
			{poolDesc("acquire_count", "Cumulative count of successful connection acquires."),
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{poolDesc("acquire_duration_seconds", "Cumulative time spent acquiring connections."),
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{poolDesc("acquired_conns", "Number of currently acquired connections."),
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{poolDesc("canceled_acquire_count", "Cumulative count of acquires canceled by context."),
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
			{poolDesc("constructing_conns", "Number of connections currently being constructed."),
				func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }},
			{poolDesc("empty_acquire_count", "Cumulative count of acquires from an empty pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{poolDesc("idle_conns", "Number of idle connections in the pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{poolDesc("max_conns", "Maximum number of connections allowed."),
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{poolDesc("max_idle_destroy_count", "Cumulative count of connections destroyed due to idle timeout."),
				func(s *pgxpool.Stat) float64 { return float64(s.MaxIdleDestroyCount()) }},
			{poolDesc("max_lifetime_destroy_count", "Cumulative count of connections destroyed due to max lifetime."),
				func(s *pgxpool.Stat) float64 { return float64(s.MaxLifetimeDestroyCount()) }},
			{poolDesc("new_conns_count", "Cumulative count of new connections created."),
				func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }},
			{poolDesc("total_conns", "Total number of connections in the pool."),
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for name, pool := range c.pools {
		stat := pool.Stat()
		for _, m := range c.metrics {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, m.value(stat), name)
		}
	}
}
