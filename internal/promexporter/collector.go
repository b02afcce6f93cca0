// Package promexporter exposes client and pool statistics as Prometheus metrics.
package promexporter

import (
	"github.com/pior/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Source is implemented by *redis.Client.
type Source interface {
	Stats() redis.ClientStats
	AllPoolStats() []redis.ServerPoolStats
}

// Collector reads a Source snapshot on every scrape.
type Collector struct {
	source Source

	operations      *prometheus.Desc
	getHits         *prometheus.Desc
	errors          *prometheus.Desc
	poolConnections *prometheus.Desc
	poolCreated     *prometheus.Desc
	poolDestroyed   *prometheus.Desc
	poolAcquires    *prometheus.Desc
	poolWaits       *prometheus.Desc
	poolWaitSeconds *prometheus.Desc
	poolErrors      *prometheus.Desc
	circuitState    *prometheus.Desc
	circuitFailures *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for source.
func NewCollector(source Source) *Collector {
	server := []string{"server"}

	return &Collector{
		source: source,

		operations: prometheus.NewDesc("redis_client_operations_total",
			"Total number of operations by command", []string{"command"}, nil),
		getHits: prometheus.NewDesc("redis_client_get_hits_total",
			"GET operations that found the key", nil, nil),
		errors: prometheus.NewDesc("redis_client_errors_total",
			"Total errors across all operations", nil, nil),

		poolConnections: prometheus.NewDesc("redis_pool_connections",
			"Connection pool statistics", []string{"server", "state"}, nil),
		poolCreated: prometheus.NewDesc("redis_pool_connections_created_total",
			"Total connections created", server, nil),
		poolDestroyed: prometheus.NewDesc("redis_pool_connections_destroyed_total",
			"Total connections destroyed", server, nil),
		poolAcquires: prometheus.NewDesc("redis_pool_acquires_total",
			"Total connection acquire attempts", server, nil),
		poolWaits: prometheus.NewDesc("redis_pool_acquire_waits_total",
			"Acquires that waited for a connection to be released", server, nil),
		poolWaitSeconds: prometheus.NewDesc("redis_pool_acquire_wait_seconds_total",
			"Total time spent waiting for a connection", server, nil),
		poolErrors: prometheus.NewDesc("redis_pool_acquire_errors_total",
			"Total connection acquire errors", server, nil),

		circuitState: prometheus.NewDesc("redis_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)", server, nil),
		circuitFailures: prometheus.NewDesc("redis_circuit_breaker_failures",
			"Circuit breaker failure counts in the current interval", []string{"server", "type"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operations
	ch <- c.getHits
	ch <- c.errors
	ch <- c.poolConnections
	ch <- c.poolCreated
	ch <- c.poolDestroyed
	ch <- c.poolAcquires
	ch <- c.poolWaits
	ch <- c.poolWaitSeconds
	ch <- c.poolErrors
	ch <- c.circuitState
	ch <- c.circuitFailures
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	counter(c.operations, stats.Gets, redis.CmdGet)
	counter(c.operations, stats.Sets, redis.CmdSet)
	counter(c.operations, stats.Pings, redis.CmdPing)
	counter(c.operations, stats.Publishes, redis.CmdPublish)
	counter(c.getHits, stats.GetHits)
	counter(c.errors, stats.Errors)

	for _, sp := range c.source.AllPoolStats() {
		ps := sp.PoolStats

		gauge(c.poolConnections, float64(ps.TotalConns), sp.Addr, "total")
		gauge(c.poolConnections, float64(ps.ActiveConns), sp.Addr, "active")
		gauge(c.poolConnections, float64(ps.IdleConns), sp.Addr, "idle")
		counter(c.poolCreated, ps.CreatedConns, sp.Addr)
		counter(c.poolDestroyed, ps.DestroyedConns, sp.Addr)
		counter(c.poolAcquires, ps.AcquireCount, sp.Addr)
		counter(c.poolWaits, ps.AcquireWaitCount, sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolWaitSeconds, prometheus.CounterValue,
			float64(ps.AcquireWaitTimeNs)/1e9, sp.Addr)
		counter(c.poolErrors, ps.AcquireErrors, sp.Addr)

		gauge(c.circuitState, circuitStateValue(sp.CircuitBreakerState), sp.Addr)
		gauge(c.circuitFailures, float64(sp.CircuitBreakerCounts.TotalFailures), sp.Addr, "total")
		gauge(c.circuitFailures, float64(sp.CircuitBreakerCounts.ConsecutiveFailures), sp.Addr, "consecutive")
	}
}

func circuitStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
