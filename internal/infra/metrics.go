package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides lightweight engine observability.
// Uses atomic operations for thread-safety; Collector exports it to Prometheus.
type Metrics struct {
	// Counters
	operationsCommitted atomic.Uint64
	operationsRejected  atomic.Uint64
	rollbacks           atomic.Uint64
	liquidations        atomic.Uint64
	priceUpdates        atomic.Uint64
	errorsTotal         atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	halted            atomic.Int32 // 1 = halted, 0 = running
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOperation records a committed operation with latency.
func (m *Metrics) RecordOperation(latencyNs int64) {
	m.operationsCommitted.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejection records an operation that was rejected with no effect.
func (m *Metrics) RecordRejection() {
	m.operationsRejected.Add(1)
}

// RecordRollback records an operation whose token calls were compensated.
func (m *Metrics) RecordRollback() {
	m.rollbacks.Add(1)
}

// RecordLiquidation records a completed liquidation.
func (m *Metrics) RecordLiquidation() {
	m.liquidations.Add(1)
}

// RecordPriceUpdate records an applied price update.
func (m *Metrics) RecordPriceUpdate() {
	m.priceUpdates.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active feed connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active feed connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetHalted sets the engine halt state.
func (m *Metrics) SetHalted(halted bool) {
	if halted {
		m.halted.Store(1)
	} else {
		m.halted.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OperationsCommitted uint64    `json:"operations_committed"`
	OperationsRejected  uint64    `json:"operations_rejected"`
	Rollbacks           uint64    `json:"rollbacks"`
	Liquidations        uint64    `json:"liquidations"`
	PriceUpdates        uint64    `json:"price_updates"`
	ErrorsTotal         uint64    `json:"errors_total"`
	AvgLatencyNs        int64     `json:"avg_latency_ns"`
	ActiveConnections   int32     `json:"active_connections"`
	Halted              bool      `json:"halted"`
	Timestamp           time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		OperationsCommitted: m.operationsCommitted.Load(),
		OperationsRejected:  m.operationsRejected.Load(),
		Rollbacks:           m.rollbacks.Load(),
		Liquidations:        m.liquidations.Load(),
		PriceUpdates:        m.priceUpdates.Load(),
		ErrorsTotal:         m.errorsTotal.Load(),
		AvgLatencyNs:        avgLatency,
		ActiveConnections:   m.activeConnections.Load(),
		Halted:              m.halted.Load() == 1,
		Timestamp:           time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.operationsCommitted.Store(0)
	m.operationsRejected.Store(0)
	m.rollbacks.Store(0)
	m.liquidations.Store(0)
	m.priceUpdates.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.halted.Store(0)
}

const namespace = "dsc_engine"

// Collector exports a Metrics instance as Prometheus metrics.
type Collector struct {
	m *Metrics

	committed    *prometheus.Desc
	rejected     *prometheus.Desc
	rollbacks    *prometheus.Desc
	liquidations *prometheus.Desc
	prices       *prometheus.Desc
	errors       *prometheus.Desc
	latency      *prometheus.Desc
	connections  *prometheus.Desc
	halted       *prometheus.Desc
}

// NewCollector wraps m for registration with a prometheus.Registerer.
func NewCollector(m *Metrics) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		m:            m,
		committed:    desc("operations_committed_total", "Mutating operations committed."),
		rejected:     desc("operations_rejected_total", "Mutating operations rejected with no effect."),
		rollbacks:    desc("rollbacks_total", "Operations whose token calls were compensated."),
		liquidations: desc("liquidations_total", "Completed liquidations."),
		prices:       desc("price_updates_total", "Price updates applied."),
		errors:       desc("errors_total", "Internal errors."),
		latency:      desc("operation_latency_avg_seconds", "Average committed operation latency."),
		connections:  desc("feed_connections", "Active price feed connections."),
		halted:       desc("halted", "1 if the engine stopped after a persistence failure."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.committed
	ch <- c.rejected
	ch <- c.rollbacks
	ch <- c.liquidations
	ch <- c.prices
	ch <- c.errors
	ch <- c.latency
	ch <- c.connections
	ch <- c.halted
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	halted := 0.0
	if s.Halted {
		halted = 1
	}
	ch <- prometheus.MustNewConstMetric(c.committed, prometheus.CounterValue, float64(s.OperationsCommitted))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.OperationsRejected))
	ch <- prometheus.MustNewConstMetric(c.rollbacks, prometheus.CounterValue, float64(s.Rollbacks))
	ch <- prometheus.MustNewConstMetric(c.liquidations, prometheus.CounterValue, float64(s.Liquidations))
	ch <- prometheus.MustNewConstMetric(c.prices, prometheus.CounterValue, float64(s.PriceUpdates))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorsTotal))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, time.Duration(s.AvgLatencyNs).Seconds())
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.halted, prometheus.GaugeValue, halted)
}
