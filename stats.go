package redis

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a connection pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
//   - Counter: AcquireWaitTimeNs (seconds spent waiting, divided by 1e9)
//
// See internal/promexporter for a ready-made collector.
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client operations.
type ClientStats struct {
	Gets      uint64 // Total Get operations
	GetHits   uint64 // Get operations that found the key
	Sets      uint64 // Total Set operations
	Pings     uint64 // Total Ping operations
	Publishes uint64 // Total Publish operations
	Errors    uint64 // Total errors across all operations
}

// poolStatsCollector is updated by the pool implementations.
type poolStatsCollector struct {
	acquireCount      atomic.Uint64
	acquireWaitCount  atomic.Uint64
	createdConns      atomic.Uint64
	destroyedConns    atomic.Uint64
	acquireErrors     atomic.Uint64
	acquireWaitTimeNs atomic.Uint64

	totalConns  atomic.Int32
	idleConns   atomic.Int32
	activeConns atomic.Int32
}

func (c *poolStatsCollector) recordAcquire() {
	c.acquireCount.Add(1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	c.acquireWaitCount.Add(1)
	c.acquireWaitTimeNs.Add(uint64(duration.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	c.createdConns.Add(1)
	c.totalConns.Add(1)
}

// recordDestroy is called for an active connection.
func (c *poolStatsCollector) recordDestroy() {
	c.destroyedConns.Add(1)
	c.totalConns.Add(-1)
	c.activeConns.Add(-1)
}

func (c *poolStatsCollector) recordAcquireError() {
	c.acquireErrors.Add(1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	c.idleConns.Add(-1)
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordActivate() {
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordRelease() {
	c.idleConns.Add(1)
	c.activeConns.Add(-1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		AcquireCount:      c.acquireCount.Load(),
		AcquireWaitCount:  c.acquireWaitCount.Load(),
		CreatedConns:      c.createdConns.Load(),
		DestroyedConns:    c.destroyedConns.Load(),
		AcquireErrors:     c.acquireErrors.Load(),
		AcquireWaitTimeNs: c.acquireWaitTimeNs.Load(),
		TotalConns:        c.totalConns.Load(),
		IdleConns:         c.idleConns.Load(),
		ActiveConns:       c.activeConns.Load(),
	}
}

// clientStatsCollector is updated by the Client.
type clientStatsCollector struct {
	gets      atomic.Uint64
	getHits   atomic.Uint64
	sets      atomic.Uint64
	pings     atomic.Uint64
	publishes atomic.Uint64
	errors    atomic.Uint64
}

// record counts one completed request by command name.
func (c *clientStatsCollector) record(req Request, found bool) {
	switch req.Name {
	case CmdGet:
		c.gets.Add(1)
		if found {
			c.getHits.Add(1)
		}
	case CmdSet:
		c.sets.Add(1)
	case CmdPing:
		c.pings.Add(1)
	case CmdPublish:
		c.publishes.Add(1)
	}
}

func (c *clientStatsCollector) recordError() {
	c.errors.Add(1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:      c.gets.Load(),
		GetHits:   c.getHits.Load(),
		Sets:      c.sets.Load(),
		Pings:     c.pings.Load(),
		Publishes: c.publishes.Load(),
		Errors:    c.errors.Load(),
	}
}
