package redis

import (
	"context"
	"errors"
	"time"
)

// ErrPoolClosed is returned by Acquire after the pool was closed.
var ErrPoolClosed = errors.New("redis: pool closed")

// Pool hands out Connections to one goroutine at a time.
//
// Two implementations are provided: NewChannelPool (default) and NewPuddlePool.
type Pool interface {
	// Acquire returns an idle Connection, or creates one when the pool is not full,
	// or waits for a Release. It fails when ctx is done first.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle takes every idle Connection, for health checks.
	AcquireAllIdle() []Resource

	// Close destroys idle Connections. Connections acquired at that point are
	// destroyed when released.
	Close()

	Stats() PoolStats
}

// Resource is an acquired Connection. Exactly one of Release, ReleaseUnused or
// Destroy must be called.
type Resource interface {
	Value() *Connection

	// Release returns the Connection to the pool.
	Release()

	// ReleaseUnused returns the Connection without counting it as used.
	ReleaseUnused()

	// Destroy closes the Connection and frees its slot.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}

// PoolFactory creates a Pool of at most maxSize Connections built by constructor.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)
