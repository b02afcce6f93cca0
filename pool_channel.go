package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pior/redis/internal/coarsetime"
)

// NewChannelPool creates a new channel-based connection pool.
// This is the default pool implementation, optimized for low allocation.
func NewChannelPool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	if maxSize <= 0 {
		return nil, errors.New("redis: pool max size must be positive")
	}
	return &channelPool{
		constructor: constructor,
		maxSize:     maxSize,
		resources:   make(chan *channelResource, maxSize),
		freed:       make(chan struct{}, 1),
	}, nil
}

// channelResource implements Resource for channel pool.
type channelResource struct {
	conn         *Connection
	pool         *channelPool
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Connection {
	return r.conn
}

func (r *channelResource) Release() {
	r.lastUsedTime = coarsetime.Now()
	r.pool.put(r)
}

func (r *channelResource) ReleaseUnused() {
	// Don't update lastUsedTime for health checks
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	r.pool.destroy(r)
}

func (r *channelResource) CreationTime() time.Time {
	return r.creationTime
}

func (r *channelResource) IdleDuration() time.Duration {
	return coarsetime.Now().Sub(r.lastUsedTime)
}

// channelPool keeps idle connections in a buffered channel sized to maxSize.
type channelPool struct {
	constructor func(ctx context.Context) (*Connection, error)
	maxSize     int32

	mu        sync.Mutex
	resources chan *channelResource
	freed     chan struct{} // signaled when a destroyed connection frees a slot
	size      int32
	closed    bool

	stats poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	var waitStart time.Time
	for {
		res, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			if !waitStart.IsZero() {
				p.stats.recordAcquireWait(time.Since(waitStart))
			}
			return res, nil
		}

		// Pool is full, wait for a connection to be released or destroyed
		if waitStart.IsZero() {
			waitStart = time.Now()
		}
		select {
		case res, ok := <-p.resources:
			if !ok {
				p.stats.recordAcquireError()
				return nil, ErrPoolClosed
			}
			p.stats.recordAcquireWait(time.Since(waitStart))
			p.stats.recordAcquireFromIdle()
			return res, nil
		case <-p.freed:
		case <-ctx.Done():
			p.stats.recordAcquireError()
			return nil, ctx.Err()
		}
	}
}

// tryAcquire returns an idle or new connection, or nil when the pool is full.
func (p *channelPool) tryAcquire(ctx context.Context) (*channelResource, error) {
	// Try to get an idle connection from the pool first
	select {
	case res, ok := <-p.resources:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireFromIdle()
		return res, nil
	default:
		// No idle connection, create new one if under limit
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	if p.size < p.maxSize {
		p.size++
		p.mu.Unlock()

		conn, err := p.constructor(ctx)
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			p.signalFreed()
			p.stats.recordAcquireError()
			return nil, err
		}

		p.stats.recordCreate()
		p.stats.recordActivate()

		now := coarsetime.Now()
		return &channelResource{
			conn:         conn,
			pool:         p,
			creationTime: now,
			lastUsedTime: now,
		}, nil
	}
	p.mu.Unlock()

	return nil, nil
}

func (p *channelPool) put(res *channelResource) {
	if res.conn.State() != StateConnected {
		p.destroy(res)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.removeLocked(res)
		return
	}

	select {
	case p.resources <- res:
		p.stats.recordRelease()
	default:
		// Cannot happen while size <= maxSize, close the extra connection
		p.removeLocked(res)
	}
}

func (p *channelPool) destroy(res *channelResource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(res)
}

func (p *channelPool) removeLocked(res *channelResource) {
	_ = res.conn.Close()
	p.size--
	p.stats.recordDestroy()
	p.signalFreed()
}

func (p *channelPool) signalFreed() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource

	for {
		select {
		case res, ok := <-p.resources:
			if !ok {
				return idle
			}
			p.stats.recordAcquireFromIdle()
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	// Close all idle connections
	close(p.resources)
	for res := range p.resources {
		p.stats.recordAcquireFromIdle()
		p.removeLocked(res)
	}
}

// Stats returns a snapshot of pool statistics.
func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
