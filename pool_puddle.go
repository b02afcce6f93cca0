package redis

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a connection pool backed by github.com/jackc/puddle/v2.
func NewPuddlePool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	p := &puddlePool{}

	poolConfig := &puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err == nil {
				p.createdConns.Add(1)
			}
			return conn, err
		},
		Destructor: func(c *Connection) {
			p.destroyedConns.Add(1)
			_ = c.Close()
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement our Pool interface.
type puddlePool struct {
	pool           *puddle.Pool[*Connection]
	createdConns   atomic.Int64
	destroyedConns atomic.Int64
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrPoolClosed
		}
		return nil, err
	}
	return &puddleResource{res}, nil
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	puddleResources := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(puddleResources))
	for i, res := range puddleResources {
		resources[i] = &puddleResource{res}
	}
	return resources
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of pool statistics by converting puddle's stats to our format.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	// Puddle tracks similar metrics with different semantics
	return PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedConns:      uint64(p.createdConns.Load()),
		DestroyedConns:    uint64(p.destroyedConns.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}

// puddleResource destroys faulted connections on release instead of pooling them.
type puddleResource struct {
	*puddle.Resource[*Connection]
}

func (r *puddleResource) Release() {
	if r.Value().State() != StateConnected {
		r.Destroy()
		return
	}
	r.Resource.Release()
}

func (r *puddleResource) ReleaseUnused() {
	if r.Value().State() != StateConnected {
		r.Destroy()
		return
	}
	r.Resource.ReleaseUnused()
}
