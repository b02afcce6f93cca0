package redis

import (
	"context"

	"github.com/pior/redis/resp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// NewServerPool creates the pool and circuit breaker of one server.
// Connections are created lazily on Acquire.
func NewServerPool(addr string, config Config) (*ServerPool, error) {
	config = config.withDefaults()

	constructor := config.constructor
	if constructor == nil {
		opts := append([]ConnectionOption{WithLogger(config.Logger)}, config.ConnectionOptions...)
		constructor = func(ctx context.Context) (*Connection, error) {
			return dial(ctx, config.Dialer, addr, opts...)
		}
	}

	pool, err := config.Pool(constructor, config.MaxSize)
	if err != nil {
		return nil, err
	}

	sp := &ServerPool{
		addr:   addr,
		pool:   pool,
		logger: config.Logger.With().Str("addr", addr).Logger(),
	}
	if config.NewCircuitBreaker != nil {
		sp.circuitBreaker = config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

// ServerPool wraps a pool, a circuit breaker with its server address.
type ServerPool struct {
	addr           string
	pool           Pool
	circuitBreaker *gobreaker.CircuitBreaker[resp.Frame] // nil if not configured
	logger         zerolog.Logger
}

var _ Executor = (*ServerPool)(nil)

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// Execute executes a single request-response cycle with proper connection management.
// It handles acquiring a connection, sending the request, reading the response, and
// releasing/destroying the connection based on error conditions.
// The request is wrapped with the server's circuit breaker.
func (sp *ServerPool) Execute(ctx context.Context, req Request) (resp.Frame, error) {
	if sp.circuitBreaker == nil {
		return sp.execRequestDirect(ctx, req)
	}

	return sp.circuitBreaker.Execute(func() (resp.Frame, error) {
		return sp.execRequestDirect(ctx, req)
	})
}

// execRequestDirect performs the actual request execution without circuit breaker.
func (sp *ServerPool) execRequestDirect(ctx context.Context, req Request) (resp.Frame, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return resp.Frame{}, err
	}

	conn := resource.Value()

	reply, err := conn.Execute(ctx, req)
	if err != nil {
		// A context done before the write leaves the connection usable
		if ShouldCloseConnection(err) && conn.State() != StateConnected {
			sp.logger.Debug().Err(err).Str("cmd", req.Name).Msg("destroying connection")
			resource.Destroy()
		} else {
			resource.Release()
		}
		return resp.Frame{}, err
	}

	resource.Release()
	return reply, nil
}

// Close destroys the idle connections of the pool.
func (sp *ServerPool) Close() {
	sp.pool.Close()
}
