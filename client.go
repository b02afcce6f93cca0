package redis

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pior/redis/resp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// DefaultMaxSize is the pool size used when Config.MaxSize is zero.
const DefaultMaxSize = 10

// healthCheckTimeout bounds the PING sent to each idle connection.
const healthCheckTimeout = time.Second

// Config holds configuration for the client connection pools.
type Config struct {
	// MaxSize is the maximum number of connections per server.
	// Zero means DefaultMaxSize.
	MaxSize int32

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often to check idle connections for health.
	// Zero disables health checks.
	HealthCheckInterval time.Duration

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Pool is the connection pool factory function.
	// If nil, uses the channel-based pool. Alternative: NewPuddlePool.
	Pool PoolFactory

	// SelectServer picks which server to use for a key.
	// Receives the key and current server list from Servers.List().
	// If nil, uses DefaultSelectServer.
	SelectServer SelectServerFunc

	// NewCircuitBreaker creates a circuit breaker for a server.
	// Called once per server address when the pool is created.
	// If nil, no circuit breaker is used. See NewCircuitBreakerConfig.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[resp.Frame]

	// Logger receives connection faults, destroyed connections and circuit
	// breaker transitions. The zero value discards everything.
	Logger zerolog.Logger

	// ConnectionOptions are applied to every new connection.
	ConnectionOptions []ConnectionOption

	// for testing purposes only
	constructor func(ctx context.Context) (*Connection, error)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.Pool == nil {
		c.Pool = NewChannelPool
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultSelectServer
	}
	return c
}

// Client is a multi-server client that implements the Querier interface.
// Keys are spread over servers by Config.SelectServer, each server has its own
// connection pool and optional circuit breaker.
//
// Client is safe for concurrent use.
type Client struct {
	*Commands

	servers Servers
	config  Config

	// Multi-pool management
	mu     sync.RWMutex
	pools  map[string]*ServerPool
	closed bool

	// Health check management
	stopHealthCheck chan struct{}
	closeOnce       sync.Once

	stats clientStatsCollector
}

var (
	_ Querier  = (*Client)(nil)
	_ Executor = (*Client)(nil)
)

// NewClient creates a new client with the given servers and configuration.
// For a single server, use: NewClient(NewStaticServers("host:port"), config)
func NewClient(servers Servers, config Config) (*Client, error) {
	if len(servers.List()) == 0 {
		return nil, fmt.Errorf("redis: no servers provided")
	}

	client := &Client{
		servers:         servers,
		config:          config.withDefaults(),
		pools:           make(map[string]*ServerPool),
		stopHealthCheck: make(chan struct{}),
	}
	client.Commands = NewCommands(client)

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Close stops the health check and destroys idle connections in all pools.
// Commands issued after Close fail with ErrPoolClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)

		c.mu.Lock()
		defer c.mu.Unlock()

		c.closed = true
		for _, sp := range c.pools {
			sp.Close()
		}
	})
}

// Execute routes req to the server selected for req.Key.
func (c *Client) Execute(ctx context.Context, req Request) (resp.Frame, error) {
	sp, err := c.getPoolForKey(req.Key)
	if err != nil {
		c.stats.recordError()
		return resp.Frame{}, err
	}

	reply, err := sp.Execute(ctx, req)
	if err != nil {
		c.stats.recordError()
		return resp.Frame{}, err
	}

	c.stats.record(req, !reply.IsNull())
	return reply, nil
}

// selectServerForKey picks the server address for a given key.
// Uses the configured SelectServer function with the current server list.
func (c *Client) selectServerForKey(key string) (string, error) {
	return c.config.SelectServer(key, c.servers.List())
}

// getPoolForKey returns the pool for the server that should handle this key.
// Creates pool lazily if it doesn't exist.
func (c *Client) getPoolForKey(key string) (*ServerPool, error) {
	addr, err := c.selectServerForKey(key)
	if err != nil {
		return nil, err
	}
	return c.getOrCreatePool(addr)
}

// getOrCreatePool gets or creates a pool for the given server address.
func (c *Client) getOrCreatePool(addr string) (*ServerPool, error) {
	// Fast path: read lock
	c.mu.RLock()
	sp, exists := c.pools[addr]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if exists {
		return sp, nil
	}

	// Slow path: write lock and create
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrPoolClosed
	}

	// Double-check after acquiring write lock
	if sp, exists := c.pools[addr]; exists {
		return sp, nil
	}

	sp, err := NewServerPool(addr, c.config)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = sp
	return sp, nil
}

// healthCheckLoop periodically checks idle connections for health and lifecycle limits.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

// checkAllPools runs health checks on all existing pools
func (c *Client) checkAllPools() {
	c.mu.RLock()
	pools := make([]*ServerPool, 0, len(c.pools))
	for _, sp := range c.pools {
		pools = append(pools, sp)
	}
	c.mu.RUnlock()

	for _, sp := range pools {
		c.checkPoolConnections(sp)
	}
}

// checkPoolConnections checks all idle connections in a pool and destroys those that are stale or unhealthy.
func (c *Client) checkPoolConnections(sp *ServerPool) {
	now := time.Now()

	for _, res := range sp.pool.AcquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			res.Destroy()
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			res.Destroy()
			continue
		}

		if err := healthCheck(res.Value()); err != nil {
			sp.logger.Debug().Err(err).Msg("health check failed")
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

// healthCheck sends PING on an idle connection.
func healthCheck(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	_, err := conn.Ping(ctx, nil)
	return err
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns stats for all server pools
func (c *Client) AllPoolStats() []ServerPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, sp := range c.pools {
		stats = append(stats, sp.Stats())
	}
	return stats
}
