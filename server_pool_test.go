package redis

import (
	"context"
	"testing"
	"time"

	"github.com/pior/redis/internal/fakeserver"
	"github.com/pior/redis/resp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func TestServerPoolExecute(t *testing.T) {
	srv := fakeserver.Start(t, fakeserver.NewStore().Handle)

	sp, err := NewServerPool(srv.Addr(), Config{MaxSize: 2})
	require.NoError(t, err)
	defer sp.Close()
	ctx := context.Background()

	_, err = sp.Execute(ctx, SetCommand("k", []byte("v"), NoTTL))
	require.NoError(t, err)

	reply, err := sp.Execute(ctx, GetCommand("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(reply.Data))

	stats := sp.Stats()
	require.Equal(t, srv.Addr(), stats.Addr)
	require.Equal(t, uint64(1), stats.PoolStats.CreatedConns)
	require.Equal(t, int32(1), stats.PoolStats.IdleConns)
	require.Equal(t, srv.Addr(), sp.Address())
}

func TestServerPoolKeepsConnectionOnCommandError(t *testing.T) {
	script := fakeserver.NewScript(t,
		fakeserver.ExpectRaw(resp.Command("GET", []byte("k")), "-ERR wrong type\r\n"),
		fakeserver.ExpectRaw(resp.Command("GET", []byte("k")), "$-1\r\n"),
	)
	srv := fakeserver.Start(t, script.Handle)

	sp, err := NewServerPool(srv.Addr(), Config{MaxSize: 1})
	require.NoError(t, err)
	defer sp.Close()
	ctx := context.Background()

	_, err = sp.Execute(ctx, GetCommand("k"))
	require.True(t, IsCommandError(err))

	_, err = sp.Execute(ctx, GetCommand("k"))
	require.NoError(t, err)

	stats := sp.Stats().PoolStats
	require.Equal(t, uint64(1), stats.CreatedConns)
	require.Zero(t, stats.DestroyedConns)
	require.Equal(t, int64(1), srv.Accepted())
}

func TestServerPoolDestroysConnectionOnProtocolError(t *testing.T) {
	script := fakeserver.NewScript(t,
		fakeserver.ExpectRaw(resp.Command("GET", []byte("k")), ":1\r\n"),
		fakeserver.ExpectRaw(resp.Command("GET", []byte("k")), "$1\r\nv\r\n"),
	)
	srv := fakeserver.Start(t, script.Handle)

	sp, err := NewServerPool(srv.Addr(), Config{MaxSize: 1})
	require.NoError(t, err)
	defer sp.Close()
	ctx := context.Background()

	_, err = sp.Execute(ctx, GetCommand("k"))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)

	reply, err := sp.Execute(ctx, GetCommand("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(reply.Data))

	stats := sp.Stats().PoolStats
	require.Equal(t, uint64(2), stats.CreatedConns)
	require.Equal(t, uint64(1), stats.DestroyedConns)
}

func TestServerPoolCircuitBreaker(t *testing.T) {
	// Nothing listens on this address once the listener is closed
	srv := fakeserver.Start(t, fakeserver.NewStore().Handle)
	addr := srv.Addr()
	srv.Close()

	sp, err := NewServerPool(addr, Config{
		MaxSize:           1,
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute, zerolog.Nop()),
	})
	require.NoError(t, err)
	defer sp.Close()
	ctx := context.Background()

	for range 3 {
		_, err := sp.Execute(ctx, PingCommand(nil))
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
	}

	_, err = sp.Execute(ctx, PingCommand(nil))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, gobreaker.StateOpen, sp.Stats().CircuitBreakerState)
}

func TestServerPoolKeepsConnectionOnDoneContext(t *testing.T) {
	srv := fakeserver.Start(t, fakeserver.NewStore().Handle)

	sp, err := NewServerPool(srv.Addr(), Config{MaxSize: 1})
	require.NoError(t, err)
	defer sp.Close()

	_, err = sp.Execute(context.Background(), PingCommand(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sp.Execute(ctx, GetCommand("k"))
	require.ErrorIs(t, err, context.Canceled)

	stats := sp.Stats().PoolStats
	require.Zero(t, stats.DestroyedConns)
	require.Equal(t, int32(1), stats.IdleConns)

	_, err = sp.Execute(context.Background(), GetCommand("k"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), sp.Stats().PoolStats.CreatedConns)
	require.Equal(t, int64(1), srv.Accepted())
}
