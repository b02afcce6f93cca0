package redis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pior/redis/internal/fakeserver"
	"github.com/pior/redis/internal/testutils"
	"github.com/pior/redis/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, addr string) *Connection {
	t.Helper()

	conn, err := Connect(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// blockingServer accepts requests and never answers until the test ends.
func blockingServer(t *testing.T) *fakeserver.Server {
	release := make(chan struct{})
	srv := fakeserver.Start(t, func(resp.Frame) []byte {
		<-release
		return nil
	})
	// Cleanups run last-in first-out: unblock handlers before the server waits for them
	t.Cleanup(func() { close(release) })
	return srv
}

func TestConnectSetGet(t *testing.T) {
	srv := fakeserver.Start(t, fakeserver.NewStore().Handle)
	conn := connect(t, srv.Addr())
	ctx := context.Background()

	require.NoError(t, conn.Set(ctx, "hello", []byte("world"), 0))

	value, found, err := conn.Get(ctx, "hello")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "world", string(value))

	require.Equal(t, StateConnected, conn.State())
	require.Equal(t, srv.Addr(), conn.Addr())
}

func TestConnectionRequestOrder(t *testing.T) {
	script := fakeserver.NewScript(t,
		fakeserver.Expect(resp.Command("SET", []byte("hello"), []byte("world")), resp.SimpleString("OK")),
		fakeserver.Expect(resp.Command("GET", []byte("hello")), resp.BulkStringFromString("world")),
		fakeserver.Expect(resp.Command("GET", []byte("missing")), resp.Null()),
	)
	srv := fakeserver.Start(t, script.Handle)
	conn := connect(t, srv.Addr())
	ctx := context.Background()

	require.NoError(t, conn.Set(ctx, "hello", []byte("world"), 0))

	value, found, err := conn.Get(ctx, "hello")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("world"), value)

	value, found, err = conn.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, value)

	require.Zero(t, script.Remaining())
}

func TestConnectionGetEmptyValue(t *testing.T) {
	mock := testutils.NewConnectionMock("$0\r\n\r\n")
	conn := NewConnection(mock)

	value, found, err := conn.Get(context.Background(), "empty")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, value)
	require.Empty(t, value)
}

func TestConnectionCommandErrorKeepsConnection(t *testing.T) {
	script := fakeserver.NewScript(t,
		fakeserver.ExpectRaw(resp.Command("GET", []byte("list")), "-ERR wrong type\r\n"),
		fakeserver.ExpectRaw(resp.Command("GET", []byte("list")), "$1\r\nv\r\n"),
	)
	srv := fakeserver.Start(t, script.Handle)
	conn := connect(t, srv.Addr())
	ctx := context.Background()

	_, _, err := conn.Get(ctx, "list")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "ERR wrong type", cmdErr.Message)
	require.False(t, ShouldCloseConnection(err))
	require.Equal(t, StateConnected, conn.State())

	value, found, err := conn.Get(ctx, "list")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(value))
}

func TestConnectionSetWithExpiry(t *testing.T) {
	mock := testutils.NewConnectionMock("+OK\r\n")
	conn := NewConnection(mock)

	require.NoError(t, conn.Set(context.Background(), "k", []byte("v"), 1500*time.Millisecond))
	require.Equal(t, "*5\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nPX\r\n$4\r\n1500\r\n", mock.GetWrittenRequest())
}

func TestConnectionWireFormat(t *testing.T) {
	mock := testutils.NewConnectionMock("$5\r\nworld\r\n")
	conn := NewConnection(mock)

	_, _, err := conn.Get(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "*2\r\n$3\r\nGET\r\n$5\r\nhello\r\n", mock.GetWrittenRequest())
}

func TestConnectionChunkedReads(t *testing.T) {
	value := bytes.Repeat([]byte("abc"), 5000)

	mock := testutils.NewConnectionMock(string(resp.Encode(resp.BulkString(value))))
	mock.ChunkSize = 7
	conn := NewConnection(mock, WithReadBufferSize(16))

	got, found, err := conn.Get(context.Background(), "big")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, value, got)
}

func TestConnectionSetUnexpectedReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"bulk string", "$2\r\nOK\r\n"},
		{"integer", ":1\r\n"},
		{"null", "$-1\r\n"},
		{"array", "*0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutils.NewConnectionMock(tt.reply)
			conn := NewConnection(mock)

			err := conn.Set(context.Background(), "k", []byte("v"), 0)

			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
			require.Contains(t, err.Error(), "reply to SET")
			require.Equal(t, StateFaulted, conn.State())
			require.True(t, mock.IsClosed())
		})
	}
}

func TestConnectionGetUnexpectedReply(t *testing.T) {
	mock := testutils.NewConnectionMock(":42\r\n")
	conn := NewConnection(mock)

	_, _, err := conn.Get(context.Background(), "k")

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, ShouldCloseConnection(err))
	require.Equal(t, StateFaulted, conn.State())
}

func TestConnectionMalformedReplyFaults(t *testing.T) {
	mock := testutils.NewConnectionMock("xbad\r\n", "+OK\r\n")
	conn := NewConnection(mock)
	ctx := context.Background()

	_, _, err := conn.Get(ctx, "k")

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	var parseErr *resp.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, StateFaulted, conn.State())
	require.True(t, mock.IsClosed())

	// Every following call fails with the same error, without I/O
	written := mock.GetWrittenRequest()
	err2 := conn.Set(ctx, "k", []byte("v"), 0)
	require.Same(t, err, err2)
	require.Equal(t, written, mock.GetWrittenRequest())
}

func TestConnectionOversizedBulkFaults(t *testing.T) {
	mock := testutils.NewConnectionMock("$100\r\n")
	conn := NewConnection(mock, WithParser(resp.Parser{MaxBulkLength: 10}))

	_, _, err := conn.Get(context.Background(), "k")

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.ErrorContains(t, err, "exceeds limit")
}

func TestConnectionResetMidFrame(t *testing.T) {
	mock := testutils.NewConnectionMock("$5\r\nwor")
	conn := NewConnection(mock)

	_, _, err := conn.Get(context.Background(), "k")

	require.ErrorIs(t, err, ErrConnectionReset)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.True(t, ShouldCloseConnection(err))
	require.Equal(t, StateFaulted, conn.State())
}

func TestConnectionResetBeforeReply(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	err := conn.Set(context.Background(), "k", []byte("v"), 0)

	require.ErrorIs(t, err, ErrConnectionReset)
	require.ErrorIs(t, err, io.EOF)
}

func TestConnectionServerHangup(t *testing.T) {
	script := fakeserver.NewScript(t, fakeserver.ExpectHangup(resp.Command("GET", []byte("k"))))
	srv := fakeserver.Start(t, script.Handle)
	conn := connect(t, srv.Addr())

	_, _, err := conn.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrConnectionReset)
	require.Equal(t, StateFaulted, conn.State())
}

func TestConnectionWriteError(t *testing.T) {
	mock := testutils.NewConnectionMock()
	mock.WriteErr = errors.New("broken pipe")
	conn := NewConnection(mock)

	err := conn.Set(context.Background(), "k", []byte("v"), 0)
	require.ErrorIs(t, err, ErrConnectionReset)
	require.ErrorContains(t, err, "broken pipe")
}

func TestConnectionClose(t *testing.T) {
	mock := testutils.NewConnectionMock("+OK\r\n")
	conn := NewConnection(mock)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.Equal(t, StateClosed, conn.State())
	require.True(t, mock.IsClosed())

	_, _, err := conn.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.Empty(t, mock.GetWrittenRequest())
}

func TestConnectionCloseAfterFault(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock())

	_, _, err := conn.Get(context.Background(), "k")
	require.Error(t, err)
	require.Equal(t, StateFaulted, conn.State())

	require.NoError(t, conn.Close())
	require.Equal(t, StateClosed, conn.State())
}

func TestConnectionCloseInterruptsPendingRead(t *testing.T) {
	srv := blockingServer(t)
	conn := connect(t, srv.Addr())

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	}()

	_, _, err := conn.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.Equal(t, StateClosed, conn.State())
}

func TestConnectionContextDeadline(t *testing.T) {
	srv := blockingServer(t)
	conn := connect(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := conn.Get(ctx, "k")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrConnectionReset)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, StateFaulted, conn.State())
}

func TestConnectionContextCancel(t *testing.T) {
	srv := blockingServer(t)
	conn := connect(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := conn.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFaulted, conn.State())
}

func TestConnectionContextAlreadyDone(t *testing.T) {
	mock := testutils.NewConnectionMock("+OK\r\n")
	conn := NewConnection(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := conn.Set(ctx, "k", []byte("v"), 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateConnected, conn.State(), "nothing was sent")
	require.Empty(t, mock.GetWrittenRequest())
}

func TestConnectionDeadlineApplied(t *testing.T) {
	mock := testutils.NewConnectionMock("+OK\r\n", "+OK\r\n")
	conn := NewConnection(mock)

	deadline := time.Now().Add(time.Hour)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	require.NoError(t, conn.Set(ctx, "k", []byte("v"), 0))
	require.True(t, mock.Deadline().Equal(deadline))

	// Without a deadline the previous one is cleared
	require.NoError(t, conn.Set(context.Background(), "k", []byte("v"), 0))
	require.True(t, mock.Deadline().IsZero())
}

func TestConnectionSendReturnsErrorFrames(t *testing.T) {
	mock := testutils.NewConnectionMock("-ERR unknown command 'FOO'\r\n")
	conn := NewConnection(mock)

	reply, err := conn.Send(context.Background(), resp.Command("FOO"))
	require.NoError(t, err)
	require.Equal(t, resp.Error("ERR unknown command 'FOO'"), reply)
	require.Equal(t, StateConnected, conn.State())
}

func TestConnectionSendInvalidFrame(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	_, err := conn.Send(context.Background(), resp.Array(resp.SimpleString("a\r\nb")))

	var invalid *resp.InvalidFrameError
	require.ErrorAs(t, err, &invalid)
	require.False(t, ShouldCloseConnection(err))
	require.Equal(t, StateConnected, conn.State())
	require.Empty(t, mock.GetWrittenRequest())
}

func TestConnectionPingPublish(t *testing.T) {
	store := fakeserver.NewStore()
	store.SetSubscribers("news", 3)
	srv := fakeserver.Start(t, store.Handle)
	conn := connect(t, srv.Addr())
	ctx := context.Background()

	pong, err := conn.Ping(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(pong))

	echo, err := conn.Ping(ctx, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(echo))

	n, err := conn.Publish(ctx, "news", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = conn.Publish(ctx, "empty", []byte("hello"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnectionLargeValue(t *testing.T) {
	srv := fakeserver.Start(t, fakeserver.NewStore().Handle)
	conn := connect(t, srv.Addr())
	ctx := context.Background()

	value := bytes.Repeat([]byte{0, '\r', '\n', 0xff}, 256*1024)
	require.NoError(t, conn.Set(ctx, "big", value, 0))

	// The oversized encode buffer is not retained
	require.Nil(t, conn.wbuf)

	got, found, err := conn.Get(ctx, "big")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, value, got)
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Connect(context.Background(), addr)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "dial", connErr.Op)
	require.Equal(t, addr, connErr.Addr)
	require.NotNil(t, errors.Unwrap(err))
}

func TestConnectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, "127.0.0.1:6379")

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "faulted", StateFaulted.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
