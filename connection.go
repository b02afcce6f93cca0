package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/pior/redis/resp"
	"github.com/rs/zerolog"
)

const (
	defaultReadBufferSize = 4096

	// Encode buffers above this size are dropped after use instead of kept
	// for the next command.
	maxRetainedWriteBuffer = 64 * 1024
)

// aLongTimeAgo is a non-zero time in the past, used to interrupt pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// State is the lifecycle state of a Connection.
type State int32

const (
	// StateConnected accepts commands.
	StateConnected State = iota
	// StateFaulted follows an I/O or protocol error: every call returns that error.
	StateFaulted
	// StateClosed follows Close.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConnectionOption customizes a Connection.
type ConnectionOption func(*connectionOptions)

type connectionOptions struct {
	parser         resp.Parser
	logger         zerolog.Logger
	readBufferSize int
}

// WithParser sets the limits applied to server responses.
func WithParser(p resp.Parser) ConnectionOption {
	return func(o *connectionOptions) {
		o.parser = p
	}
}

// WithLogger sets the logger used to report faults. Defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) ConnectionOption {
	return func(o *connectionOptions) {
		o.logger = logger
	}
}

// WithReadBufferSize sets the initial size of the read buffer.
// The buffer grows as needed for large responses.
func WithReadBufferSize(size int) ConnectionOption {
	return func(o *connectionOptions) {
		o.readBufferSize = size
	}
}

// Connection is a single stream to a server, with one request in flight at a time.
//
// A Connection is owned by one goroutine: Send and the command methods must not be
// called concurrently. Close is the exception and may be called from any goroutine
// to interrupt a pending exchange.
//
// Any I/O or protocol error faults the Connection: the stream is closed and every
// following call returns the same error. A server error reply (CommandError) leaves
// the Connection usable.
type Connection struct {
	addr    string
	conn    net.Conn
	decoder *resp.Decoder
	wbuf    []byte
	logger  zerolog.Logger

	state atomic.Int32
	fault error // owned by the goroutine using the Connection
}

// Connect dials addr over TCP.
// The context bounds the dial only; it is not retained by the Connection.
func Connect(ctx context.Context, addr string, opts ...ConnectionOption) (*Connection, error) {
	return dial(ctx, &net.Dialer{}, addr, opts...)
}

func dial(ctx context.Context, dialer *net.Dialer, addr string, opts ...ConnectionOption) (*Connection, error) {
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	return NewConnection(netConn, opts...), nil
}

// NewConnection wraps an established stream. The Connection takes ownership of netConn.
func NewConnection(netConn net.Conn, opts ...ConnectionOption) *Connection {
	o := connectionOptions{
		logger:         zerolog.Nop(),
		readBufferSize: defaultReadBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var addr string
	if ra := netConn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}

	return &Connection{
		addr:    addr,
		conn:    netConn,
		decoder: resp.NewDecoder(netConn, o.parser, o.readBufferSize),
		logger:  o.logger.With().Str("addr", addr).Logger(),
	}
}

// Addr returns the remote address of the stream.
func (c *Connection) Addr() string {
	return c.addr
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Close closes the stream. It is safe to call from any goroutine and more than once.
// A pending exchange fails with an error wrapping ErrConnectionClosed.
func (c *Connection) Close() error {
	switch State(c.state.Swap(int32(StateClosed))) {
	case StateConnected:
		return c.conn.Close()
	default:
		// Already closed, or faulted: the stream was closed with the fault
		return nil
	}
}

// Send writes req and returns the next frame from the server.
//
// Error frames are returned as frames, not as Go errors: the caller decides what a
// server error means for its command. Frames that cannot be encoded are rejected
// with a *resp.InvalidFrameError before anything is written.
//
// The context deadline, if any, becomes the I/O deadline. Cancelling the context
// interrupts the exchange and faults the Connection.
func (c *Connection) Send(ctx context.Context, req resp.Frame) (resp.Frame, error) {
	if err := c.usable(); err != nil {
		return resp.Frame{}, err
	}
	if err := resp.Validate(req); err != nil {
		return resp.Frame{}, err
	}
	if err := ctx.Err(); err != nil {
		return resp.Frame{}, err
	}

	release := c.bindContext(ctx)
	reply, err := c.roundTrip(req)
	release()

	if err != nil {
		return resp.Frame{}, c.setFault(c.exchangeError(ctx, err))
	}
	return reply, nil
}

// Execute sends the request and checks the reply shape.
// A server error reply is returned as a *CommandError, an unexpected reply type as a
// *ProtocolError, which faults the Connection.
func (c *Connection) Execute(ctx context.Context, req Request) (resp.Frame, error) {
	reply, err := c.Send(ctx, req.Frame)
	if err != nil {
		return resp.Frame{}, err
	}

	if err := req.check(reply); err != nil {
		if ShouldCloseConnection(err) {
			return resp.Frame{}, c.setFault(err)
		}
		return resp.Frame{}, err
	}
	return reply, nil
}

// Set stores value under key. An expire above zero sets a time to live, rounded up
// to the millisecond.
func (c *Connection) Set(ctx context.Context, key string, value []byte, expire time.Duration) error {
	_, err := c.Execute(ctx, SetCommand(key, value, expire))
	return err
}

// Get returns the value stored under key. found is false when the key does not exist.
func (c *Connection) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	reply, err := c.Execute(ctx, GetCommand(key))
	if err != nil {
		return nil, false, err
	}
	value, found = bulkValue(reply)
	return value, found, nil
}

// Ping checks the server is responsive. With a message, the server echoes it back.
func (c *Connection) Ping(ctx context.Context, msg []byte) ([]byte, error) {
	reply, err := c.Execute(ctx, PingCommand(msg))
	if err != nil {
		return nil, err
	}
	return pingValue(reply), nil
}

// Publish posts message on channel and returns the number of subscribers that received it.
func (c *Connection) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	reply, err := c.Execute(ctx, PublishCommand(channel, message))
	if err != nil {
		return 0, err
	}
	return reply.Int, nil
}

func (c *Connection) usable() error {
	switch State(c.state.Load()) {
	case StateConnected:
		return nil
	case StateFaulted:
		return c.fault
	default:
		return ErrConnectionClosed
	}
}

// setFault moves the Connection to StateFaulted and closes the stream.
// It returns the error to report to the caller.
func (c *Connection) setFault(err error) error {
	c.fault = err
	if c.state.CompareAndSwap(int32(StateConnected), int32(StateFaulted)) {
		c.logger.Debug().Err(err).Msg("connection faulted")
		_ = c.conn.Close()
		return err
	}

	// Close won the race while the exchange was pending
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}

func (c *Connection) roundTrip(req resp.Frame) (resp.Frame, error) {
	if err := c.writeRequest(req); err != nil {
		return resp.Frame{}, err
	}
	return c.decoder.ReadFrame()
}

// writeRequest encodes the whole command first, then writes it in as few calls as the
// stream allows.
func (c *Connection) writeRequest(req resp.Frame) error {
	c.wbuf = resp.AppendFrame(c.wbuf[:0], req)

	buf := c.wbuf
	for len(buf) > 0 {
		n, err := c.conn.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}

	if cap(c.wbuf) > maxRetainedWriteBuffer {
		c.wbuf = nil
	}
	return nil
}

// bindContext applies the context deadline to the stream and arranges for
// cancellation to interrupt pending I/O. The returned func must be called when the
// exchange is over; it waits for a concurrent interruption to finish so that it
// cannot leak into the next exchange.
func (c *Connection) bindContext(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetDeadline(deadline)

	if ctx.Done() == nil {
		return func() {}
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(aLongTimeAgo)
		close(interrupted)
	})

	return func() {
		if !stop() {
			<-interrupted
		}
	}
}

// exchangeError classifies a failed exchange.
func (c *Connection) exchangeError(ctx context.Context, err error) error {
	var parseErr *resp.ParseError
	if errors.As(err, &parseErr) {
		return &ProtocolError{Message: "malformed response", Err: err}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionReset, ctxErr)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if _, ok := ctx.Deadline(); ok {
			// The socket deadline fired before the context timer
			return fmt.Errorf("%w: %w", ErrConnectionReset, context.DeadlineExceeded)
		}
	}

	return fmt.Errorf("%w: %w", ErrConnectionReset, err)
}
