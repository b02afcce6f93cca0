package redis

import (
	"errors"
	"fmt"
)

// Error types for client operations.
// They tell callers whether a Connection can still be used after a failure.

var (
	// ErrConnectionClosed is returned by operations on a Connection after Close.
	ErrConnectionClosed = errors.New("redis: connection closed")

	// ErrConnectionReset is returned when the stream ends or fails in the middle
	// of an exchange. Errors wrapping it keep the underlying I/O error in the chain.
	//
	// Connection handling: the Connection is faulted, CLOSE it
	ErrConnectionReset = errors.New("redis: connection reset")
)

// ConnectionError is returned when the stream to the server cannot be established.
//
// Common causes:
//   - Address cannot be resolved
//   - Connection refused
//   - Dial timeout or cancelled context
//
// Connection handling: there is no Connection, the caller may retry Connect
type ConnectionError struct {
	Op   string // Operation that failed (dial)
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("redis: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - there is no usable stream
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ProtocolError reports a malformed frame or a frame of an unexpected type
// for the command that was sent.
//
// Common causes:
//   - Malformed bytes from the server (Err is a *resp.ParseError)
//   - A GET answered with an integer, a SET answered with a bulk string
//
// Connection handling: the Connection is faulted, CLOSE it
type ProtocolError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "redis: protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "redis: protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the response stream cannot be trusted
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// CommandError is a server error reply (an Error frame) to a well-formed command.
// Message is the server text, e.g. "ERR wrong number of arguments for 'get' command".
//
// Connection handling: Connection can be REUSED, this is an application-level failure
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return "redis: " + e.Message
}

// ShouldCloseConnection returns false - the exchange completed normally
func (e *CommandError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is implemented by errors that tell whether the
// connection they happened on must be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
//
// Returns false for nil and CommandError. Returns true for ConnectionError,
// ProtocolError, ErrConnectionReset, ErrConnectionClosed, context errors and
// any unknown error: when in doubt the connection is dropped.
//
// Usage:
//
//	resp, err := conn.Send(ctx, req)
//	if err != nil {
//	    if redis.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}

// IsCommandError reports whether err is a server error reply.
func IsCommandError(err error) bool {
	var e *CommandError
	return errors.As(err, &e)
}
