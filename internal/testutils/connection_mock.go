// Package testutils provides a scripted net.Conn for tests that do not need a socket.
package testutils

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// ConnectionMock is a net.Conn that serves canned response bytes and records writes.
// Reads return at most ChunkSize bytes when ChunkSize is positive, which exercises
// incremental parsing. Once the responses are exhausted, reads return ReadErr
// (io.EOF by default).
type ConnectionMock struct {
	ChunkSize int
	ReadErr   error
	WriteErr  error

	mu       sync.Mutex
	readBuf  *bytes.Buffer
	writeBuf bytes.Buffer
	closed   bool
	deadline time.Time
}

// NewConnectionMock creates a new mock connection with pre-configured response data
func NewConnectionMock(responseData ...string) *ConnectionMock {
	return &ConnectionMock{
		readBuf: bytes.NewBufferString(strings.Join(responseData, "")),
		ReadErr: io.EOF,
	}
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.readBuf.Len() == 0 {
		return 0, m.ReadErr
	}
	if m.ChunkSize > 0 && len(b) > m.ChunkSize {
		b = b[:m.ChunkSize]
	}
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6379}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return m.SetDeadline(t) }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return m.SetDeadline(t) }

// Deadline returns the last deadline set.
func (m *ConnectionMock) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// GetWrittenRequest returns the raw request bytes written to the mock connection
func (m *ConnectionMock) GetWrittenRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}
