// Package fakeserver runs an in-process RESP server for tests.
//
// A Server decodes each request frame and writes back whatever its Handler returns.
// Two handlers are provided: Script, which replays an ordered list of exchanges and
// fails the test on any request out of order, and Store, a small in-memory
// implementation of GET, SET, PING and PUBLISH.
package fakeserver

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pior/redis/resp"
	"github.com/stretchr/testify/require"
)

// Handler returns the raw bytes written back for one request.
// Returning nil closes the connection without replying.
type Handler func(req resp.Frame) []byte

// Server accepts connections on a loopback port until Close.
type Server struct {
	tb      testing.TB
	ln      net.Listener
	handler Handler

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	requests atomic.Int64
	accepted atomic.Int64
}

// Start listens on 127.0.0.1 and serves handler. The server is closed on test cleanup.
func Start(tb testing.TB, handler Handler) *Server {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)

	s := &Server{
		tb:      tb,
		ln:      ln,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	tb.Cleanup(s.Close)
	return s
}

// Addr returns the "host:port" address of the server.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Requests returns the number of request frames decoded so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// Close stops accepting, closes open connections and waits for their goroutines.
func (s *Server) Close() {
	_ = s.ln.Close()

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	dec := resp.NewDecoder(conn, resp.Parser{}, 0)
	for {
		req, err := dec.ReadFrame()
		if err != nil {
			var parseErr *resp.ParseError
			if errors.As(err, &parseErr) {
				s.tb.Errorf("fakeserver: malformed request: %v", err)
			}
			return
		}
		s.requests.Add(1)

		reply := s.handler(req)
		if reply == nil {
			return
		}
		if _, err := conn.Write(reply); err != nil && !errors.Is(err, io.EOF) {
			return
		}
	}
}
