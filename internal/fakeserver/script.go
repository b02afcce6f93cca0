package fakeserver

import (
	"sync"
	"testing"

	"github.com/edwingeng/deque/v2"
	"github.com/pior/redis/resp"
)

// Exchange is one expected request and the raw bytes sent back for it.
// A nil Reply closes the connection.
type Exchange struct {
	Request resp.Frame
	Reply   []byte
}

// Expect builds an exchange replying with an encoded frame.
func Expect(request, reply resp.Frame) Exchange {
	return Exchange{Request: request, Reply: resp.Encode(reply)}
}

// ExpectRaw builds an exchange replying with raw bytes, which may be malformed.
func ExpectRaw(request resp.Frame, reply string) Exchange {
	return Exchange{Request: request, Reply: []byte(reply)}
}

// ExpectHangup builds an exchange that closes the connection instead of replying.
func ExpectHangup(request resp.Frame) Exchange {
	return Exchange{Request: request}
}

// Script replays exchanges in order, across all connections of a Server.
// A request that does not match the next exchange fails the test and is answered
// with an error frame.
type Script struct {
	tb      testing.TB
	mu      sync.Mutex
	pending *deque.Deque[Exchange]
}

// NewScript creates a Script. Pass its Handle method to Start.
func NewScript(tb testing.TB, exchanges ...Exchange) *Script {
	s := &Script{
		tb:      tb,
		pending: deque.NewDeque[Exchange](),
	}
	for _, e := range exchanges {
		s.pending.PushBack(e)
	}
	return s
}

// Add appends exchanges to the end of the script.
func (s *Script) Add(exchanges ...Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range exchanges {
		s.pending.PushBack(e)
	}
}

// Remaining returns the number of exchanges not played yet.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *Script) Handle(req resp.Frame) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending.Len() == 0 {
		s.tb.Errorf("fakeserver: unexpected request %s, script is done", req)
		return resp.Encode(resp.Error("ERR fakeserver: unexpected request"))
	}

	next := s.pending.PopFront()
	if !next.Request.Equal(req) {
		s.tb.Errorf("fakeserver: got request %s, want %s", req, next.Request)
		return resp.Encode(resp.Error("ERR fakeserver: request out of order"))
	}
	return next.Reply
}
