package fakeserver

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pior/redis/resp"
)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Store is an in-memory key-value Handler supporting GET, SET (with EX or PX),
// PING and PUBLISH.
type Store struct {
	mu          sync.Mutex
	data        map[string]entry
	subscribers map[string]int64
	now         func() time.Time
}

// NewStore creates an empty Store. Pass its Handle method to Start.
func NewStore() *Store {
	return &Store{
		data:        make(map[string]entry),
		subscribers: make(map[string]int64),
		now:         time.Now,
	}
}

// SetSubscribers sets the receiver count that PUBLISH reports for channel.
func (s *Store) SetSubscribers(channel string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[channel] = n
}

// Expiry returns the expiration time of key, zero when it has none.
func (s *Store) Expiry(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	return e.expires, ok
}

func (s *Store) Handle(req resp.Frame) []byte {
	return resp.Encode(s.handle(req))
}

func (s *Store) handle(req resp.Frame) resp.Frame {
	args, ok := commandArgs(req)
	if !ok || len(args) == 0 {
		return resp.Error("ERR protocol error: expected an array of bulk strings")
	}

	name := strings.ToUpper(string(args[0]))
	args = args[1:]

	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case "GET":
		if len(args) != 1 {
			return wrongArity(name)
		}
		e, found := s.lookup(string(args[0]))
		if !found {
			return resp.Null()
		}
		return resp.BulkString(e.value)

	case "SET":
		if len(args) != 2 && len(args) != 4 {
			return wrongArity(name)
		}
		e := entry{value: bytes.Clone(args[1])}
		if len(args) == 4 {
			ttl, err := parseTTL(string(args[2]), string(args[3]))
			if err != nil {
				return resp.Error(err.Error())
			}
			e.expires = s.now().Add(ttl)
		}
		s.data[string(args[0])] = e
		return resp.SimpleString("OK")

	case "PING":
		switch len(args) {
		case 0:
			return resp.SimpleString("PONG")
		case 1:
			return resp.BulkString(args[0])
		default:
			return wrongArity(name)
		}

	case "PUBLISH":
		if len(args) != 2 {
			return wrongArity(name)
		}
		return resp.Integer(s.subscribers[string(args[0])])

	default:
		return resp.Error(fmt.Sprintf("ERR unknown command '%s'", args0(req)))
	}
}

func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}

func parseTTL(unit, value string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("ERR invalid expire time in 'set' command")
	}

	switch strings.ToUpper(unit) {
	case "PX":
		return time.Duration(n) * time.Millisecond, nil
	case "EX":
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("ERR syntax error")
	}
}

func wrongArity(name string) resp.Frame {
	return resp.Error(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
}

func commandArgs(req resp.Frame) ([][]byte, bool) {
	if req.Kind != resp.KindArray || req.Null {
		return nil, false
	}
	args := make([][]byte, len(req.Array))
	for i, elem := range req.Array {
		if elem.Kind != resp.KindBulkString {
			return nil, false
		}
		args[i] = elem.Data
	}
	return args, true
}

func args0(req resp.Frame) string {
	return string(req.Array[0].Data)
}
