package redis

import (
	"errors"

	"github.com/pior/redis/internal"
	"github.com/zeebo/xxh3"
)

var ErrNoServers = errors.New("redis: no servers available")

// SelectServerFunc picks which server to use for a given key.
// It receives the key and the current list of server addresses.
// Returns empty string and error if no server can be selected.
type SelectServerFunc func(key string, servers []string) (string, error)

// DefaultSelectServer uses Jump Hash over xxh3 for consistent server selection.
// Jump Hash moves few keys when servers are added or removed at the end of the list.
// For a single server, it returns that server directly.
func DefaultSelectServer(key string, servers []string) (string, error) {
	switch len(servers) {
	case 0:
		return "", ErrNoServers
	case 1:
		return servers[0], nil
	}

	return servers[internal.JumpHash(xxh3.HashString(key), len(servers))], nil
}
