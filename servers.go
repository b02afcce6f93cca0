package redis

// Servers provides the list of server addresses a Client distributes keys over.
// List is called on every request: implementations backed by service discovery
// must return quickly and be safe for concurrent use.
type Servers interface {
	List() []string
}

// StaticServers is a fixed list of addresses.
type StaticServers struct {
	addrs []string
}

var _ Servers = (*StaticServers)(nil)

// NewStaticServers creates a Servers with a fixed list of "host:port" addresses.
func NewStaticServers(addrs ...string) *StaticServers {
	return &StaticServers{addrs: addrs}
}

func (s *StaticServers) List() []string {
	return s.addrs
}
