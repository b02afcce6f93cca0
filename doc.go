// Package redis is a client for servers speaking RESP2, the Redis
// serialization protocol.
//
// # Connection
//
// Connection owns one TCP stream and runs strictly sequential exchanges:
// one request frame is written, then exactly one reply frame is read.
//
//	conn, err := redis.Connect(ctx, "127.0.0.1:6379")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	err = conn.Set(ctx, "hello", []byte("world"), 0)
//	value, found, err := conn.Get(ctx, "hello")
//
// A server Error reply is returned as *CommandError and leaves the connection
// usable. A malformed or unexpected reply (*ProtocolError) or an I/O failure
// (ErrConnectionReset) faults the connection: every later call fails with the
// same error. Use ShouldCloseConnection to tell the two apart.
//
// # Client
//
// Client spreads keys over several servers with a jump consistent hash and
// keeps a connection pool per server. It implements Querier:
//
//	client, err := redis.NewClient(redis.NewStaticServers("a:6379", "b:6379"), redis.Config{})
//	item, err := client.Get(ctx, "hello")
//
// Arbitrary commands go through Execute with a Request built by NewRequest.
// The low-level frame codec lives in the resp subpackage.
package redis
