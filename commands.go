package redis

import (
	"context"
	"time"

	"github.com/pior/redis/resp"
)

// NoTTL stores an item without expiration.
const NoTTL = 0

type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
	Found bool // indicates whether the key exists on the server
}

type Querier interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, item Item) error
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, message []byte) (int64, error)
}

// Executor runs one request and returns the checked reply.
// Server error replies are returned as *CommandError.
type Executor interface {
	Execute(ctx context.Context, req Request) (resp.Frame, error)
}

// Commands provides the typed command operations over any Executor:
// a single *Connection, a *ServerPool or a *Client.
type Commands struct {
	executor Executor
}

var _ Querier = (*Commands)(nil)

// NewCommands creates a new Commands instance with the given executor.
func NewCommands(executor Executor) *Commands {
	return &Commands{
		executor: executor,
	}
}

// Get retrieves a single item. A missing key is not an error: Found is false.
func (c *Commands) Get(ctx context.Context, key string) (Item, error) {
	reply, err := c.executor.Execute(ctx, GetCommand(key))
	if err != nil {
		return Item{}, err
	}

	value, found := bulkValue(reply)
	return Item{
		Key:   key,
		Value: value,
		Found: found,
	}, nil
}

// Set stores an item. A TTL of NoTTL stores it without expiration.
func (c *Commands) Set(ctx context.Context, item Item) error {
	_, err := c.executor.Execute(ctx, SetCommand(item.Key, item.Value, item.TTL))
	return err
}

// Ping checks that the server answers.
func (c *Commands) Ping(ctx context.Context) error {
	_, err := c.executor.Execute(ctx, PingCommand(nil))
	return err
}

// Publish posts message on channel and returns the number of receivers.
func (c *Commands) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	reply, err := c.executor.Execute(ctx, PublishCommand(channel, message))
	if err != nil {
		return 0, err
	}
	return reply.Int, nil
}
