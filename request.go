package redis

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/pior/redis/resp"
)

// Command names sent on the wire.
const (
	CmdGet     = "GET"
	CmdSet     = "SET"
	CmdPing    = "PING"
	CmdPublish = "PUBLISH"
)

// Request is a command frame with the reply types it accepts.
type Request struct {
	// Name is the command name, e.g. "GET".
	Name string
	// Key selects the server in a multi-server Client. Empty for keyless commands.
	Key   string
	Frame resp.Frame
	// Expect lists accepted reply kinds, besides KindError. Empty accepts any kind.
	Expect []resp.Kind
}

// NewRequest builds a command frame from name and args.
// The reply is not checked: use Expect to restrict it.
func NewRequest(name, key string, args ...[]byte) Request {
	return Request{
		Name:  name,
		Key:   key,
		Frame: resp.Command(name, args...),
	}
}

// SetCommand builds SET key value, with PX milliseconds when expire is positive.
func SetCommand(key string, value []byte, expire time.Duration) Request {
	args := [][]byte{[]byte(key), value}
	if expire > 0 {
		args = append(args, []byte("PX"), strconv.AppendInt(nil, expireMillis(expire), 10))
	}

	req := NewRequest(CmdSet, key, args...)
	req.Expect = []resp.Kind{resp.KindSimpleString}
	return req
}

// GetCommand builds GET key.
func GetCommand(key string) Request {
	req := NewRequest(CmdGet, key, []byte(key))
	req.Expect = []resp.Kind{resp.KindBulkString, resp.KindNull}
	return req
}

// PingCommand builds PING, or PING msg when msg is not nil.
func PingCommand(msg []byte) Request {
	var req Request
	if msg == nil {
		req = NewRequest(CmdPing, "")
	} else {
		req = NewRequest(CmdPing, "", msg)
	}
	req.Expect = []resp.Kind{resp.KindSimpleString, resp.KindBulkString}
	return req
}

// PublishCommand builds PUBLISH channel message. The channel is the routing key.
func PublishCommand(channel string, message []byte) Request {
	req := NewRequest(CmdPublish, channel, []byte(channel), message)
	req.Expect = []resp.Kind{resp.KindInteger}
	return req
}

func (r Request) check(reply resp.Frame) error {
	if reply.Kind == resp.KindError {
		return &CommandError{Message: reply.Text}
	}
	if len(r.Expect) == 0 || slices.Contains(r.Expect, reply.Kind) {
		return nil
	}
	return &ProtocolError{Message: fmt.Sprintf("unexpected %s reply to %s", reply.Kind, r.Name)}
}

// expireMillis rounds up so that a positive expiry never becomes "no expiry".
func expireMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}

// bulkValue maps a GET reply. An empty value is found and non-nil.
func bulkValue(reply resp.Frame) ([]byte, bool) {
	if reply.IsNull() {
		return nil, false
	}
	if reply.Data == nil {
		return []byte{}, true
	}
	return reply.Data, true
}

func pingValue(reply resp.Frame) []byte {
	if reply.Kind == resp.KindSimpleString {
		return []byte(reply.Text)
	}
	return reply.Data
}
