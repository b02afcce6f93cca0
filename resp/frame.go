package resp

import (
	"bytes"
	"strconv"
	"strings"
)

// Frame is one self-delimited unit of the protocol.
// This is a plain container: which fields are meaningful depends on Kind.
//
//   - KindSimpleString, KindError: Text
//   - KindInteger: Int
//   - KindBulkString: Data
//   - KindArray: Array, or Null for the null array
//   - KindNull: no payload
type Frame struct {
	Kind Kind

	// Text is the line content of simple strings and errors (no CR or LF).
	Text string

	// Int is the value of integer frames.
	Int int64

	// Data is the payload of bulk strings.
	Data []byte

	// Array holds the elements of array frames. Elements are frames themselves.
	Array []Frame

	// Null marks the null array (*-1\r\n).
	Null bool
}

func SimpleString(s string) Frame {
	return Frame{Kind: KindSimpleString, Text: s}
}

func Error(s string) Frame {
	return Frame{Kind: KindError, Text: s}
}

func Integer(n int64) Frame {
	return Frame{Kind: KindInteger, Int: n}
}

// BulkString returns a bulk string frame. A nil slice is an empty bulk string,
// use Null for the absent value.
func BulkString(b []byte) Frame {
	if b == nil {
		b = []byte{}
	}
	return Frame{Kind: KindBulkString, Data: b}
}

func BulkStringFromString(s string) Frame {
	return Frame{Kind: KindBulkString, Data: []byte(s)}
}

// Null returns the null bulk string.
func Null() Frame {
	return Frame{Kind: KindNull}
}

func Array(elems ...Frame) Frame {
	if elems == nil {
		elems = []Frame{}
	}
	return Frame{Kind: KindArray, Array: elems}
}

func NullArray() Frame {
	return Frame{Kind: KindArray, Null: true}
}

// Command builds the canonical request encoding: an array of bulk strings made
// of the command name followed by its arguments.
func Command(name string, args ...[]byte) Frame {
	elems := make([]Frame, 0, len(args)+1)
	elems = append(elems, BulkStringFromString(name))
	for _, arg := range args {
		elems = append(elems, BulkString(arg))
	}
	return Frame{Kind: KindArray, Array: elems}
}

// IsNull reports whether f is the null bulk string or the null array.
func (f Frame) IsNull() bool {
	return f.Kind == KindNull || (f.Kind == KindArray && f.Null)
}

// Equal reports whether two frames hold the same value.
// An empty and a nil bulk payload compare equal, as they encode the same way.
func (f Frame) Equal(o Frame) bool {
	if f.Kind != o.Kind {
		return false
	}

	switch f.Kind {
	case KindSimpleString, KindError:
		return f.Text == o.Text
	case KindInteger:
		return f.Int == o.Int
	case KindBulkString:
		return bytes.Equal(f.Data, o.Data)
	case KindNull:
		return true
	case KindArray:
		if f.Null || o.Null {
			return f.Null == o.Null
		}
		if len(f.Array) != len(o.Array) {
			return false
		}
		for i := range f.Array {
			if !f.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the frame for logs and test failures, not for the wire.
func (f Frame) String() string {
	var sb strings.Builder
	f.format(&sb)
	return sb.String()
}

func (f Frame) format(sb *strings.Builder) {
	switch f.Kind {
	case KindSimpleString:
		sb.WriteString(f.Text)
	case KindError:
		sb.WriteString("(error) ")
		sb.WriteString(f.Text)
	case KindInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(f.Int, 10))
	case KindBulkString:
		sb.WriteString(strconv.Quote(string(f.Data)))
	case KindNull:
		sb.WriteString("(nil)")
	case KindArray:
		if f.Null {
			sb.WriteString("(nil array)")
			return
		}
		sb.WriteByte('[')
		for i, elem := range f.Array {
			if i > 0 {
				sb.WriteString(", ")
			}
			elem.format(sb)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString("(invalid frame)")
	}
}
