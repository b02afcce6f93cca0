package resp

// Kind identifies the variant of a Frame.
//
// For the wire variants the value is the type byte that prefixes the frame.
type Kind byte

const (
	// KindSimpleString is a single line of text: +<text>\r\n
	KindSimpleString Kind = '+'

	// KindError is a server error line: -<text>\r\n
	KindError Kind = '-'

	// KindInteger is a signed 64-bit decimal: :<decimal>\r\n
	KindInteger Kind = ':'

	// KindBulkString is a length-prefixed byte string: $<len>\r\n<bytes>\r\n
	KindBulkString Kind = '$'

	// KindArray is a counted sequence of frames: *<count>\r\n<frame>*
	// The null array (*-1\r\n) is an Array frame with Null set.
	KindArray Kind = '*'

	// KindNull is the null bulk string. It has no type byte of its own and
	// is encoded as $-1\r\n.
	KindNull Kind = '_'
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple-string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulkString:
		return "bulk-string"
	case KindArray:
		return "array"
	case KindNull:
		return "null"
	default:
		return "unknown(" + string(rune(k)) + ")"
	}
}

// Protocol delimiters
const (
	// CRLF terminates every line of the protocol
	CRLF = "\r\n"
)

// Parser limits. They bound how much a single frame may make the reader buffer.
const (
	// DefaultMaxLineLength bounds a header line (type byte, text or length, CRLF).
	// Matches the server's inline request limit.
	DefaultMaxLineLength = 64 * 1024

	// DefaultMaxBulkLength is the largest bulk string accepted (512 MiB, the server's proto-max-bulk-len).
	DefaultMaxBulkLength = 512 * 1024 * 1024

	// DefaultMaxArrayLength bounds the declared element count of an array.
	DefaultMaxArrayLength = 1 << 20

	// DefaultMaxDepth bounds array nesting.
	DefaultMaxDepth = 64
)

// nullLength is the only negative length allowed on the wire.
const nullLength = -1
