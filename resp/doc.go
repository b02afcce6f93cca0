// Package resp implements the Redis serialization protocol (RESP2) framing.
//
// This package is the wire layer of the client: it converts frames to bytes
// and incrementally parses bytes arriving off a stream back into frames. It
// does no I/O of its own beyond the thin Decoder helper, and imposes no
// connection management.
//
// # Frames
//
// Frame is a tagged variant. Kind selects which field is meaningful:
//
//	+OK\r\n                     SimpleString("OK")
//	-ERR wrong type\r\n         Error("ERR wrong type")
//	:42\r\n                     Integer(42)
//	$5\r\nhello\r\n             BulkString([]byte("hello"))
//	$-1\r\n                     Null()
//	*2\r\n$3\r\nGET\r\n$1\r\nk\r\n   Array(BulkStringFromString("GET"), BulkStringFromString("k"))
//	*-1\r\n                     NullArray()
//
// Requests are arrays of bulk strings, built with Command:
//
//	req := resp.Command("SET", []byte("hello"), []byte("world"))
//	buf := resp.Encode(req)
//
// # Incremental Parsing
//
// TCP gives no framing, so parsing is pull-based. TryParse is called with
// whatever bytes are available and reports one of three outcomes:
//
//	f, n, err := resp.TryParse(buf)
//	switch {
//	case err != nil:
//	    // *ParseError: malformed input, close the connection
//	case n == 0:
//	    // incomplete: read more bytes and call again
//	default:
//	    // f was parsed from buf[:n]
//	    buf = buf[n:]
//	}
//
// The Parser limits (line length, bulk length, array length, nesting) turn a
// peer that never finishes a frame into a ParseError instead of unbounded
// buffering.
//
// Decoder wraps this loop around an io.Reader.
//
// # Thread Safety
//
// Encode, AppendFrame, TryParse and Parser (read-only after setup) are safe
// for concurrent use. Decoder is not.
package resp
