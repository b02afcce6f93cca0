package resp

import (
	"io"
	"strconv"
	"sync"
)

// Buffer pool for encoding frames
var bufferPool = sync.Pool{
	New: func() any {
		// Typical command is well under 256 bytes
		b := make([]byte, 0, 256)
		return &b
	},
}

// Buffers grown past this size by a large value are not kept in the pool.
const maxPooledBufferSize = 64 * 1024

// Encode returns the wire encoding of f.
func Encode(f Frame) []byte {
	return AppendFrame(nil, f)
}

// AppendFrame appends the wire encoding of f to dst and returns the extended buffer.
// Encoding is deterministic and does not validate; see Validate.
func AppendFrame(dst []byte, f Frame) []byte {
	switch f.Kind {
	case KindSimpleString, KindError:
		dst = append(dst, byte(f.Kind))
		dst = append(dst, f.Text...)
		dst = append(dst, CRLF...)

	case KindInteger:
		dst = append(dst, byte(KindInteger))
		dst = strconv.AppendInt(dst, f.Int, 10)
		dst = append(dst, CRLF...)

	case KindBulkString:
		dst = append(dst, byte(KindBulkString))
		dst = strconv.AppendInt(dst, int64(len(f.Data)), 10)
		dst = append(dst, CRLF...)
		dst = append(dst, f.Data...)
		dst = append(dst, CRLF...)

	case KindNull:
		dst = append(dst, "$-1\r\n"...)

	case KindArray:
		if f.Null {
			return append(dst, "*-1\r\n"...)
		}
		dst = append(dst, byte(KindArray))
		dst = strconv.AppendInt(dst, int64(len(f.Array)), 10)
		dst = append(dst, CRLF...)
		for _, elem := range f.Array {
			dst = AppendFrame(dst, elem)
		}
	}
	return dst
}

// WriteFrame validates f, encodes it and writes it to w in a single Write call.
//
// When w is a *bufio.Writer the caller is responsible for flushing.
// Returns an *InvalidFrameError (nothing written) or the error from w.
func WriteFrame(w io.Writer, f Frame) error {
	if err := Validate(f); err != nil {
		return err
	}

	bp := bufferPool.Get().(*[]byte)
	buf := AppendFrame((*bp)[:0], f)

	_, err := w.Write(buf)

	if cap(buf) <= maxPooledBufferSize {
		*bp = buf[:0]
		bufferPool.Put(bp)
	}
	return err
}
