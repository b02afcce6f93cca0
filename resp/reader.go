package resp

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

// Parser parses frames out of a byte buffer.
//
// The zero value is ready to use and applies the Default* limits. Limits bound
// how many bytes a single frame can make the caller buffer: exceeding one is a
// fatal *ParseError, not a request for more input.
type Parser struct {
	// MaxLineLength bounds a header line: type byte plus text, CRLF excluded.
	MaxLineLength int

	// MaxBulkLength bounds the declared length of a bulk string.
	MaxBulkLength int

	// MaxArrayLength bounds the declared element count of an array.
	MaxArrayLength int

	// MaxDepth bounds array nesting.
	MaxDepth int
}

// TryParse parses one frame from the front of buf using the default limits.
// See Parser.TryParse.
func TryParse(buf []byte) (Frame, int, error) {
	var p Parser
	return p.TryParse(buf)
}

// TryParse attempts to parse exactly one complete frame from the front of buf.
//
// It never blocks and never retains buf: the returned frame owns its memory.
//
//   - (frame, n, nil) with n > 0: a frame was parsed from buf[:n]
//   - (Frame{}, 0, nil): buf holds an incomplete frame, call again with more bytes
//   - (Frame{}, 0, *ParseError): buf can never become a valid frame
func (p *Parser) TryParse(buf []byte) (Frame, int, error) {
	f, n, err := p.parse(buf, 0)
	if err != nil || n == 0 {
		return Frame{}, 0, err
	}
	return f, n, nil
}

func (p *Parser) parse(buf []byte, depth int) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, nil
	}

	kind := Kind(buf[0])
	switch kind {
	case KindSimpleString, KindError, KindInteger, KindBulkString, KindArray:
	default:
		return Frame{}, 0, &ParseError{Message: "unknown type byte " + strconv.QuoteRune(rune(buf[0]))}
	}

	line, n, err := p.readLine(buf)
	if err != nil || n == 0 {
		return Frame{}, 0, err
	}

	switch kind {
	case KindSimpleString, KindError:
		return Frame{Kind: kind, Text: string(line)}, n, nil

	case KindInteger:
		v, err := parseInteger(line)
		if err != nil {
			return Frame{}, 0, err
		}
		return Integer(v), n, nil

	case KindBulkString:
		size, err := parseLength(line, "bulk string")
		if err != nil {
			return Frame{}, 0, err
		}
		if size == nullLength {
			return Null(), n, nil
		}
		if size > p.maxBulkLength() {
			return Frame{}, 0, &ParseError{Message: "bulk string length " + strconv.Itoa(size) + " exceeds limit"}
		}

		end := n + size + len(CRLF)
		if len(buf) < end {
			return Frame{}, 0, nil
		}
		if buf[n+size] != '\r' || buf[n+size+1] != '\n' {
			return Frame{}, 0, &ParseError{Message: "bulk string not terminated by CRLF"}
		}

		data := make([]byte, size)
		copy(data, buf[n:n+size])
		return Frame{Kind: KindBulkString, Data: data}, end, nil

	default: // KindArray
		count, err := parseLength(line, "array")
		if err != nil {
			return Frame{}, 0, err
		}
		if count == nullLength {
			return NullArray(), n, nil
		}
		if count > p.maxArrayLength() {
			return Frame{}, 0, &ParseError{Message: "array length " + strconv.Itoa(count) + " exceeds limit"}
		}
		if depth >= p.maxDepth() {
			return Frame{}, 0, &ParseError{Message: "array nesting exceeds limit"}
		}

		// The count is untrusted until the elements arrive, don't preallocate on it.
		elems := make([]Frame, 0, min(count, 16))
		pos := n
		for range count {
			elem, m, err := p.parse(buf[pos:], depth+1)
			if err != nil {
				return Frame{}, 0, err
			}
			if m == 0 {
				return Frame{}, 0, nil
			}
			elems = append(elems, elem)
			pos += m
		}
		return Frame{Kind: KindArray, Array: elems}, pos, nil
	}
}

// readLine returns the header line content (after the type byte, before CRLF)
// and the number of bytes it occupies including CRLF. n == 0 means incomplete.
func (p *Parser) readLine(buf []byte) ([]byte, int, error) {
	limit := p.maxLineLength()

	window := buf
	if len(window) > limit+1 {
		window = window[:limit+1]
	}

	cr := bytes.IndexByte(window, '\r')
	end := cr
	if end < 0 {
		end = len(window)
	}
	if bytes.IndexByte(window[:end], '\n') >= 0 {
		return nil, 0, &ParseError{Message: "line feed without carriage return"}
	}

	if cr < 0 {
		if len(buf) > limit {
			return nil, 0, &ParseError{Message: "line exceeds " + strconv.Itoa(limit) + " bytes"}
		}
		return nil, 0, nil
	}

	if cr+1 >= len(buf) {
		return nil, 0, nil
	}
	if buf[cr+1] != '\n' {
		return nil, 0, &ParseError{Message: "carriage return not followed by line feed"}
	}

	return buf[1:cr], cr + len(CRLF), nil
}

// parseLength parses a non-negative decimal length, or the -1 null sentinel.
func parseLength(line []byte, what string) (int, error) {
	if len(line) == 2 && line[0] == '-' && line[1] == '1' {
		return nullLength, nil
	}

	// 18 digits always fit an int64, anything longer is over every limit anyway
	if len(line) == 0 || len(line) > 18 || !isDigits(line) {
		return 0, &ParseError{Message: "invalid " + what + " length " + strconv.Quote(string(line))}
	}

	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &ParseError{Message: "invalid " + what + " length", Err: err}
	}
	if n > int64(maxInt) {
		return 0, &ParseError{Message: what + " length overflows int"}
	}
	return int(n), nil
}

func parseInteger(line []byte) (int64, error) {
	digits := line
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 || !isDigits(digits) {
		return 0, &ParseError{Message: "invalid integer " + strconv.Quote(string(line))}
	}

	v, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &ParseError{Message: "invalid integer", Err: err}
	}
	return v, nil
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const maxInt = int(^uint(0) >> 1)

func (p *Parser) maxLineLength() int {
	if p.MaxLineLength > 0 {
		return p.MaxLineLength
	}
	return DefaultMaxLineLength
}

func (p *Parser) maxBulkLength() int {
	if p.MaxBulkLength > 0 {
		return p.MaxBulkLength
	}
	return DefaultMaxBulkLength
}

func (p *Parser) maxArrayLength() int {
	if p.MaxArrayLength > 0 {
		return p.MaxArrayLength
	}
	return DefaultMaxArrayLength
}

func (p *Parser) maxDepth() int {
	if p.MaxDepth > 0 {
		return p.MaxDepth
	}
	return DefaultMaxDepth
}

// Decoder reads frames from a byte stream.
//
// It accumulates reads in an internal buffer and calls Parser.TryParse after
// each one, so a frame may span any number of reads and a read may carry
// several frames. Bytes of a returned frame are discarded from the buffer.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	rd     io.Reader
	parser Parser
	buf    []byte
	r, w   int // buf[r:w] holds unconsumed bytes
	size   int // initial buffer size
}

// Number of consecutive empty reads tolerated before giving up.
const maxConsecutiveEmptyReads = 100

// Read buffers grown above this size go back to the initial size once drained.
const maxRetainedReadBuffer = 64 * 1024

// NewDecoder returns a Decoder reading from rd with an initial buffer of size bytes.
func NewDecoder(rd io.Reader, parser Parser, size int) *Decoder {
	if size <= 0 {
		size = 4096
	}
	return &Decoder{
		rd:     rd,
		parser: parser,
		buf:    make([]byte, size),
		size:   size,
	}
}

// ReadFrame returns the next frame from the stream.
//
// Errors:
//   - *ParseError: malformed input, the stream is unusable
//   - io.EOF: the stream ended cleanly between frames
//   - io.ErrUnexpectedEOF: the stream ended inside a frame
//   - any error returned by the underlying reader
func (d *Decoder) ReadFrame() (Frame, error) {
	for {
		if d.r < d.w {
			f, n, err := d.parser.TryParse(d.buf[d.r:d.w])
			if err != nil {
				return Frame{}, err
			}
			if n > 0 {
				d.consume(n)
				return f, nil
			}
		}

		if err := d.fill(); err != nil {
			if errors.Is(err, io.EOF) && d.r < d.w {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}
}

// Buffered returns the number of bytes read from the stream but not yet consumed.
func (d *Decoder) Buffered() int {
	return d.w - d.r
}

func (d *Decoder) consume(n int) {
	d.r += n
	if d.r == d.w {
		d.r, d.w = 0, 0
		if len(d.buf) > maxRetainedReadBuffer && len(d.buf) > d.size {
			d.buf = make([]byte, d.size)
		}
	}
}

// fill reads at least one byte into the buffer.
func (d *Decoder) fill() error {
	// Slide unconsumed bytes to the front
	if d.r > 0 {
		copy(d.buf, d.buf[d.r:d.w])
		d.w -= d.r
		d.r = 0
	}

	if d.w == len(d.buf) {
		grown := make([]byte, 2*len(d.buf))
		copy(grown, d.buf[:d.w])
		d.buf = grown
	}

	for range maxConsecutiveEmptyReads {
		n, err := d.rd.Read(d.buf[d.w:])
		d.w += n
		if n > 0 {
			// A read error with data is reported by the next call
			return nil
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}
