package resp

import "strings"

// ParseError reports input that can never become a valid frame.
// The byte stream is out of sync after a ParseError: the connection it was
// read from must be closed.
//
// Common causes:
//   - Unknown type byte
//   - Invalid length or integer field
//   - Bulk payload not followed by CRLF
//   - Line longer than the parser limit
//   - Declared length above the parser limit
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "resp: parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "resp: parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the stream position is lost
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// InvalidFrameError is returned when a frame cannot be encoded faithfully,
// e.g. a simple string containing a line break.
// Nothing was written: the connection is still valid.
type InvalidFrameError struct {
	Message string
}

func (e *InvalidFrameError) Error() string {
	return "resp: invalid frame: " + e.Message
}

// ShouldCloseConnection returns false - the frame was rejected before writing
func (e *InvalidFrameError) ShouldCloseConnection() bool {
	return false
}

// Validate checks that f can be written without breaking framing.
func Validate(f Frame) error {
	return validate(f, 0)
}

func validate(f Frame, depth int) error {
	if depth > DefaultMaxDepth {
		return &InvalidFrameError{Message: "array nesting too deep"}
	}

	switch f.Kind {
	case KindSimpleString, KindError:
		if strings.ContainsAny(f.Text, "\r\n") {
			return &InvalidFrameError{Message: f.Kind.String() + " contains CR or LF"}
		}
	case KindInteger, KindBulkString, KindNull:
	case KindArray:
		for _, elem := range f.Array {
			if err := validate(elem, depth+1); err != nil {
				return err
			}
		}
	default:
		return &InvalidFrameError{Message: "unknown kind " + f.Kind.String()}
	}
	return nil
}
