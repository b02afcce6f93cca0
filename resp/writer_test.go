package resp

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		frame    Frame
		expected string
	}{
		{"simple string", SimpleString("OK"), "+OK\r\n"},
		{"empty simple string", SimpleString(""), "+\r\n"},
		{"error", Error("ERR wrong type"), "-ERR wrong type\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"negative integer", Integer(-7), ":-7\r\n"},
		{"zero integer", Integer(0), ":0\r\n"},
		{"bulk string", BulkStringFromString("hello"), "$5\r\nhello\r\n"},
		{"empty bulk string", BulkString(nil), "$0\r\n\r\n"},
		{"binary bulk string", BulkString([]byte("a\r\nb")), "$4\r\na\r\nb\r\n"},
		{"null", Null(), "$-1\r\n"},
		{"empty array", Array(), "*0\r\n"},
		{"null array", NullArray(), "*-1\r\n"},
		{
			name:     "nested array",
			frame:    Array(Integer(1), Array(SimpleString("a"), Null())),
			expected: "*2\r\n:1\r\n*2\r\n+a\r\n$-1\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Encode(tt.frame)); got != tt.expected {
				t.Errorf("Encode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name     string
		frame    Frame
		expected string
	}{
		{
			name:     "get",
			frame:    Command("GET", []byte("hello")),
			expected: "*2\r\n$3\r\nGET\r\n$5\r\nhello\r\n",
		},
		{
			name:     "set",
			frame:    Command("SET", []byte("hello"), []byte("world")),
			expected: "*3\r\n$3\r\nSET\r\n$5\r\nhello\r\n$5\r\nworld\r\n",
		},
		{
			name:     "set with expiry",
			frame:    Command("SET", []byte("k"), []byte("v"), []byte("PX"), []byte("1500")),
			expected: "*5\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nPX\r\n$4\r\n1500\r\n",
		},
		{
			name:     "no arguments",
			frame:    Command("PING"),
			expected: "*1\r\n$4\r\nPING\r\n",
		},
		{
			name:     "empty argument",
			frame:    Command("SET", []byte("k"), nil),
			expected: "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, string(Encode(tt.frame)))
		})
	}
}

func TestAppendFrameReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 64)
	dst = append(dst, "prefix"...)

	out := AppendFrame(dst, SimpleString("OK"))

	require.Equal(t, "prefix+OK\r\n", string(out))
	require.Equal(t, &dst[:1][0], &out[:1][0], "should append in place when capacity allows")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"simple string", SimpleString("OK"), false},
		{"simple string with CR", SimpleString("O\rK"), true},
		{"simple string with LF", SimpleString("O\nK"), true},
		{"error with CRLF", Error("ERR\r\nboom"), true},
		{"bulk string with CRLF", BulkString([]byte("a\r\nb")), false},
		{"array with bad element", Array(Integer(1), SimpleString("bad\n")), true},
		{"unknown kind", Frame{Kind: 'x'}, true},
		{"zero frame", Frame{}, true},
		{"null", Null(), false},
		{"null array", NullArray(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.frame)
			if tt.wantErr {
				var invalid *InvalidFrameError
				require.ErrorAs(t, err, &invalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateDeepNesting(t *testing.T) {
	f := Integer(1)
	for range DefaultMaxDepth + 2 {
		f = Array(f)
	}
	require.Error(t, Validate(f))
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Command("GET", []byte("key")))
	require.NoError(t, err)
	require.Equal(t, "*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n", buf.String())
}

func TestWriteFrameInvalid(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, SimpleString("two\r\nlines"))

	var invalid *InvalidFrameError
	require.ErrorAs(t, err, &invalid)
	require.Zero(t, buf.Len(), "nothing should be written for an invalid frame")
}

func TestWriteFrameBuffered(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)

	require.NoError(t, WriteFrame(bw, SimpleString("OK")))
	require.Zero(t, out.Len(), "bufio.Writer is flushed by the caller")

	require.NoError(t, bw.Flush())
	require.Equal(t, "+OK\r\n", out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFrameWriterError(t *testing.T) {
	err := WriteFrame(failingWriter{}, SimpleString("OK"))
	require.EqualError(t, err, "broken pipe")
}

func TestWriteFrameLargeValue(t *testing.T) {
	value := strings.Repeat("x", maxPooledBufferSize*2)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, BulkStringFromString(value)))
	require.Equal(t, len(value)+len("$131072\r\n\r\n"), buf.Len())
}
