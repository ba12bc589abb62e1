package push

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// STOMP commands used by the push channel.
const (
	cmdConnect    = "CONNECT"
	cmdConnected  = "CONNECTED"
	cmdSubscribe  = "SUBSCRIBE"
	cmdDisconnect = "DISCONNECT"
	cmdMessage    = "MESSAGE"
	cmdError      = "ERROR"
)

var errHeartbeat = errors.New("heartbeat frame")

// Header is one STOMP header line.
type Header struct {
	Key   string
	Value string
}

// Frame is a single STOMP 1.2 frame.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// Get returns the first value for key.
func (f Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\r", "\r", "\\n", "\n", "\\c", ":", "\\\\", "\\")
)

// Encode renders the frame including its NUL terminator. CONNECT and
// CONNECTED headers are not escaped.
func (f Frame) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	escape := f.Command != cmdConnect && f.Command != cmdConnected
	for _, h := range f.Headers {
		k, v := h.Key, h.Value
		if escape {
			k, v = headerEscaper.Replace(k), headerEscaper.Replace(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString("content-length:")
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// DecodeFrame parses one frame. A payload holding only end-of-line bytes is
// a heartbeat and yields errHeartbeat.
func DecodeFrame(data []byte) (Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return Frame{}, errHeartbeat
	}

	headerEnd := bytes.Index(data, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (headerEnd < 0 || crlf < headerEnd) {
		headerEnd, sepLen = crlf, 4
	}
	if headerEnd < 0 {
		return Frame{}, fmt.Errorf("malformed stomp frame: missing header terminator")
	}

	lines := strings.Split(strings.ReplaceAll(string(data[:headerEnd]), "\r\n", "\n"), "\n")
	f := Frame{Command: lines[0]}
	unescape := f.Command != cmdConnect && f.Command != cmdConnected

	contentLength := -1
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("malformed stomp header %q", line)
		}
		if unescape {
			k, v = headerUnescaper.Replace(k), headerUnescaper.Replace(v)
		}
		if k == "content-length" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Frame{}, fmt.Errorf("invalid content-length %q", v)
			}
			contentLength = n
		}
		f.Headers = append(f.Headers, Header{Key: k, Value: v})
	}

	body := data[headerEnd+sepLen:]
	switch {
	case contentLength >= 0:
		if len(body) < contentLength {
			return Frame{}, fmt.Errorf("stomp body shorter than content-length %d", contentLength)
		}
		body = body[:contentLength]
	default:
		if i := bytes.IndexByte(body, 0); i >= 0 {
			body = body[:i]
		}
	}
	f.Body = append([]byte(nil), body...)
	return f, nil
}
