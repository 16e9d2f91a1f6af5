// Package httphead reads and writes HTTP/1.x message heads at the byte
// level. Bodies are never consumed; they stay in the reader for the
// streaming pipeline.
package httphead

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/janusproxy/janus/fault"
)

// Field is one header line. Names are stored lower-cased; insertion order
// and duplicates are preserved so the head forwards exactly as received.
type Field struct {
	Name  string
	Value string
}

// Head is a parsed request head.
type Head struct {
	Method  string
	Path    string // raw request-target, forwarded verbatim
	Version string
	Headers []Field
}

// Get returns the value of the last header named name. Lookup is last-wins
// and is only meant for framing headers; everything else passes through
// untouched, duplicates included.
func (h *Head) Get(name string) (string, bool) {
	for i := len(h.Headers) - 1; i >= 0; i-- {
		if h.Headers[i].Name == name {
			return h.Headers[i].Value, true
		}
	}
	return "", false
}

// ContentLength reports the declared body length, if any. A value that does
// not parse as a non-negative decimal is malformed.
func (h *Head) ContentLength() (int64, bool, error) {
	v, ok := h.Get("content-length")
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false, &fault.Malformed{What: "content-length " + strconv.Quote(v)}
	}
	return n, true, nil
}

// IsChunked reports whether the request body uses chunked transfer-encoding.
func (h *Head) IsChunked() bool {
	v, ok := h.Get("transfer-encoding")
	return ok && strings.EqualFold(v, "chunked")
}

// ReadLine reads one line from r, terminator included. A partial line cut
// short by EOF is returned without error; EOF with no data surfaces as
// io.EOF.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// ParseRequest reads a request line and header block from r. The request
// line must carry exactly three space-separated tokens; header lines must
// contain a colon. An immediate EOF means the client closed without sending
// a request.
func ParseRequest(r *bufio.Reader) (*Head, error) {
	line, err := ReadLine(r)
	if err != nil {
		if err == io.EOF {
			return nil, &fault.Connection{Op: "read request line", Cause: io.EOF}
		}
		return nil, err
	}

	parts := strings.Split(trimEOL(line), " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, &fault.Malformed{What: "request line " + strconv.Quote(trimEOL(line))}
	}
	head := &Head{Method: parts[0], Path: parts[1], Version: parts[2]}

	for {
		line, err := ReadLine(r)
		if err != nil {
			if err == io.EOF {
				break // EOF terminates the header block
			}
			return nil, err
		}
		line = trimEOL(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &fault.Malformed{What: "header line " + strconv.Quote(line)}
		}
		head.Headers = append(head.Headers, Field{
			Name:  strings.ToLower(strings.TrimSpace(name)),
			Value: strings.TrimSpace(value),
		})
	}
	return head, nil
}

// WriteTo serializes the head: request line, headers in insertion order, and
// the terminating empty line. Header names go out as stored.
func (h *Head) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString(h.Method)
	b.WriteByte(' ')
	b.WriteString(h.Path)
	b.WriteByte(' ')
	b.WriteString(h.Version)
	b.WriteString("\r\n")
	for _, f := range h.Headers {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
