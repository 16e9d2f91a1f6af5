package httphead

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/janusproxy/janus/fault"
)

// ResponseFraming is the body delimiting chosen from the response head.
// Content-Length wins over chunked; with neither, no body is streamed.
type ResponseFraming struct {
	ContentLength int64
	HasLength     bool
	Chunked       bool
}

// ReadResponseHead reads the status line and header block from src,
// forwarding every line to dst byte for byte. While forwarding it sniffs
// Content-Length and Transfer-Encoding to pick the response framing, and
// parses the status code from the status line (0 if unparseable).
func ReadResponseHead(src *bufio.Reader, dst io.Writer) (int, ResponseFraming, error) {
	var framing ResponseFraming

	statusLine, err := ReadLine(src)
	if err != nil {
		if err == io.EOF {
			return 0, framing, &fault.Connection{Op: "read response status", Cause: io.EOF}
		}
		return 0, framing, err
	}
	if _, err := io.WriteString(dst, statusLine); err != nil {
		return 0, framing, err
	}

	status := 0
	if parts := strings.Fields(statusLine); len(parts) >= 2 {
		if code, err := strconv.Atoi(parts[1]); err == nil {
			status = code
		}
	}

	for {
		line, err := ReadLine(src)
		if err != nil {
			if err == io.EOF {
				break // EOF terminates the header block
			}
			return status, framing, err
		}
		if _, err := io.WriteString(dst, line); err != nil {
			return status, framing, err
		}
		trimmed := trimEOL(line)
		if trimmed == "" {
			break
		}

		lower := strings.ToLower(trimmed)
		if v, ok := strings.CutPrefix(lower, "content-length:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				framing.ContentLength = n
				framing.HasLength = true
			}
		} else if v, ok := strings.CutPrefix(lower, "transfer-encoding:"); ok {
			if strings.Contains(v, "chunked") {
				framing.Chunked = true
			}
		}
	}
	return status, framing, nil
}
