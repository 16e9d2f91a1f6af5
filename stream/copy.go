// Package stream forwards HTTP message bodies between two connections with
// a fixed-size transfer buffer. Writes go straight to the destination
// socket, so TCP backpressure propagates end to end: a stalled destination
// stops the source reads.
package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/sagernet/sing/common/buf"

	"github.com/janusproxy/janus/fault"
)

const bufferSize = 16 * 1024

// CopyFixed forwards exactly length bytes from src to dst. A source that
// ends early is a broken transport, not a short body.
func CopyFixed(dst io.Writer, src io.Reader, length int64) (int64, error) {
	buffer := buf.NewSize(bufferSize)
	defer buffer.Release()
	return copyN(dst, src, length, buffer.FreeBytes())
}

func copyN(dst io.Writer, src io.Reader, length int64, b []byte) (int64, error) {
	var copied int64
	for copied < length {
		step := int64(len(b))
		if remaining := length - copied; remaining < step {
			step = remaining
		}
		n, err := src.Read(b[:step])
		if n > 0 {
			if _, werr := dst.Write(b[:n]); werr != nil {
				return copied, werr
			}
			copied += int64(n)
		}
		if copied == length {
			break
		}
		if err != nil {
			if err == io.EOF {
				return copied, &fault.Connection{Op: "copy body", Cause: io.ErrUnexpectedEOF}
			}
			return copied, err
		}
	}
	return copied, nil
}

// CopyChunked forwards a chunked body from src to dst, preserving every
// chunk boundary. Size lines go out verbatim; the zero-size chunk and the
// line after it terminate the body.
func CopyChunked(dst io.Writer, src *bufio.Reader) (int64, error) {
	buffer := buf.NewSize(bufferSize)
	defer buffer.Release()
	b := buffer.FreeBytes()

	var copied int64
	for {
		sizeLine, err := readLine(src)
		if err != nil {
			if err == io.EOF {
				return copied, &fault.Connection{Op: "read chunk size", Cause: io.EOF}
			}
			return copied, err
		}
		if _, err := io.WriteString(dst, sizeLine); err != nil {
			return copied, err
		}
		copied += int64(len(sizeLine))

		size, err := parseChunkSize(sizeLine)
		if err != nil {
			return copied, err
		}
		if size == 0 {
			// final chunk: one more line (trailer terminator) goes out as is
			trailer, err := readLine(src)
			if err != nil && err != io.EOF {
				return copied, err
			}
			if trailer != "" {
				if _, err := io.WriteString(dst, trailer); err != nil {
					return copied, err
				}
				copied += int64(len(trailer))
			}
			return copied, nil
		}

		// chunk data plus its own CRLF
		n, err := copyN(dst, src, size+2, b)
		copied += n
		if err != nil {
			return copied, err
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func parseChunkSize(line string) (int64, error) {
	s := strings.TrimSpace(line)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		// chunk extensions are stripped before parsing, forwarded untouched
		s = strings.TrimSpace(s[:i])
	}
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || n < 0 {
		return 0, &fault.Framing{What: "chunk size " + strconv.Quote(strings.TrimSpace(line))}
	}
	return n, nil
}
