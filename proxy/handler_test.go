package proxy

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitResponse splits at the blank line; the head keeps the CRLF that ends
// its last header line.
func splitResponse(t *testing.T, raw string) (head string, body string) {
	t.Helper()
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok, "no head/body separator in %q", raw)
	return head + "\r\n", body
}

func TestWriteError(t *testing.T) {
	var b bytes.Buffer
	writeError(&b, 502)

	head, body := splitResponse(t, b.String())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 502 Bad Gateway\r\n"))
	assert.Contains(t, head, "Content-Type: text/html; charset=utf-8\r\n")
	assert.Contains(t, head, "Connection: close\r\n")
	assert.Contains(t, head, "Content-Length: "+strconv.Itoa(len(body))+"\r\n")
	assert.Equal(t, "<html><body><h1>502 Bad Gateway</h1></body></html>", body)
}

func TestReject(t *testing.T) {
	var b bytes.Buffer
	reject(&b, "deadbeef")

	head, body := splitResponse(t, b.String())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 503 Service Unavailable\r\n"))
	assert.Contains(t, head, "Content-Length: 0\r\n")
	assert.Contains(t, head, "Connection: close\r\n")
	assert.Contains(t, head, "X-Trace-Id: deadbeef\r\n")
	assert.Empty(t, body)
}
