package timeout

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janusproxy/janus/fault"
)

func TestConnReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tc := NewConn(client, "client", 50*time.Millisecond, 50*time.Millisecond)
	_, err := tc.Read(make([]byte, 1))

	var timeout *fault.Timeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "read from client", timeout.Op)
}

func TestConnWriteTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tc := NewConn(client, "upstream", 50*time.Millisecond, 50*time.Millisecond)
	_, err := tc.Write([]byte("stalled"))

	var timeout *fault.Timeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "write to upstream", timeout.Op)
}

func TestConnPassesData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("hello"))
	}()

	tc := NewConn(client, "client", time.Second, time.Second)
	b := make([]byte, 5)
	n, err := tc.Read(b)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b[:n]))
}

// Each read re-arms its own deadline: a stream slower than the timeout end
// to end, but faster per step, must not trip it.
func TestConnDeadlinePerStep(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(30 * time.Millisecond)
			server.Write([]byte{'x'})
		}
	}()

	tc := NewConn(client, "client", 100*time.Millisecond, time.Second)
	b := make([]byte, 1)
	for i := 0; i < 5; i++ {
		_, err := tc.Read(b)
		require.NoError(t, err)
	}
}
