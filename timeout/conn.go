package timeout

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/janusproxy/janus/fault"
)

// Conn bounds every read and write on the wrapped connection with a fresh
// deadline. The bounds do not compose: each I/O step re-arms its own
// deadline, so a slow but steady stream never trips them.
type Conn struct {
	net.Conn

	role         string // names the peer in timeout errors
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConn(conn net.Conn, role string, read, write time.Duration) *Conn {
	return &Conn{Conn: conn, role: role, readTimeout: read, writeTimeout: write}
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = &fault.Timeout{Op: "read from " + c.role, Duration: c.readTimeout}
	}
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Write(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = &fault.Timeout{Op: "write to " + c.role, Duration: c.writeTimeout}
	}
	return n, err
}
