// Package upstream selects backend servers round-robin and bounds the
// number of in-flight connections to each of them.
package upstream

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	E "github.com/sagernet/sing/common/exceptions"
	"golang.org/x/sync/semaphore"

	"github.com/janusproxy/janus/fault"
	"github.com/janusproxy/janus/timeout"
)

// Spec identifies one configured upstream. Specs are immutable.
type Spec struct {
	Host string
	Port uint16
}

func (s Spec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// Upstream couples a Spec with its admission slots. The number of in-flight
// leased connections never exceeds the configured capacity.
type Upstream struct {
	Spec

	sem *semaphore.Weighted
}

// Pool is an ordered set of upstreams with a rotation cursor.
type Pool struct {
	upstreams []*Upstream
	cursor    atomic.Uint64
	dialer    net.Dialer
}

func NewPool(specs []Spec, maxConnsPerUpstream int64) (*Pool, error) {
	if len(specs) == 0 {
		return nil, E.New("at least one upstream is required")
	}
	if maxConnsPerUpstream <= 0 {
		return nil, E.New("max connections per upstream must be positive")
	}
	p := &Pool{upstreams: make([]*Upstream, 0, len(specs))}
	for _, spec := range specs {
		p.upstreams = append(p.upstreams, &Upstream{
			Spec: spec,
			sem:  semaphore.NewWeighted(maxConnsPerUpstream),
		})
	}
	return p, nil
}

// Next returns the upstream at the cursor and advances it. The fetch-add
// serializes concurrent callers into a strict rotation.
func (p *Pool) Next() *Upstream {
	i := p.cursor.Add(1) - 1
	return p.upstreams[i%uint64(len(p.upstreams))]
}

func (p *Pool) Len() int {
	return len(p.upstreams)
}

// Upstreams returns the pool members in configuration order.
func (p *Pool) Upstreams() []*Upstream {
	out := make([]*Upstream, len(p.upstreams))
	copy(out, p.upstreams)
	return out
}

// Conn is a connection leased from the pool, valid until Close. Close shuts
// the socket exactly once and returns the admission slot; calling it again
// is a no-op.
type Conn struct {
	net.Conn

	Upstream *Upstream
	once     sync.Once
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		_ = c.Conn.Close()
		c.Upstream.sem.Release(1)
	})
	return nil
}

// Acquire selects the next upstream, waits for one of its admission slots
// (the wait is not bounded by connectTimeout), then opens a fresh TCP
// connection under connectTimeout. Every connect failure — refused,
// unreachable, DNS, or the dial running out of time — releases the slot and
// surfaces as a connection error.
func (p *Pool) Acquire(ctx context.Context, connectTimeout time.Duration) (*Conn, error) {
	u := p.Next()
	if err := u.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	conn, err := timeout.Do(ctx, connectTimeout, "connect to "+u.Address(), func(ctx context.Context) (net.Conn, error) {
		return p.dialer.DialContext(ctx, "tcp", u.Address())
	})
	if err != nil {
		u.sem.Release(1)
		return nil, &fault.Connection{Op: "connect to " + u.Address(), Cause: err}
	}
	return &Conn{Conn: conn, Upstream: u}, nil
}
