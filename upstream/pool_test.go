package upstream

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janusproxy/janus/fault"
)

func listenerSpec(t *testing.T) (Spec, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return Spec{Host: "127.0.0.1", Port: uint16(addr.Port)}, ln
}

// closedSpec points at a port nothing listens on.
func closedSpec(t *testing.T) Spec {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return Spec{Host: "127.0.0.1", Port: uint16(addr.Port)}
}

func TestNewPoolRejectsEmpty(t *testing.T) {
	_, err := NewPool(nil, 1)
	require.Error(t, err)
}

func TestNewPoolRejectsZeroCapacity(t *testing.T) {
	_, err := NewPool([]Spec{{Host: "127.0.0.1", Port: 9001}}, 0)
	require.Error(t, err)
}

func TestNextRoundRobin(t *testing.T) {
	specs := []Spec{
		{Host: "127.0.0.1", Port: 9001},
		{Host: "127.0.0.1", Port: 9002},
		{Host: "127.0.0.1", Port: 9003},
	}
	pool, err := NewPool(specs, 1)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, specs[i%3].Address(), pool.Next().Address())
	}
}

// After N selections each upstream's count is N/L rounded either way, even
// under concurrency.
func TestNextFairnessConcurrent(t *testing.T) {
	pool, err := NewPool([]Spec{
		{Host: "127.0.0.1", Port: 9001},
		{Host: "127.0.0.1", Port: 9002},
	}, 1)
	require.NoError(t, err)

	const n = 100
	var mu sync.Mutex
	counts := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := pool.Next().Address()
			mu.Lock()
			counts[addr]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, n/2, counts["127.0.0.1:9001"])
	assert.Equal(t, n/2, counts["127.0.0.1:9002"])
}

func TestAcquireAndRelease(t *testing.T) {
	spec, _ := listenerSpec(t)
	pool, err := NewPool([]Spec{spec}, 2)
	require.NoError(t, err)
	u := pool.Upstreams()[0]

	ctx := context.Background()
	c1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	c2, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)

	// capacity exhausted
	require.False(t, u.sem.TryAcquire(1))

	require.NoError(t, c1.Close())
	require.NoError(t, c2.Close())

	// all slots back
	require.True(t, u.sem.TryAcquire(2))
	u.sem.Release(2)
}

func TestAcquireBlocksUntilSlotFrees(t *testing.T) {
	spec, _ := listenerSpec(t)
	pool, err := NewPool([]Spec{spec}, 1)
	require.NoError(t, err)

	first, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	acquired := make(chan *Conn)
	go func() {
		c, err := pool.Acquire(context.Background(), time.Second)
		if err == nil {
			acquired <- c
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the slot is held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Close())

	select {
	case c := <-acquired:
		require.NoError(t, c.Close())
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestAcquireConnectFailureReleasesSlot(t *testing.T) {
	spec := closedSpec(t)
	pool, err := NewPool([]Spec{spec}, 1)
	require.NoError(t, err)
	u := pool.Upstreams()[0]

	_, err = pool.Acquire(context.Background(), time.Second)
	var conn *fault.Connection
	require.ErrorAs(t, err, &conn)

	// the failed connect gave its slot back
	require.True(t, u.sem.TryAcquire(1))
	u.sem.Release(1)
}

func TestConnCloseIdempotent(t *testing.T) {
	spec, _ := listenerSpec(t)
	pool, err := NewPool([]Spec{spec}, 1)
	require.NoError(t, err)
	u := pool.Upstreams()[0]

	c, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// released exactly once: the single slot is free, no over-release
	require.True(t, u.sem.TryAcquire(1))
	require.False(t, u.sem.TryAcquire(1))
	u.sem.Release(1)
}

func TestSpecAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9001", Spec{Host: "127.0.0.1", Port: 9001}.Address())
	assert.Equal(t, "[::1]:80", Spec{Host: "::1", Port: 80}.Address())
}
