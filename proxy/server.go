// Package proxy implements the streaming HTTP/1.x reverse proxy: a TCP
// acceptor with a global admission limit, and a per-connection handler that
// forwards request and response bodies with constant memory.
package proxy

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/janusproxy/janus/config"
	"github.com/janusproxy/janus/metrics"
	"github.com/janusproxy/janus/upstream"
)

type Server struct {
	cfg     *config.Config
	pool    *upstream.Pool
	logger  *zap.Logger
	metrics *metrics.Metrics

	clientSem *semaphore.Weighted
	active    atomic.Int64
	listener  net.Listener
	handlers  sync.WaitGroup
	closed    atomic.Bool
}

func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Server, error) {
	specs := make([]upstream.Spec, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		specs = append(specs, upstream.Spec{Host: u.Host, Port: u.Port})
	}
	pool, err := upstream.NewPool(specs, int64(cfg.Limits.MaxConnsPerUpstream))
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:       cfg,
		pool:      pool,
		logger:    logger,
		metrics:   m,
		clientSem: semaphore.NewWeighted(int64(cfg.Limits.MaxClientConns)),
	}, nil
}

// Start binds the listener.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress())
	if err != nil {
		return E.Cause(err, "listen on ", s.cfg.ListenAddress())
	}
	s.listener = ln

	addrs := make([]string, 0, s.pool.Len())
	for _, u := range s.pool.Upstreams() {
		addrs = append(addrs, u.Address())
	}
	s.logger.Info("proxy server started",
		zap.String("listen", ln.Addr().String()),
		zap.Strings("upstreams", addrs))
	return nil
}

// Serve accepts connections until the listener closes. Each connection is
// handled in its own goroutine; one handler failing never affects another.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return E.Cause(err, "accept")
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.dispatch(ctx, conn)
		}()
	}
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	defer common.Close(conn)

	traceID := newTraceID()
	log := s.logger.With(
		zap.String("trace_id", traceID),
		zap.String("client", conn.RemoteAddr().String()))

	if !s.clientSem.TryAcquire(1) {
		log.Warn("connection rejected: client limit reached")
		s.metrics.Rejected.Inc()
		reject(conn, traceID)
		// Half-close and discard the unread request so that closing the
		// socket does not reset it before the client has read the 503.
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
			_ = tcp.SetReadDeadline(time.Now().Add(s.cfg.Timeouts.Read()))
			_, _ = io.Copy(io.Discard, tcp)
		}
		return
	}
	defer s.clientSem.Release(1)

	s.active.Add(1)
	s.metrics.ActiveConnections.Inc()
	defer func() {
		s.active.Add(-1)
		s.metrics.ActiveConnections.Dec()
	}()

	s.handleClient(ctx, conn, log)
}

// Shutdown closes the listener and waits for in-flight handlers to drain,
// bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("proxy server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newTraceID takes 8 hex characters from a fresh random 128-bit value.
func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// reject answers an over-limit connection with a bare 503. Best effort.
func reject(w io.Writer, traceID string) {
	_, _ = io.WriteString(w,
		"HTTP/1.1 503 Service Unavailable\r\n"+
			"Content-Length: 0\r\n"+
			"Connection: close\r\n"+
			"X-Trace-Id: "+traceID+"\r\n"+
			"\r\n")
}
