package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/janusproxy/janus/fault"
	"github.com/janusproxy/janus/httphead"
	"github.com/janusproxy/janus/stream"
	"github.com/janusproxy/janus/timeout"
)

// handleClient proxies one accepted connection end to end: parse the
// request head, lease an upstream connection, forward head and body, then
// stream the response back. Failures map to 504 (deadline), 502 (broken
// transport) or 500 (everything else).
func (s *Server) handleClient(ctx context.Context, conn net.Conn, log *zap.Logger) {
	start := time.Now()
	client := timeout.NewConn(conn, "client", s.cfg.Timeouts.Read(), s.cfg.Timeouts.Write())
	clientReader := bufio.NewReader(client)

	var (
		head              *httphead.Head
		status            int
		bytesIn, bytesOut int64
	)
	upstreamAddr := "unknown"

	err := func() error {
		var err error
		head, err = httphead.ParseRequest(clientReader)
		if err != nil {
			return err
		}
		log.Debug("request", zap.String("method", head.Method), zap.String("path", head.Path))

		leased, err := s.pool.Acquire(ctx, s.cfg.Timeouts.Connect())
		if err != nil {
			return err
		}
		defer leased.Close()
		upstreamAddr = leased.Upstream.Address()
		up := timeout.NewConn(leased, "upstream", s.cfg.Timeouts.Read(), s.cfg.Timeouts.Write())
		upstreamReader := bufio.NewReader(up)

		if _, err := head.WriteTo(up); err != nil {
			return err
		}

		length, hasLength, err := head.ContentLength()
		if err != nil {
			return err
		}
		switch {
		case hasLength && length > 0:
			n, err := stream.CopyFixed(up, clientReader, length)
			bytesIn += n
			if err != nil {
				return err
			}
		case head.IsChunked():
			n, err := stream.CopyChunked(up, clientReader)
			bytesIn += n
			if err != nil {
				return err
			}
		}

		respStatus, framing, err := httphead.ReadResponseHead(upstreamReader, client)
		if err != nil {
			return err
		}
		status = respStatus

		switch {
		case framing.HasLength:
			n, err := stream.CopyFixed(client, upstreamReader, framing.ContentLength)
			bytesOut += n
			if err != nil {
				return err
			}
		case framing.Chunked:
			n, err := stream.CopyChunked(client, upstreamReader)
			bytesOut += n
			if err != nil {
				return err
			}
		}
		return nil
	}()

	s.metrics.BodyBytes.WithLabelValues("in").Add(float64(bytesIn))
	s.metrics.BodyBytes.WithLabelValues("out").Add(float64(bytesOut))

	if err != nil {
		status = fault.Status(err)
		switch status {
		case http.StatusGatewayTimeout:
			log.Warn("request timed out", zap.String("upstream", upstreamAddr), zap.Error(err))
		case http.StatusBadGateway:
			log.Warn("upstream connection failed", zap.String("upstream", upstreamAddr), zap.Error(err))
		default:
			log.Error("request failed", zap.String("upstream", upstreamAddr), zap.Error(err), zap.Stack("stacktrace"))
		}
		writeError(client, status)
	} else if head != nil {
		log.Info("request complete",
			zap.String("method", head.Method),
			zap.String("path", head.Path),
			zap.String("upstream", upstreamAddr),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
	s.metrics.Requests.WithLabelValues(strconv.Itoa(status), upstreamAddr).Inc()
}

// writeError sends the minimal HTML error page. Best effort: the client may
// already be gone, and a failed error write is not worth a log line.
func writeError(w io.Writer, status int) {
	text := http.StatusText(status)
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, text)
	_, _ = fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, text, len(body), body)
}
