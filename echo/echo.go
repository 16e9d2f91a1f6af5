// Package echo is a sample upstream for exercising the proxy by hand:
//
//	janus echo -p 9001 &
//	janus echo -p 9002 &
//	janus
package echo

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// NewHandler builds the echo application.
//
//	GET  /                returns request info, handy for checking header pass-through
//	POST /echo            returns the request body
//	GET  /slow?delay=5    responds after delay seconds, for timeout testing
//	GET  /status?code=404 responds with the given status code
//	GET  /large?size=N    returns an N-byte body, 1 MiB by default
func NewHandler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/", func(c echo.Context) error {
		headers := make(map[string]string)
		for name, values := range c.Request().Header {
			headers[strings.ToLower(name)] = strings.Join(values, ", ")
		}
		return c.JSON(http.StatusOK, map[string]any{
			"message": "Hello from echo server",
			"path":    c.Request().URL.Path,
			"method":  c.Request().Method,
			"headers": headers,
		})
	})

	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "text/plain; charset=utf-8", body)
	})

	e.GET("/slow", func(c echo.Context) error {
		delay := 5.0
		if v := c.QueryParam("delay"); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				delay = parsed
			}
		}
		select {
		case <-time.After(time.Duration(delay * float64(time.Second))):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
		return c.JSON(http.StatusOK, map[string]any{"delayed": delay})
	})

	e.GET("/status", func(c echo.Context) error {
		code := http.StatusOK
		if v := c.QueryParam("code"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				code = parsed
			}
		}
		return c.JSON(code, map[string]any{"status": code})
	})

	e.GET("/large", func(c echo.Context) error {
		size := 1024 * 1024
		if v := c.QueryParam("size"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
				size = parsed
			}
		}
		return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Repeat("x", size)))
	})

	return e
}
