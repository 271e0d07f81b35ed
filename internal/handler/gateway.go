package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"doc-gateway-go/internal/client"
	"doc-gateway-go/internal/metrics"
	"doc-gateway-go/internal/model"
	"doc-gateway-go/internal/service"
)

// renderFunc writes an error response in a gateway's own format.
type renderFunc func(c echo.Context, status int, message string) error

// gateway holds what the download and viewer handlers share: the proxy
// core, a disposition policy and an error renderer.
type gateway struct {
	name        string
	disposition model.Disposition
	render      renderFunc

	proxy   *service.RangeProxy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// serve runs one document request through the proxy core. All failures are
// rendered here; nothing is written to the client before the upstream
// outcome is known.
func (g *gateway) serve(c echo.Context) error {
	defer g.recoverPanic(c)

	req := c.Request()

	spec, err := g.proxy.NewFetchSpec(
		c.QueryParam("url"),
		c.QueryParam("filename"),
		req.Header.Get("Range"),
		req.Method,
		g.disposition,
	)
	if err != nil {
		return g.fail(c, err)
	}

	resp, err := g.proxy.Proxy(req.Context(), spec)
	if err != nil {
		return g.fail(c, err)
	}

	n, err := relay(c, resp)
	if g.metrics != nil {
		g.metrics.BytesRelayed.WithLabelValues(g.name).Add(float64(n))
	}
	if err != nil {
		// Status and headers are already sent; the client sees a truncated body.
		reason := "stream_aborted"
		if errors.Is(err, client.ErrUpstreamStalled) {
			reason = "stalled"
		}
		g.logger.Warn("streaming document body",
			"err", sanitizeError(err),
			"reason", reason,
			"host", spec.Target.Host,
			"path", spec.Target.Path,
			"bytes", n,
		)
		if g.metrics != nil {
			g.metrics.Failures.WithLabelValues(g.name, reason).Inc()
		}
	}

	return nil
}

// relay writes the outbound status and headers, then pipes the body.
func relay(c echo.Context, resp *model.ProxyResponse) (int64, error) {
	out := c.Response()
	for key, vals := range resp.Header {
		out.Header()[key] = vals
	}
	out.WriteHeader(resp.StatusCode)

	if resp.Body == nil {
		return 0, nil
	}
	defer func() { _ = resp.Body.Close() }()

	return io.Copy(out, resp.Body)
}

func (g *gateway) fail(c echo.Context, err error) error {
	f := classify(err)

	level := slog.LevelWarn
	if f.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	g.logger.Log(c.Request().Context(), level, "document request failed",
		"err", sanitizeError(err),
		"status", f.status,
		"reason", f.reason,
	)

	if g.metrics != nil && f.reason != "bad_request" {
		g.metrics.Failures.WithLabelValues(g.name, f.reason).Inc()
	}

	return g.render(c, f.status, f.message)
}

// recoverPanic turns a panic inside the gateway into a 500 response.
func (g *gateway) recoverPanic(c echo.Context) {
	r := recover()
	if r == nil {
		return
	}

	g.logger.Error("internal failure",
		"panic", fmt.Sprint(r),
		"path", c.Request().URL.Path,
	)
	if g.metrics != nil {
		g.metrics.Failures.WithLabelValues(g.name, "internal").Inc()
	}
	if !c.Response().Committed {
		_ = g.render(c, http.StatusInternalServerError, "internal server error")
	}
}
