package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"doc-gateway-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records inbound request
// metrics. Scrapes of selfPath are not recorded.
func MetricsMiddleware(m *metrics.Metrics, selfPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if selfPath != "" && req.URL.Path == selfPath {
				return next(c)
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := strconv.Itoa(responseStatus(c, err))
			method := metrics.NormalizeMethod(req.Method)
			path := metrics.NormalizePath(req.URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// responseStatus returns the status the client will see. An uncommitted
// response with an *echo.HTTPError is written later by Echo's error handler.
func responseStatus(c echo.Context, err error) int {
	res := c.Response()
	if res.Committed || err == nil {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return res.Status
}
