// Package client provides the streaming HTTP client used to fetch documents.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"doc-gateway-go/internal/config"
	"doc-gateway-go/internal/metrics"
	"doc-gateway-go/internal/model"
)

// ErrCircuitOpen is returned when the breaker for the target host rejects the request.
var ErrCircuitOpen = errors.New("upstream circuit open")

const (
	defaultUserAgent    = "doc-gateway-go/1.0"
	defaultMaxRedirects = 10
)

// UpstreamClient fetches documents from arbitrary upstream hosts.
type UpstreamClient struct {
	httpClient *http.Client
	userAgent  string
	readIdle   time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	breakers   *breakerSet // nil when the circuit breaker is disabled
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Upstream.Timeout(),
		// Transparent gzip would drop Content-Length on GET but not on HEAD
		// or ranged requests, so byte counts must come from the origin as is.
		DisableCompression: true,
	}

	maxRedirects := cfg.Upstream.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	userAgent := cfg.Upstream.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	logger = logger.With("component", "upstream_client")

	c := &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Zero leaves long transfers unbounded; the header timeout above
			// still guards against upstreams that never answer.
			Timeout: cfg.Upstream.TransferTimeout(),
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: userAgent,
		readIdle:  cfg.Upstream.ReadIdleTimeout(),
		logger:    logger,
		metrics:   m,
	}

	if cfg.Upstream.CircuitBreaker.Enabled {
		c.breakers = newBreakerSet(cfg.Upstream.CircuitBreaker, logger)
	}

	return c
}

// Do issues a single upstream request and returns the response with its body
// unread. Redirects are followed. The caller is responsible for closing the body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request and any in-flight body read are aborted. A body read that waits
// longer than the read idle timeout fails with ErrUpstreamStalled.
func (c *UpstreamClient) Do(ctx context.Context, method, target string, header http.Header) (*model.UpstreamResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for key, vals := range header {
		req.Header[key] = vals
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"range", req.Header.Get("Range"),
	)

	var done func(bool)
	if c.breakers != nil {
		done, err = c.breakers.get(req.URL.Host).Allow()
		if err != nil {
			cancel(nil)
			return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, req.URL.Host, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResult
	duration := time.Since(start).Seconds()

	if done != nil {
		// A caller that went away says nothing about upstream health.
		done(errors.Is(err, context.Canceled) || (err == nil && resp.StatusCode < http.StatusInternalServerError))
	}

	metricMethod := metrics.NormalizeMethod(req.Method)

	if err != nil {
		cancel(nil)
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(metricMethod).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(metricMethod).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(metricMethod, status).Inc()
	}

	return &model.UpstreamResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       newIdleBody(ctx, cancel, resp.Body, c.readIdle),
	}, nil
}

// BreakerStates reports the circuit state per upstream host seen so far.
// It returns nil when the breaker is disabled.
func (c *UpstreamClient) BreakerStates() map[string]string {
	if c.breakers == nil {
		return nil
	}
	return c.breakers.states()
}
