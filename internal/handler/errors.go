package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"doc-gateway-go/internal/client"
	"doc-gateway-go/internal/service"
)

// queryPattern matches the query string of URLs embedded in error messages.
// Signed document URLs carry their credentials there.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?]+)\?[^\s"]*`)

// failure is a classified gateway error ready to be rendered.
type failure struct {
	status  int
	message string
	reason  string // metrics label
}

// classify maps a fetch error onto the status and message shown to the client.
func classify(err error) failure {
	switch {
	case errors.Is(err, service.ErrMissingTarget):
		return failure{http.StatusBadRequest, "missing url parameter", "bad_request"}
	case errors.Is(err, service.ErrHostNotAllowed):
		return failure{http.StatusBadRequest, "url host is not allowed", "bad_request"}
	case service.IsBadRequest(err):
		return failure{http.StatusBadRequest, "invalid url parameter", "bad_request"}
	}

	var statusErr *service.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return failure{
			statusErr.HTTPStatus(),
			fmt.Sprintf("upstream responded with status %d", statusErr.StatusCode),
			"upstream_status",
		}
	}

	if errors.Is(err, client.ErrCircuitOpen) {
		return failure{http.StatusBadGateway, "upstream temporarily unavailable", "circuit_open"}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failure{http.StatusBadGateway, "upstream request timed out", "timeout"}
	}

	if errors.Is(err, context.Canceled) {
		return failure{http.StatusBadGateway, "client disconnected", "canceled"}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failure{http.StatusBadGateway, "upstream host unreachable", "dns"}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return failure{http.StatusBadGateway, "upstream connection failed", "connection"}
	}

	return failure{http.StatusBadGateway, "upstream request failed", "other"}
}

// sanitizeError redacts query strings from URLs embedded in error messages.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
