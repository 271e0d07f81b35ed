// Package model defines shared types for the document gateway.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// Disposition selects how the browser should treat a relayed document.
type Disposition int

const (
	// Attachment forces a "Save As" download.
	Attachment Disposition = iota
	// Inline lets the browser render the document in place.
	Inline
)

// String returns the Content-Disposition type token.
func (d Disposition) String() string {
	if d == Inline {
		return "inline"
	}
	return "attachment"
}

// FetchSpec describes one inbound document request. It is built once per
// request and not modified afterwards.
type FetchSpec struct {
	Target      *url.URL
	Filename    string
	Range       string // inbound Range header, empty when absent
	Method      string // GET or HEAD
	Disposition Disposition
}

// UpstreamResult is the raw upstream response. Body must be closed by its owner.
type UpstreamResult struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// OK reports whether the upstream answered with a 2xx status.
func (r *UpstreamResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ProxyResponse is the outbound response to be streamed back.
// Body is nil when no body should be written (HEAD).
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ErrorEnvelope is the JSON error body used by the inline viewer.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
