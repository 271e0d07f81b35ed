package service

import (
	"net/http"

	"doc-gateway-go/internal/contenttype"
	"doc-gateway-go/internal/filename"
	"doc-gateway-go/internal/model"
)

// Cache policies. Documents are never served stale or from a shared cache;
// inline documents may be paid content and are additionally private.
const (
	attachmentCacheControl = "no-store, no-cache, must-revalidate, max-age=0"
	inlineCacheControl     = "private, no-store, no-cache, must-revalidate, max-age=0"
)

// relayedHeaders are copied from the upstream response only when present.
// Content-Encoding travels with Content-Length so an origin that compresses
// despite Accept-Encoding: identity still yields a correctly labeled body.
var relayedHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Content-Range",
	"ETag",
	"Last-Modified",
}

// buildHeaders assembles the outbound header set. Every value is Set, so
// each key, Content-Type included, carries exactly one value.
func buildHeaders(spec *model.FetchSpec, upstream http.Header) http.Header {
	h := make(http.Header)

	h.Set("Content-Disposition", filename.ContentDisposition(spec.Disposition.String(), spec.Filename))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Pragma", "no-cache")

	switch spec.Disposition {
	case model.Inline:
		h.Set("Cache-Control", inlineCacheControl)
		h.Set("Content-Type", contenttype.Resolve(upstream.Get("Content-Type"), spec.Target.String(), spec.Filename))
	default:
		h.Set("Cache-Control", attachmentCacheControl)
		h.Set("Content-Type", contenttype.OctetStream)
	}

	acceptRanges := upstream.Get("Accept-Ranges")
	if acceptRanges == "" {
		acceptRanges = "bytes"
	}
	h.Set("Accept-Ranges", acceptRanges)

	for _, key := range relayedHeaders {
		if v := upstream.Get(key); v != "" {
			h.Set(key, v)
		}
	}

	return h
}
