// Package contenttype decides which Content-Type a relayed document is served with.
package contenttype

import (
	"mime"
	"net/url"
	"strings"
)

const (
	PDF         = "application/pdf"
	OctetStream = "application/octet-stream"
)

// IsPDF reports whether ct declares the PDF media type. Parameters and case
// are ignored.
func IsPDF(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	}
	return strings.EqualFold(mt, PDF)
}

// HasPDFSuffix reports whether s, a URL or a bare filename, ends in ".pdf".
// Query string and fragment are ignored.
func HasPDFSuffix(s string) bool {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(strings.ToLower(s), ".pdf")
}

// Resolve returns the Content-Type for the inline viewer.
//
// A PDF upstream type is kept as is. Otherwise a ".pdf" target URL or
// requested filename forces PDF, repairing upstreams that serve PDFs as
// octet-stream. Anything else keeps the upstream type, defaulting to PDF.
func Resolve(upstream, targetURL, requestedName string) string {
	if IsPDF(upstream) {
		return upstream
	}
	if urlHasPDFSuffix(targetURL) || HasPDFSuffix(requestedName) {
		return PDF
	}
	if upstream != "" {
		return upstream
	}
	return PDF
}

func urlHasPDFSuffix(raw string) bool {
	if u, err := url.Parse(raw); err == nil {
		return HasPDFSuffix(u.Path)
	}
	return HasPDFSuffix(raw)
}
