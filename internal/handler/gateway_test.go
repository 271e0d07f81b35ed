package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"doc-gateway-go/internal/client"
	"doc-gateway-go/internal/config"
	"doc-gateway-go/internal/metrics"
	"doc-gateway-go/internal/model"
	"doc-gateway-go/internal/service"
)

const thaiName = "ข้อสอบ 2567.pdf"

var docModTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// documentServer serves a 5000-byte document with full Range support.
func documentServer(t *testing.T, contentType string) *httptest.Server {
	t.Helper()
	doc := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("ETag", `"doc-v1"`)
		w.Header().Set("Set-Cookie", "session=secret")
		http.ServeContent(w, r, "doc", docModTime, strings.NewReader(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRangeProxy(t *testing.T, f service.Fetcher) *service.RangeProxy {
	t.Helper()
	p, err := service.NewRangeProxy(f, &config.Config{}, discardLogger())
	if err != nil {
		t.Fatalf("NewRangeProxy: %v", err)
	}
	return p
}

func newLiveRangeProxy(t *testing.T, m *metrics.Metrics) *service.RangeProxy {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  5,
			IdleConnections: 10,
			MaxRedirects:    5,
		},
	}
	return newTestRangeProxy(t, client.NewUpstreamClient(cfg, discardLogger(), m))
}

func docQuery(target, name string) string {
	if target == "" {
		return ""
	}
	q := url.Values{"url": {target}}
	if name != "" {
		q.Set("filename", name)
	}
	return q.Encode()
}

type panicFetcher struct{}

func (panicFetcher) Do(context.Context, string, string, http.Header) (*model.UpstreamResult, error) {
	panic("boom")
}

func serveDownload(h *DownloadHandler, method, query string, header http.Header) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, "/api/download?"+query, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	_ = h.Handle(e.NewContext(req, rec))
	return rec
}

func serveViewer(h *ViewerHandler, query string, header http.Header) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/viewer?"+query, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	_ = h.Handle(e.NewContext(req, rec))
	return rec
}

func TestDownload_FullDocument(t *testing.T) {
	srv := documentServer(t, "application/pdf")
	m := metrics.New()
	h := NewDownloadHandler(newLiveRangeProxy(t, m), discardLogger(), m)

	rec := serveDownload(h, http.MethodGet, docQuery(srv.URL+"/files/exam.pdf", thaiName), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	wantCD := `attachment; filename="______ 2567.pdf"; filename*=UTF-8''%E0%B8%82%E0%B9%89%E0%B8%AD%E0%B8%AA%E0%B8%AD%E0%B8%9A%202567.pdf`
	if got := rec.Header().Get("Content-Disposition"); got != wantCD {
		t.Errorf("Content-Disposition = %q, want %q", got, wantCD)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5000" {
		t.Errorf("Content-Length = %q, want 5000", got)
	}
	if got := rec.Header().Get("Content-Range"); got != "" {
		t.Errorf("Content-Range = %q, want empty", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("Set-Cookie"); got != "" {
		t.Errorf("Set-Cookie leaked: %q", got)
	}
	if rec.Body.Len() != 5000 {
		t.Errorf("body length = %d, want 5000", rec.Body.Len())
	}
	if v := testutil.ToFloat64(m.BytesRelayed.WithLabelValues("download")); v != 5000 {
		t.Errorf("relayed bytes = %v, want 5000", v)
	}
}

func TestDownload_PartialContent(t *testing.T) {
	srv := documentServer(t, "application/pdf")
	h := NewDownloadHandler(newLiveRangeProxy(t, nil), discardLogger(), nil)

	rec := serveDownload(h, http.MethodGet, docQuery(srv.URL+"/doc.pdf", ""),
		http.Header{"Range": {"bytes=0-99"}})

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusPartialContent)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-99/5000" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 0-99/5000")
	}
	if got := rec.Header().Get("Content-Length"); got != "100" {
		t.Errorf("Content-Length = %q, want 100", got)
	}
	if rec.Body.Len() != 100 {
		t.Errorf("body length = %d, want 100", rec.Body.Len())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="doc.pdf"`) {
		t.Errorf("Content-Disposition = %q, want filename derived from url", got)
	}
}

func TestDownload_HeadMatchesGet(t *testing.T) {
	srv := documentServer(t, "application/pdf")
	h := NewDownloadHandler(newLiveRangeProxy(t, nil), discardLogger(), nil)
	query := docQuery(srv.URL+"/doc.pdf", "report.pdf")
	rng := http.Header{"Range": {"bytes=100-199"}}

	get := serveDownload(h, http.MethodGet, query, rng)
	head := serveDownload(h, http.MethodHead, query, rng)

	if head.Code != get.Code {
		t.Errorf("HEAD status = %d, GET status = %d", head.Code, get.Code)
	}
	for _, key := range []string{
		"Content-Type", "Content-Disposition", "Content-Length", "Content-Range",
		"Accept-Ranges", "Cache-Control", "ETag", "Last-Modified", "X-Content-Type-Options",
	} {
		if head.Header().Get(key) != get.Header().Get(key) {
			t.Errorf("%s: HEAD %q, GET %q", key, head.Header().Get(key), get.Header().Get(key))
		}
	}
	if head.Body.Len() != 0 {
		t.Errorf("HEAD body length = %d, want 0", head.Body.Len())
	}
}

func TestDownload_Errors(t *testing.T) {
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("upstream error page"))
	}))
	defer gone.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	h := NewDownloadHandler(newLiveRangeProxy(t, nil), discardLogger(), nil)

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"missing url", http.MethodGet, "", http.StatusBadRequest, "missing url parameter"},
		{"missing url head", http.MethodHead, "", http.StatusBadRequest, ""},
		{"bad scheme", http.MethodGet, docQuery("ftp://host/doc.pdf", ""), http.StatusBadRequest, "invalid url parameter"},
		{"upstream 404", http.MethodGet, docQuery(gone.URL+"/doc.pdf", ""), http.StatusNotFound, "upstream responded with status 404"},
		{"upstream 404 head", http.MethodHead, docQuery(gone.URL+"/doc.pdf", ""), http.StatusNotFound, ""},
		{"unreachable", http.MethodGet, docQuery(deadURL+"/doc.pdf", ""), http.StatusBadGateway, "upstream connection failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveDownload(h, tt.method, tt.query, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := rec.Header().Get("Content-Disposition"); got != "" {
				t.Errorf("Content-Disposition = %q on error response", got)
			}
		})
	}
}

func TestViewer_ResolvesPDF(t *testing.T) {
	srv := documentServer(t, "application/octet-stream")
	h := NewViewerHandler(newLiveRangeProxy(t, nil), discardLogger(), nil)

	rec := serveViewer(h, docQuery(srv.URL+"/scan.pdf?sig=abc", ""), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, `inline; filename="scan.pdf"`) {
		t.Errorf("Content-Disposition = %q, want inline scan.pdf", got)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.HasPrefix(got, "private, no-store") {
		t.Errorf("Cache-Control = %q, want private, no-store prefix", got)
	}
	if rec.Body.Len() != 5000 {
		t.Errorf("body length = %d, want 5000", rec.Body.Len())
	}
}

func TestViewer_PassesThroughOtherTypes(t *testing.T) {
	srv := documentServer(t, "image/png")
	h := NewViewerHandler(newLiveRangeProxy(t, nil), discardLogger(), nil)

	rec := serveViewer(h, docQuery(srv.URL+"/figure", ""), nil)

	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
}

func TestViewer_ErrorEnvelope(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	m := metrics.New()
	h := NewViewerHandler(newLiveRangeProxy(t, m), discardLogger(), m)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantMsg    string
	}{
		{"missing url", "", http.StatusBadRequest, "missing url parameter"},
		{"relative url", docQuery("/doc.pdf", ""), http.StatusBadRequest, "invalid url parameter"},
		{"upstream 503", docQuery(failing.URL+"/doc.pdf", ""), http.StatusServiceUnavailable, "upstream responded with status 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveViewer(h, tt.query, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var env model.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
			}
			if env.Success {
				t.Error("success = true, want false")
			}
			if env.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", env.Message, tt.wantMsg)
			}
		})
	}

	if v := testutil.ToFloat64(m.Failures.WithLabelValues("viewer", "upstream_status")); v != 1 {
		t.Errorf("upstream_status failures = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Failures.WithLabelValues("viewer", "bad_request")); v != 0 {
		t.Errorf("bad_request failures = %v, want 0", v)
	}
}

func TestViewer_RecoversPanic(t *testing.T) {
	m := metrics.New()
	h := NewViewerHandler(newTestRangeProxy(t, panicFetcher{}), discardLogger(), m)

	rec := serveViewer(h, docQuery("https://files.example.com/doc.pdf", ""), nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var env model.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Success || env.Message != "internal server error" {
		t.Errorf("envelope = %+v", env)
	}
	if v := testutil.ToFloat64(m.Failures.WithLabelValues("viewer", "internal")); v != 1 {
		t.Errorf("internal failures = %v, want 1", v)
	}
}

func TestDownload_StalledUpstreamReleasesHandler(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("%PDF-1."))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:         5,
			ReadIdleTimeoutSeconds: 1,
			IdleConnections:        10,
			MaxRedirects:           5,
		},
	}
	m := metrics.New()
	proxy := newTestRangeProxy(t, client.NewUpstreamClient(cfg, discardLogger(), m))
	h := NewDownloadHandler(proxy, discardLogger(), m)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serveDownload(h, http.MethodGet, docQuery(srv.URL+"/doc.pdf", ""), nil)
	}()

	var rec *httptest.ResponseRecorder
	select {
	case rec = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("handler still blocked on a silent upstream")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "%PDF-1." {
		t.Errorf("body = %q, want only the bytes sent before the stall", got)
	}
	if v := testutil.ToFloat64(m.Failures.WithLabelValues("download", "stalled")); v != 1 {
		t.Errorf("stalled failures = %v, want 1", v)
	}
}
