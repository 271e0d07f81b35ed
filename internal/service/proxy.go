// Package service implements the range-aware document proxy core shared by
// the download and inline viewer gateways.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"doc-gateway-go/internal/config"
	"doc-gateway-go/internal/filename"
	"doc-gateway-go/internal/model"
)

// Fetcher performs one upstream request and returns the response with its body unread.
type Fetcher interface {
	Do(ctx context.Context, method, target string, header http.Header) (*model.UpstreamResult, error)
}

// RangeProxy fetches a document once and translates the upstream response
// into an outbound response, preserving partial-content semantics.
type RangeProxy struct {
	fetcher      Fetcher
	baseURL      *url.URL
	allowedHosts map[string]bool
	logger       *slog.Logger
}

// NewRangeProxy creates a RangeProxy.
func NewRangeProxy(f Fetcher, cfg *config.Config, logger *slog.Logger) (*RangeProxy, error) {
	p := &RangeProxy{
		fetcher: f,
		logger:  logger.With("component", "range_proxy"),
	}

	if cfg.Upstream.BaseURL != "" {
		u, err := url.Parse(cfg.Upstream.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream base_url: %w", err)
		}
		p.baseURL = u
	}

	if len(cfg.Upstream.AllowedHosts) > 0 {
		p.allowedHosts = make(map[string]bool, len(cfg.Upstream.AllowedHosts))
		for _, h := range cfg.Upstream.AllowedHosts {
			p.allowedHosts[strings.ToLower(h)] = true
		}
	}

	return p, nil
}

// NewFetchSpec validates the inbound parameters and builds the spec for one
// request. An empty name is replaced by one derived from the target URL.
func (p *RangeProxy) NewFetchSpec(rawURL, name, rangeHeader, method string, d model.Disposition) (*model.FetchSpec, error) {
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedMethod, method)
	}

	target, err := p.parseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = filename.FromURL(target)
	}

	return &model.FetchSpec{
		Target:      target,
		Filename:    name,
		Range:       rangeHeader,
		Method:      method,
		Disposition: d,
	}, nil
}

func (p *RangeProxy) parseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !u.IsAbs() {
		if p.baseURL == nil {
			return nil, fmt.Errorf("%w: relative url without upstream.base_url", ErrInvalidTarget)
		}
		u = p.baseURL.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: need an http(s) url with a host", ErrInvalidTarget)
	}
	if p.allowedHosts != nil && !p.allowedHosts[strings.ToLower(u.Hostname())] {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	u.Fragment = ""
	return u, nil
}

// Proxy performs the upstream fetch described by spec. On success the
// returned response carries the outbound status, the complete outbound
// header set and, for GET, the unread upstream body which the caller must
// close. Nothing is written anywhere by Proxy itself.
func (p *RangeProxy) Proxy(ctx context.Context, spec *model.FetchSpec) (*model.ProxyResponse, error) {
	header := make(http.Header)
	header.Set("Accept", "*/*")
	header.Set("Accept-Encoding", "identity")
	header.Set("Cache-Control", "no-cache")
	header.Set("Pragma", "no-cache")
	if spec.Range != "" {
		header.Set("Range", spec.Range)
	}

	p.logger.Debug("fetching document",
		"method", spec.Method,
		"host", spec.Target.Host,
		"path", spec.Target.Path,
		"range", spec.Range,
		"disposition", spec.Disposition.String(),
	)

	up, err := p.fetcher.Do(ctx, spec.Method, spec.Target.String(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	if !up.OK() {
		closeBody(up.Body)
		return nil, &UpstreamStatusError{StatusCode: up.StatusCode}
	}

	status := http.StatusOK
	if up.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
	}

	resp := &model.ProxyResponse{
		StatusCode: status,
		Header:     buildHeaders(spec, up.Header),
	}
	if spec.Method == http.MethodHead {
		closeBody(up.Body)
	} else {
		resp.Body = up.Body
	}
	return resp, nil
}

func closeBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
