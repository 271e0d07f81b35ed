package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"doc-gateway-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// BreakerReporter exposes per-host circuit breaker states. A nil map means
// breakers are disabled.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg      *config.Config
	version  Version
	breakers BreakerReporter
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, b BreakerReporter) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, breakers: b}
}

// statusResponse is the body of the status endpoint.
type statusResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	UpstreamBase string            `json:"upstream_base_url,omitempty"`
	AllowedHosts []string          `json:"allowed_hosts,omitempty"`
	Breakers     map[string]string `json:"breakers,omitempty"`
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:       "ok",
		Version:      string(h.version),
		UpstreamBase: h.cfg.Upstream.BaseURL,
		AllowedHosts: h.cfg.Upstream.AllowedHosts,
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.BreakerStates()
	}
	return c.JSON(http.StatusOK, resp)
}
