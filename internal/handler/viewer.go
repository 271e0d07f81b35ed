package handler

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"doc-gateway-go/internal/metrics"
	"doc-gateway-go/internal/model"
	"doc-gateway-go/internal/service"
)

// ViewerHandler streams documents for in-browser rendering.
type ViewerHandler struct {
	gw *gateway
}

// NewViewerHandler creates a ViewerHandler. The metrics parameter is optional.
func NewViewerHandler(proxy *service.RangeProxy, logger *slog.Logger, m *metrics.Metrics) *ViewerHandler {
	return &ViewerHandler{gw: &gateway{
		name:        "viewer",
		disposition: model.Inline,
		render:      renderJSON,
		proxy:       proxy,
		logger:      logger.With("component", "viewer_gateway"),
		metrics:     m,
	}}
}

// Handle serves GET requests for the inline viewer.
func (h *ViewerHandler) Handle(c echo.Context) error {
	return h.gw.serve(c)
}

// renderJSON writes the viewer's error envelope.
func renderJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, model.ErrorEnvelope{Success: false, Message: message})
}
