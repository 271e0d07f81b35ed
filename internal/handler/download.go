package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"doc-gateway-go/internal/metrics"
	"doc-gateway-go/internal/model"
	"doc-gateway-go/internal/service"
)

// DownloadHandler serves documents as forced "Save As" downloads.
type DownloadHandler struct {
	gw *gateway
}

// NewDownloadHandler creates a DownloadHandler. The metrics parameter is optional.
func NewDownloadHandler(proxy *service.RangeProxy, logger *slog.Logger, m *metrics.Metrics) *DownloadHandler {
	return &DownloadHandler{gw: &gateway{
		name:        "download",
		disposition: model.Attachment,
		render:      renderText,
		proxy:       proxy,
		logger:      logger.With("component", "download_gateway"),
		metrics:     m,
	}}
}

// Handle serves GET and HEAD. Both report the same status and headers;
// HEAD never carries a body.
func (h *DownloadHandler) Handle(c echo.Context) error {
	return h.gw.serve(c)
}

// renderText writes a short plain-text error, or nothing for HEAD.
func renderText(c echo.Context, status int, message string) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.String(status, message)
}
