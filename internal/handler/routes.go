package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, download *DownloadHandler, viewer *ViewerHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET("/api/download", download.Handle)
	e.HEAD("/api/download", download.Handle)
	e.GET("/api/viewer", viewer.Handle)
}
