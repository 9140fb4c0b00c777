package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-converter/internal/api/handlers/image"
	"github.com/aliskhannn/image-converter/internal/api/middleware"
)

// Setup registers the conversion routes plus health and metrics endpoints.
// metrics may be nil.
func Setup(h *image.Handler, metrics http.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.RequestID())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.POST("/convert", h.Convert)     // any format, HEIF included
	r.POST("/compress", h.Compress)   // re-encode jpeg/png/webp
	r.GET("/images/latest", h.Latest) // newest conversion record

	r.GET("/healthz", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if metrics != nil {
		r.GET("/metrics", func(c *ginext.Context) {
			metrics.ServeHTTP(c.Writer, c.Request)
		})
	}

	return r
}
