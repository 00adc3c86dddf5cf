package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/tanq16/rangeload/internal/downloader"
	"github.com/tanq16/rangeload/internal/utils"
)

// Downloads is the part of the download manager the API drives.
type Downloads interface {
	Enqueue(rawURL, name string) (downloader.EntryID, error)
	Restart(id downloader.EntryID) error
	Delete(id downloader.EntryID) error
	State() *downloader.State
}

func NewRouter(d Downloads) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, d)
	return e
}

func RegisterRoutes(e *echo.Echo, d Downloads) {
	log := utils.GetLogger("api")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("Request")
			return nil
		},
	}))

	ctrl := &DownloadController{Downloads: d}
	e.GET("/downloads", ctrl.List)
	e.POST("/downloads", ctrl.Create)
	e.GET("/downloads/:id", ctrl.Get)
	e.POST("/downloads/:id/restart", ctrl.Restart)
	e.DELETE("/downloads/:id", ctrl.Delete)
}
