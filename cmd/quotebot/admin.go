package main

import (
	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// RunAdmin serves the health check and prometheus metrics. It blocks, so
// run it in a goroutine.
func (s *Server) RunAdmin(listen string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("quotebot"))

	e.GET("/_health", func(c echo.Context) error {
		return c.JSON(200, HealthStatus{Status: "ok", Version: versioninfo.Short()})
	})
	e.GET("/metrics", echoprometheus.NewHandler())

	s.logger.Info("admin endpoint listening", "addr", listen)
	return e.Start(listen)
}
