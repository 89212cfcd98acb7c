package router

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github/chapool/automated-fund-transfer/internal/api"
	"github/chapool/automated-fund-transfer/internal/api/handlers/common"
)

// Init sets up the management echo instance and attaches its routes to s
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "aft",
		Subsystem:  "management",
		Registerer: s.Metrics.Registry(),
	}))

	s.Router = &api.Router{
		Routes: nil,
		Root:   s.Echo.Group(""),
		// management endpoints are served below /-/
		Management: s.Echo.Group("/-"),
	}

	s.Router.Routes = append(s.Router.Routes,
		common.GetReadyRoute(s),
		common.GetHealthyRoute(s),
		common.GetStateRoute(s),
		common.GetMetricsRoute(s),
	)
}
