package common

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/automated-fund-transfer/internal/api"
)

// statusNotReady is returned while a component is missing or the cycle loop is not running
const statusNotReady = 521

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// Readiness check
// This endpoint returns 200 when the server is fully initialized and the cycle loop is running.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() || !s.Cycle.State().Running {
			return c.String(statusNotReady, "Not ready.")
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
