package common

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/automated-fund-transfer/internal/api"
)

type stateResponse struct {
	Running         bool   `json:"running"`
	IntervalSeconds int64  `json:"interval_seconds"`
	Cycles          int    `json:"cycles"`
	LastOutcome     string `json:"last_outcome,omitempty"`
	LastSignature   string `json:"last_signature,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

func GetStateRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/state", getStateHandler(s))
}

// getStateHandler reports the in-memory loop state, nothing of it is persisted
func getStateHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := s.Cycle.State()

		resp := stateResponse{
			Running:         state.Running,
			IntervalSeconds: int64(state.Interval.Seconds()),
			Cycles:          state.Cycles,
			DryRun:          s.Config.DryRun,
		}
		if state.LastOutcome != nil {
			resp.LastOutcome = state.LastOutcome.String()
			resp.LastSignature = state.LastOutcome.Signature
		}

		return c.JSON(http.StatusOK, resp)
	}
}
