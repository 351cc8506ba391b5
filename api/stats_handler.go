package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// StatsResponse counts runs per workflow and state.
type StatsResponse struct {
	Workflows map[string]map[workflow.RunState]int `json:"workflows"`
	Total     int                                  `json:"total"`
}

var runStates = []workflow.RunState{
	workflow.RunStateRunning,
	workflow.RunStateWaiting,
	workflow.RunStateCompleted,
	workflow.RunStateFailed,
	workflow.RunStateCancelled,
}

func (a *API) stats(c echo.Context) error {
	ctx := c.Request().Context()
	resp := StatsResponse{Workflows: make(map[string]map[workflow.RunState]int)}

	for _, name := range a.eng.Registry().Names() {
		counts := make(map[workflow.RunState]int, len(runStates))
		for _, state := range runStates {
			runs, err := a.eng.Instances(ctx, workflow.ListOpts{Name: name, State: state})
			if err != nil {
				return err
			}
			counts[state] = len(runs)
			resp.Total += len(runs)
		}
		resp.Workflows[name] = counts
	}

	return c.JSON(http.StatusOK, resp)
}
