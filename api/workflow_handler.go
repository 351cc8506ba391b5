package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// ListWorkflowNamesResponse lists the registered workflows.
type ListWorkflowNamesResponse struct {
	Names []string `json:"names"`
}

// StartResponse is returned when a run is started. Error is set when the
// run was rejected during its first execution.
type StartResponse struct {
	Run   *workflow.Run `json:"run"`
	Error string        `json:"error,omitempty"`
}

// CancelRequest is the optional body of a cancel call.
type CancelRequest struct {
	Reason string `json:"reason"`
}

const defaultCancelReason = "Cancelled by operator"

func (a *API) listWorkflowNames(c echo.Context) error {
	return c.JSON(http.StatusOK, ListWorkflowNamesResponse{Names: a.eng.Registry().Names()})
}

func (a *API) startWorkflow(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return err
	}

	run, err := a.eng.StartWorkflow(c.Request().Context(), c.Param("type"), body)
	if err != nil {
		if run == nil {
			return err
		}
		// The run exists but its first execution failed.
		return c.JSON(statusFor(err), StartResponse{Run: run, Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, StartResponse{Run: run})
}

func (a *API) listInstances(c echo.Context) error {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return err
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return err
	}

	runs, err := a.eng.Instances(c.Request().Context(), workflow.ListOpts{
		Limit:  limit,
		Offset: offset,
		State:  workflow.RunState(c.QueryParam("state")),
		Name:   c.QueryParam("workflow"),
	})
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	if runs == nil {
		runs = []*workflow.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (a *API) getInstance(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}
	run, err := a.eng.Instance(c.Request().Context(), runID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

func (a *API) getTimeline(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}
	entries, err := a.eng.Timeline(c.Request().Context(), runID)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []workflow.TimelineEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (a *API) getWaits(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}
	waits, err := a.eng.PendingWaits(c.Request().Context(), runID)
	if err != nil {
		return err
	}
	if waits == nil {
		waits = []*workflow.PendingEvent{}
	}
	return c.JSON(http.StatusOK, waits)
}

func (a *API) deliverEvent(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}
	body, err := readJSON(c)
	if err != nil {
		return err
	}

	evt, err := a.eng.Deliver(c.Request().Context(), runID, c.Param("name"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, evt)
}

func (a *API) cancelInstance(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}

	var req CancelRequest
	body, err := readJSON(c)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
		}
	}
	if req.Reason == "" {
		req.Reason = defaultCancelReason
	}

	ctx := c.Request().Context()
	if err := a.eng.Cancel(ctx, runID, req.Reason); err != nil {
		return err
	}
	run, err := a.eng.Instance(ctx, runID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

func runIDParam(c echo.Context) (id.RunID, error) {
	runID, err := id.ParseRunID(c.Param("id"))
	if err != nil {
		return id.RunID{}, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid instance ID: %v", err))
	}
	return runID, nil
}

// readJSON returns the raw request body, rejecting anything that is not
// valid JSON. An empty body is allowed.
func readJSON(c echo.Context) (json.RawMessage, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "read request body: "+err.Error())
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}
	return data, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return n, nil
}
