package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

type startReply struct {
	Run   *workflow.Run `json:"run"`
	Error string        `json:"error,omitempty"`
}

// StartWorkflow starts a run of the named workflow. When the server
// created the run but rejected it during its first execution, the run is
// returned together with the error.
func (c *Client) StartWorkflow(ctx context.Context, name string, params any) (*workflow.Run, error) {
	status, data, err := c.send(ctx, http.MethodPost, "/v1/workflows/"+url.PathEscape(name), params)
	if err != nil {
		return nil, err
	}

	var reply startReply
	if json.Unmarshal(data, &reply) == nil && reply.Run != nil {
		if reply.Error != "" {
			return reply.Run, &APIError{StatusCode: status, Message: reply.Error}
		}
		return reply.Run, nil
	}
	return nil, decodeReply(status, data, nil)
}

// Instance fetches a run.
func (c *Client) Instance(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.do(ctx, http.MethodGet, "/v1/instances/"+runID.String(), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListOpts filters Instances.
type ListOpts struct {
	Workflow string
	State    workflow.RunState
	Limit    int
	Offset   int
}

// Instances lists runs.
func (c *Client) Instances(ctx context.Context, opts ListOpts) ([]*workflow.Run, error) {
	q := url.Values{}
	if opts.Workflow != "" {
		q.Set("workflow", opts.Workflow)
	}
	if opts.State != "" {
		q.Set("state", string(opts.State))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/v1/instances"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var runs []*workflow.Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Timeline fetches the step and wait history of a run.
func (c *Client) Timeline(ctx context.Context, runID id.RunID) ([]workflow.TimelineEntry, error) {
	var entries []workflow.TimelineEntry
	if err := c.do(ctx, http.MethodGet, "/v1/instances/"+runID.String()+"/timeline", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Deliver sends a named event with a JSON payload to a run.
func (c *Client) Deliver(ctx context.Context, runID id.RunID, name string, payload any) (*event.Event, error) {
	var evt event.Event
	path := fmt.Sprintf("/v1/instances/%s/events/%s", runID, url.PathEscape(name))
	if err := c.do(ctx, http.MethodPost, path, payload, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Cancel cancels a run and returns its final state.
func (c *Client) Cancel(ctx context.Context, runID id.RunID, reason string) (*workflow.Run, error) {
	var run workflow.Run
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/v1/instances/"+runID.String()+"/cancel", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
