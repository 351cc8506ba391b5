// Package client is a Go client for the dealflow HTTP API.
//
// Usage:
//
//	c := client.New("https://deals.example.com", client.WithToken("..."))
//
//	run, err := c.StartWorkflow(ctx, nda.WorkflowName, params)
//	_, err = c.Deliver(ctx, run.ID, nda.EventCreatorReview, decision)
//	timeline, err := c.Timeline(ctx, run.ID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/backoff"
)

// Client talks to a remote dealflow server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger

	maxRetries int
	baseDelay  time.Duration
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default(),
		baseDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply. It matches the engine sentinel named in
// its message, so errors.Is(err, dealflow.ErrRunTerminal) works across
// the wire.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dealflow/client: %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the sentinel error the message refers to, if any.
func (e *APIError) Unwrap() error {
	for _, s := range sentinels {
		if strings.Contains(e.Message, s.Error()) {
			return s
		}
	}
	return nil
}

var sentinels = []error{
	dealflow.ErrWorkflowNotFound,
	dealflow.ErrRunNotFound,
	dealflow.ErrNDANotFound,
	dealflow.ErrDealNotFound,
	dealflow.ErrDuplicateNDA,
	dealflow.ErrInvestmentOutOfRange,
	dealflow.ErrExclusivityConflict,
	dealflow.ErrInvalidTransition,
	dealflow.ErrRunTerminal,
	dealflow.ErrRunAlreadyExists,
	dealflow.ErrInvalidParams,
}

type errorBody struct {
	Error string `json:"error"`
}

// do sends a request and decodes a JSON reply into out. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	status, data, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeReply(status, data, out)
}

// send issues a request, retrying transport errors and 5xx replies.
func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, fmt.Errorf("dealflow/client: marshal request: %w", err)
		}
	}

	delays := backoff.NewExponential(c.baseDelay, 10*c.baseDelay)
	for attempt := 0; ; attempt++ {
		status, data, err := c.roundTrip(ctx, method, path, payload)
		retryable := err != nil || status >= http.StatusInternalServerError
		if !retryable || attempt >= c.maxRetries {
			return status, data, err
		}

		wait := delays.Delay(attempt + 1)
		c.logger.Debug("retrying request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var r io.Reader
	if payload != nil {
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, fmt.Errorf("dealflow/client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("dealflow/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("dealflow/client: read reply: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decodeReply(status int, data []byte, out any) error {
	if status < 200 || status > 299 {
		var body errorBody
		if json.Unmarshal(data, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: status, Message: body.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("dealflow/client: decode reply: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
