package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/CavellTopDev/pitchey-app-sub015/stream"
)

const keepaliveInterval = 15 * time.Second

// streamInstance sends a snapshot of the run followed by its lifecycle
// events as server-sent events. The stream ends after a terminal event.
func (a *API) streamInstance(c echo.Context) error {
	runID, err := runIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	// Subscribe before the snapshot so no event falls between them.
	subID := "sse-" + uuid.NewString()
	sub := a.eng.Stream().Subscribe(subID, stream.RunTopic(runID.String()))
	defer a.eng.Stream().RemoveSubscriber(subID)

	run, err := a.eng.Instance(ctx, runID)
	if err != nil {
		return err
	}

	startSSE(c)
	if err := writeSSE(c, "snapshot", run); err != nil {
		return nil
	}
	if run.State.IsTerminal() {
		return nil
	}
	return a.pump(c, sub, true)
}

// streamTopic streams every event of a topic, such as runs or
// workflow:nda, until the client goes away.
func (a *API) streamTopic(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		topic = stream.TopicRuns
	}
	if err := stream.ValidateTopic(topic); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	subID := "sse-" + uuid.NewString()
	sub := a.eng.Stream().Subscribe(subID, topic)
	defer a.eng.Stream().RemoveSubscriber(subID)

	startSSE(c)
	return a.pump(c, sub, false)
}

func (a *API) pump(c echo.Context, sub *stream.Subscriber, stopOnTerminal bool) error {
	ctx := c.Request().Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(c.Response(), ": keepalive\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := writeSSE(c, string(evt.Type), evt); err != nil {
				return nil
			}
			if stopOnTerminal && evt.Type.Terminal() {
				return nil
			}
		}
	}
}

func startSSE(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

func writeSSE(c echo.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
