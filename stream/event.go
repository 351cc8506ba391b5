// Package stream fans run lifecycle events out to live subscribers. The
// Broker is an ext.Extension, so every hook the runner emits reaches the
// subscribers of the matching topics.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunSuspended EventType = "run.suspended"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunCancelled EventType = "run.cancelled"

	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"

	EventSweepCompleted EventType = "sweep.completed"
)

// Terminal reports whether no further events follow t for the same run.
func (t EventType) Terminal() bool {
	switch t {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	default:
		return false
	}
}

// Event is the envelope sent to subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// RunEventData is the payload of run and step events.
type RunEventData struct {
	RunID     string `json:"run_id"`
	Workflow  string `json:"workflow"`
	State     string `json:"state"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Step      string `json:"step,omitempty"`
	Wait      string `json:"wait,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SweepEventData is the payload of sweep events.
type SweepEventData struct {
	Driven    int   `json:"driven"`
	ElapsedMs int64 `json:"elapsed_ms"`
}
