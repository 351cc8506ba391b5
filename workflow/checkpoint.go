package workflow

import (
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// Checkpoint is the persisted record of one step. Exactly one of Data and
// Error is meaningful: a step that exhausted its retries stores Error and
// replays it on every later execution.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	StepName  string          `json:"step_name"`
	Data      []byte          `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Failed reports whether the checkpoint records a step failure.
func (c *Checkpoint) Failed() bool { return c.Error != "" }

// PendingEvent is a wait point inside a run. It is created the first time
// the body reaches the wait and its Deadline never moves afterwards.
type PendingEvent struct {
	RunID    id.RunID `json:"run_id"`
	StepName string   `json:"step_name"`

	// EventName is the awaited event. Empty for durable sleeps.
	EventName string    `json:"event_name,omitempty"`
	Deadline  time.Time `json:"deadline"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	TimedOut   bool       `json:"timed_out,omitempty"`
	Payload    []byte     `json:"payload,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Open reports whether the wait has not been resolved yet.
func (p *PendingEvent) Open() bool { return p.ResolvedAt == nil }
