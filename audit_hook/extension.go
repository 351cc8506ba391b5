package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/ext"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.RunStarted    = (*Extension)(nil)
	_ ext.RunSuspended  = (*Extension)(nil)
	_ ext.RunCompleted  = (*Extension)(nil)
	_ ext.RunFailed     = (*Extension)(nil)
	_ ext.RunCancelled  = (*Extension)(nil)
	_ ext.StepCompleted = (*Extension)(nil)
	_ ext.StepFailed    = (*Extension)(nil)
)

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Category   string         `json:"category"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Workflow   string         `json:"workflow"`
	Status     string         `json:"status,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error { return f(ctx, event) }

// LogRecorder writes audit events as log records.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a LogRecorder writing to logger.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("action", evt.Action),
		slog.String("run_id", evt.ResourceID),
		slog.String("workflow", evt.Workflow),
		slog.String("outcome", evt.Outcome),
	}
	if evt.Status != "" {
		attrs = append(attrs, slog.String("status", evt.Status))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	for k, v := range evt.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// Extension turns lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil enables all
	logger   *slog.Logger
}

// New creates an Extension that sends events to r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{recorder: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, r, ActionRunStarted, CategoryRun, SeverityInfo, OutcomeSuccess, nil, nil)
}

// OnRunSuspended implements ext.RunSuspended.
func (e *Extension) OnRunSuspended(ctx context.Context, r *workflow.Run, wait string) error {
	meta := map[string]any{"wait": wait}
	if r.WakeAt != nil {
		meta["wake_at"] = r.WakeAt.UTC().Format(time.RFC3339)
	}
	return e.record(ctx, r, ActionRunSuspended, CategoryRun, SeverityInfo, OutcomeSuccess, nil, meta)
}

// OnRunCompleted implements ext.RunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, r, ActionRunCompleted, CategoryRun, SeverityInfo, OutcomeSuccess, nil,
		map[string]any{"elapsed_ms": elapsed.Milliseconds()})
}

// OnRunFailed implements ext.RunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, r, ActionRunFailed, CategoryRun, SeverityCritical, OutcomeFailure, runErr, nil)
}

// OnRunCancelled implements ext.RunCancelled.
func (e *Extension) OnRunCancelled(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, r, ActionRunCancelled, CategoryRun, SeverityWarning, OutcomeSuccess, nil,
		map[string]any{"cancel_reason": r.CancelReason})
}

// OnStepCompleted implements ext.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, r *workflow.Run, step string, elapsed time.Duration) error {
	return e.record(ctx, r, ActionStepCompleted, CategoryStep, SeverityInfo, OutcomeSuccess, nil,
		map[string]any{"step": step, "elapsed_ms": elapsed.Milliseconds()})
}

// OnStepFailed implements ext.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, r *workflow.Run, step string, stepErr error) error {
	return e.record(ctx, r, ActionStepFailed, CategoryStep, SeverityWarning, OutcomeFailure, stepErr,
		map[string]any{"step": step})
}

func (e *Extension) record(
	ctx context.Context,
	r *workflow.Run,
	action, category, severity, outcome string,
	err error,
	meta map[string]any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if err != nil {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Category:   category,
		Resource:   ResourceRun,
		ResourceID: r.ID.String(),
		Workflow:   r.Name,
		Status:     r.Status,
		Reason:     r.Reason,
		Outcome:    outcome,
		Severity:   severity,
		Metadata:   meta,
	}
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit event not recorded",
			slog.String("action", action),
			slog.String("run_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
