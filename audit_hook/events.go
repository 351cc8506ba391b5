package audithook

// Audit actions, one per lifecycle hook.
const (
	ActionRunStarted    = "run.started"
	ActionRunSuspended  = "run.suspended"
	ActionRunCompleted  = "run.completed"
	ActionRunFailed     = "run.failed"
	ActionRunCancelled  = "run.cancelled"
	ActionStepCompleted = "step.completed"
	ActionStepFailed    = "step.failed"
)

// Categories group actions.
const (
	CategoryRun  = "dealflow.run"
	CategoryStep = "dealflow.step"
)

// ResourceRun is the resource type of every event.
const ResourceRun = "workflow_run"

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AllActions returns every action the extension emits.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunSuspended,
		ActionRunCompleted,
		ActionRunFailed,
		ActionRunCancelled,
		ActionStepCompleted,
		ActionStepFailed,
	}
}
