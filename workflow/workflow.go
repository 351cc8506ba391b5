package workflow

// Definition is a typed workflow definition with a handler function.
// T is the input type and must be JSON-serializable; it is stored as
// Run.Input and decoded again on every execution.
type Definition[T any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Handler is the workflow body. It is re-executed from the top every
	// time the run resumes, so everything outside steps must be pure.
	Handler func(wf *Workflow, input T) error

	// Validate, when set, checks the input before a run is created.
	Validate func(input T) error

	// OnCancel, when set, runs after the compensations of a cancelled
	// run. Its steps bypass the cancellation gate.
	OnCancel func(wf *Workflow, input T) error
}

// NewWorkflow creates a typed workflow definition.
func NewWorkflow[T any](name string, handler func(wf *Workflow, input T) error) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}
