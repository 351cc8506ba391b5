package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

// RunnerFunc is a type-erased workflow body that accepts raw JSON input.
type RunnerFunc func(wf *Workflow, input []byte) error

// ValidateFunc checks raw JSON input before a run is created.
type ValidateFunc func(input []byte) error

type entry struct {
	runner   RunnerFunc
	validate ValidateFunc
	cancel   RunnerFunc
}

// Registry maps workflow names to runner functions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a typed definition. The handler is wrapped in a closure
// that JSON-decodes the input into T. Registering a name twice replaces
// the earlier definition.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, def *Definition[T]) {
	decode := func(input []byte) (T, error) {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return t, fmt.Errorf("%w: workflow %q: %v", dealflow.ErrInvalidParams, def.Name, err)
			}
		}
		return t, nil
	}

	e := entry{
		runner: func(wf *Workflow, input []byte) error {
			t, err := decode(input)
			if err != nil {
				return Permanent(err)
			}
			return def.Handler(wf, t)
		},
		validate: func(input []byte) error {
			t, err := decode(input)
			if err != nil {
				return err
			}
			if def.Validate == nil {
				return nil
			}
			if vErr := def.Validate(t); vErr != nil {
				return fmt.Errorf("%w: %w", dealflow.ErrInvalidParams, vErr)
			}
			return nil
		},
	}

	if def.OnCancel != nil {
		e.cancel = func(wf *Workflow, input []byte) error {
			t, err := decode(input)
			if err != nil {
				return err
			}
			return def.OnCancel(wf, t)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = e
}

// Get returns the runner for the given workflow name.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.runner, ok
}

func (r *Registry) getCancel(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.cancel, ok && e.cancel != nil
}

// Validate checks input against the named workflow's decoder and
// validator.
func (r *Registry) Validate(name string, input []byte) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", dealflow.ErrWorkflowNotFound, name)
	}
	return e.validate(input)
}

// Names returns all registered workflow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
