package workflow

import (
	"context"

	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// StepFunc is one attempt of a step body.
type StepFunc func(ctx context.Context) error

// StepInfo describes the step attempt an interceptor wraps.
type StepInfo struct {
	RunID    id.RunID
	Workflow string
	Step     string
	Attempt  int
}

// Interceptor wraps every step attempt. It must call next exactly once
// unless it decides to fail the attempt.
type Interceptor func(ctx context.Context, info *StepInfo, next StepFunc) error

// Chain composes interceptors so the first is outermost.
func Chain(interceptors ...Interceptor) Interceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}
	return func(ctx context.Context, info *StepInfo, next StepFunc) error {
		h := next
		for i := len(interceptors) - 1; i >= 0; i-- {
			ic, inner := interceptors[i], h
			h = func(ctx context.Context) error { return ic(ctx, info, inner) }
		}
		return h(ctx)
	}
}
