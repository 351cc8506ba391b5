package middleware

import (
	"context"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Timeout bounds each step attempt by d. A step that already carries a
// sooner deadline keeps it. Zero disables the interceptor.
func Timeout(d time.Duration) workflow.Interceptor {
	return func(ctx context.Context, _ *workflow.StepInfo, next workflow.StepFunc) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
