package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Recover converts a panic in a step body into an error for that
// attempt. The error goes through the step's retry policy like any other.
func Recover(logger *slog.Logger) workflow.Interceptor {
	return func(ctx context.Context, info *workflow.StepInfo, next workflow.StepFunc) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step panicked",
					slog.String("run_id", info.RunID.String()),
					slog.String("workflow", info.Workflow),
					slog.String("step", info.Step),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in step %s: %v", info.Step, r)
			}
		}()
		return next(ctx)
	}
}
