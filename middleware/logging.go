package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Logging logs every step attempt at debug level and failed attempts at
// warn level.
func Logging(logger *slog.Logger) workflow.Interceptor {
	return func(ctx context.Context, info *workflow.StepInfo, next workflow.StepFunc) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("run_id", info.RunID.String()),
			slog.String("workflow", info.Workflow),
			slog.String("step", info.Step),
			slog.Int("attempt", info.Attempt),
			slog.Duration("elapsed", elapsed),
		}
		if err != nil {
			logger.WarnContext(ctx, "step attempt failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.DebugContext(ctx, "step attempt completed", attrs...)
		return nil
	}
}
