// Package ext is the extension system of the deal engine.
//
// Extensions observe the lifecycle of workflow runs and steps. Each hook
// is its own interface, so an extension implements only the events it
// cares about:
//
//	type slowSteps struct{ logger *slog.Logger }
//
//	func (s *slowSteps) Name() string { return "slow-steps" }
//
//	func (s *slowSteps) OnStepCompleted(ctx context.Context, r *workflow.Run, step string, elapsed time.Duration) error {
//	    if elapsed > time.Second {
//	        s.logger.Warn("slow step", "run_id", r.ID.String(), "step", step)
//	    }
//	    return nil
//	}
//
// # Run hooks
//
//   - [RunStarted]
//   - [RunSuspended]: the run parked on an event wait or a sleep
//   - [RunCompleted]
//   - [RunFailed]
//   - [RunCancelled]
//
// # Step hooks
//
//   - [StepCompleted]
//   - [StepFailed]: an attempt failed; the step may still be retried
//
// # Engine hooks
//
//   - [SweepCompleted]: the periodic wake-up sweep finished a pass
//   - [Shutdown]
//
// The [Registry] satisfies workflow.RunEmitter and fans each event out to
// the extensions implementing the matching hook. Hook errors are logged
// and never reach the run.
package ext
