package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CavellTopDev/pitchey-app-sub015/backoff"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

// RetryPolicy bounds how a step is re-attempted after an error.
type RetryPolicy struct {
	// Limit is the maximum number of attempts. Values below 2 disable
	// retrying.
	Limit int `json:"limit"`
	// Backoff selects the delay growth between attempts.
	Backoff backoff.Kind `json:"backoff"`
	// Delay is the base delay between attempts.
	Delay time.Duration `json:"delay"`
	// MaxDelay caps the delay. Zero means uncapped.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
}

// DefaultRetry is the policy used by collaborator calls that do not pick
// their own.
var DefaultRetry = RetryPolicy{
	Limit:    3,
	Backoff:  backoff.KindExponential,
	Delay:    time.Second,
	MaxDelay: 30 * time.Second,
}

type stepConfig struct {
	retry   RetryPolicy
	timeout time.Duration
}

// StepOption configures a single step.
type StepOption func(*stepConfig)

// WithRetry sets the retry policy of a step. Steps without it run once.
func WithRetry(p RetryPolicy) StepOption {
	return func(c *stepConfig) { c.retry = p }
}

// WithTimeout bounds each attempt of a step.
func WithTimeout(d time.Duration) StepOption {
	return func(c *stepConfig) { c.timeout = d }
}

func newStepConfig(opts []StepOption) stepConfig {
	cfg := stepConfig{retry: RetryPolicy{Limit: 1}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Step executes a named step function. If a checkpoint exists for this
// step name the function is skipped and the recorded outcome is returned:
// nil for a completed step, a *StepError for a step that failed for good.
// Otherwise fn is attempted according to the step's retry policy and the
// outcome is checkpointed before Step returns.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error, opts ...StepOption) error {
	_, err := w.execute(w.ctx, name, opts, func(ctx context.Context) ([]byte, error) {
		return nil, fn(ctx)
	})
	return err
}

// StepWithResult executes a named step that returns a typed value. The
// result is encoded with the runner's codec and saved as the checkpoint.
// On replay the cached result is decoded and returned without calling fn.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func StepWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error), opts ...StepOption) (T, error) {
	var zero T

	data, err := w.execute(w.ctx, name, opts, func(ctx context.Context) ([]byte, error) {
		v, fnErr := fn(ctx)
		if fnErr != nil {
			return nil, fnErr
		}
		b, encErr := w.codec.Marshal(v)
		if encErr != nil {
			return nil, Permanent(fmt.Errorf("encode result: %w", encErr))
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}

	var result T
	if decErr := w.codec.Unmarshal(data, &result); decErr != nil {
		return zero, fmt.Errorf("workflow %s: decode checkpoint %q: %w", w.run.Name, name, decErr)
	}
	return result, nil
}

// execute is the checkpoint-or-run core shared by every step flavor.
func (w *Workflow) execute(
	ctx context.Context,
	name string,
	opts []StepOption,
	fn func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	cp, err := w.store.GetCheckpoint(ctx, w.run.ID, name)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if cp != nil {
		if cp.Failed() {
			return nil, &StepError{
				Workflow: w.run.Name,
				Step:     name,
				Err:      &replayedError{msg: cp.Error},
			}
		}
		w.logger.Debug("replaying checkpointed step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return cp.Data, nil
	}

	if cancelErr := w.checkCancel(); cancelErr != nil {
		return nil, cancelErr
	}

	cfg := newStepConfig(opts)
	strategy := backoff.ForKind(cfg.retry.Backoff, cfg.retry.Delay, cfg.retry.MaxDelay)
	info := &StepInfo{RunID: w.run.ID, Workflow: w.run.Name, Step: name}

	var (
		data    []byte
		stepErr error
	)
	start := time.Now()
	for attempt := 1; ; attempt++ {
		info.Attempt = attempt
		data, stepErr = w.attempt(ctx, info, cfg.timeout, fn)
		if stepErr == nil || !retryable(ctx, stepErr) || attempt >= cfg.retry.Limit {
			break
		}

		delay := strategy.Delay(attempt)
		w.logger.Warn("retrying step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", stepErr.Error()),
		)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
	elapsed := time.Since(start)

	if stepErr != nil {
		// Interrupted attempts leave no record so the step runs again on
		// the next execution.
		if IsInterrupt(stepErr) || ctx.Err() != nil {
			return nil, stepErr
		}

		w.emitter.EmitStepFailed(w.ctx, w.run, name, stepErr)
		failed := &Checkpoint{
			ID:        id.NewCheckpointID(),
			RunID:     w.run.ID,
			StepName:  name,
			Error:     stepErr.Error(),
			CreatedAt: w.clock.Now().UTC(),
		}
		if saveErr := w.store.SaveCheckpoint(ctx, failed); saveErr != nil {
			return nil, fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
		}
		return nil, &StepError{
			Workflow: w.run.Name,
			Step:     name,
			Attempts: info.Attempt,
			Err:      stepErr,
		}
	}

	done := &Checkpoint{
		ID:        id.NewCheckpointID(),
		RunID:     w.run.ID,
		StepName:  name,
		Data:      data,
		CreatedAt: w.clock.Now().UTC(),
	}
	if saveErr := w.store.SaveCheckpoint(ctx, done); saveErr != nil {
		return nil, fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return data, nil
}

// attempt runs fn once through the interceptor chain.
func (w *Workflow) attempt(
	ctx context.Context,
	info *StepInfo,
	timeout time.Duration,
	fn func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var data []byte
	call := func(ctx context.Context) error {
		d, err := fn(ctx)
		data = d
		return err
	}

	var err error
	if w.interceptor != nil {
		err = w.interceptor(ctx, info, call)
	} else {
		err = call(ctx)
	}
	return data, err
}

func retryable(ctx context.Context, err error) bool {
	return !IsPermanent(err) && !IsInterrupt(err) && ctx.Err() == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Parallel executes multiple step functions concurrently using errgroup.
// If any step fails, the others are cancelled and the first error is
// returned. Each sub-step is checkpointed as "parallel:<group>:<index>"
// so a resumed run only re-executes the ones that did not finish.
func (w *Workflow) Parallel(groupName string, steps ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(w.ctx)

	for i, step := range steps {
		stepName := fmt.Sprintf("parallel:%s:%d", groupName, i)
		g.Go(func() error {
			_, err := w.execute(gctx, stepName, nil, func(ctx context.Context) ([]byte, error) {
				return nil, step(ctx)
			})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if IsInterrupt(err) {
			return err
		}
		return fmt.Errorf("workflow %s parallel %q: %w", w.run.Name, groupName, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Saga compensations
// ──────────────────────────────────────────────────

type compensation struct {
	step string
	fn   func(ctx context.Context) error
	opts []StepOption
}

// StepWithCompensation executes a named step and, once it succeeded,
// registers compensate to undo it. Registration happens on replay as
// well, so compensations survive restarts.
func (w *Workflow) StepWithCompensation(
	name string,
	fn func(ctx context.Context) error,
	compensate func(ctx context.Context) error,
	opts ...StepOption,
) error {
	if err := w.Step(name, fn, opts...); err != nil {
		return err
	}
	w.compensations = append(w.compensations, compensation{step: name, fn: compensate, opts: opts})
	return nil
}

// StepWithResultAndCompensation is the typed variant of
// StepWithCompensation.
func StepWithResultAndCompensation[T any](
	w *Workflow,
	name string,
	fn func(ctx context.Context) (T, error),
	compensate func(ctx context.Context) error,
	opts ...StepOption,
) (T, error) {
	result, err := StepWithResult(w, name, fn, opts...)
	if err != nil {
		return result, err
	}
	w.compensations = append(w.compensations, compensation{step: name, fn: compensate, opts: opts})
	return result, nil
}

// Compensations returns how many compensations are registered.
func (w *Workflow) Compensations() int { return len(w.compensations) }

// RunCompensations runs the registered compensations in reverse order as
// ordinary steps named "compensate:<step>". Each runs at most once per
// run. Failures are collected and returned together after every
// compensation was attempted.
func (w *Workflow) RunCompensations() error {
	w.compensating = true
	defer func() { w.compensating = false }()

	var errs []error
	for i := len(w.compensations) - 1; i >= 0; i-- {
		c := w.compensations[i]
		if err := w.Step("compensate:"+c.step, c.fn, c.opts...); err != nil {
			if w.ctx.Err() != nil {
				return err
			}
			w.logger.Error("compensation failed",
				slog.String("run_id", w.run.ID.String()),
				slog.String("step", c.step),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	w.compensations = nil
	return errors.Join(errs...)
}
