package workflow

import (
	"errors"
	"fmt"
	"strings"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
)

var (
	// ErrSuspended unwinds a workflow body that reached an unresolved wait.
	// Bodies must return it unchanged.
	ErrSuspended = errors.New("workflow: suspended")

	// ErrCancelled unwinds a workflow body after an operator cancel.
	ErrCancelled = errors.New("workflow: cancelled")
)

// IsSuspended reports whether err carries ErrSuspended.
func IsSuspended(err error) bool { return errors.Is(err, ErrSuspended) }

// IsInterrupt reports whether err stops the body without being a failure
// of the body itself. Workflow code that handles step errors locally must
// still return these; see also Workflow.Interrupted.
func IsInterrupt(err error) bool {
	return errors.Is(err, ErrSuspended) || errors.Is(err, ErrCancelled)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the step retry loop gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// StepError is returned by a step that failed, either live after its
// retries were exhausted or on replay from its persisted record.
type StepError struct {
	Workflow string
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow %s step %q: %v", e.Workflow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// replayedError stands in for a failure read back from a checkpoint. It
// matches registered sentinels by message so errors.Is keeps working for
// admission errors after a restart.
type replayedError struct {
	msg string
}

func (e *replayedError) Error() string { return e.msg }

func (e *replayedError) Is(target error) bool {
	for _, s := range replayable {
		if target != s {
			continue
		}
		text := s.Error()
		if e.msg == text || strings.HasSuffix(e.msg, ": "+text) {
			return true
		}
	}
	return false
}

var replayable = []error{
	dealflow.ErrDuplicateNDA,
	dealflow.ErrInvestmentOutOfRange,
	dealflow.ErrExclusivityConflict,
	dealflow.ErrInvalidParams,
	dealflow.ErrInvalidTransition,
}

// RegisterReplayable lets errors.Is match sentinel errs against step
// failures replayed from the store. Call it from init.
func RegisterReplayable(errs ...error) {
	replayable = append(replayable, errs...)
}
