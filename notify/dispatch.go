package notify

import (
	"context"
	"log/slog"

	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// Dispatch sends n from inside a workflow as the checkpointed step
// "notify:<step>", numbered when the same step name repeats. Delivery failures are logged and swallowed; only
// interrupts of the run are returned, and the body must pass them on.
func Dispatch(wf *workflow.Workflow, sender Sender, step string, n Notification, opts ...workflow.StepOption) error {
	err := wf.Step(wf.UniqueName("notify:"+step), func(ctx context.Context) error {
		return sender.Send(ctx, n)
	}, opts...)
	if err == nil {
		return nil
	}
	if wf.Interrupted(err) {
		return err
	}
	wf.Logger().Warn("notification failed",
		slog.String("step", step),
		slog.String("type", n.Type),
		slog.String("recipient", n.RecipientID),
		slog.String("error", err.Error()),
	)
	return nil
}
