// Package workflow is the durable step runtime. It hosts long-running,
// event-driven workflow instances that survive process restarts by
// checkpointing every step result and every event resolution before
// control returns to the workflow body.
//
// # Defining a Workflow
//
//	var Approval = workflow.NewWorkflow("approval",
//	    func(wf *workflow.Workflow, in Request) error {
//	        if err := wf.Step("record", func(ctx context.Context) error {
//	            return db.Insert(ctx, in)
//	        }, workflow.WithRetry(workflow.DefaultRetry)); err != nil {
//	            return err
//	        }
//
//	        evt, err := wf.WaitForEvent("decision", 72*time.Hour)
//	        if err != nil {
//	            return err
//	        }
//	        if evt == nil {
//	            wf.SetOutcome("REJECTED", "No decision within 72 hours")
//	            return nil
//	        }
//	        ...
//	    },
//	)
//
// # Suspension
//
// WaitForEvent, Sleep and SleepUntil never block a goroutine. When the
// awaited event or deadline is not there yet they persist a PendingEvent
// and unwind the body with ErrSuspended; the Runner marks the run waiting
// and releases it. A later delivery or a scheduler sweep re-executes the
// body, every completed step replays from its checkpoint, and execution
// continues at the first unresolved point. Bodies must therefore keep all
// I/O inside steps and propagate errors from runtime calls unchanged.
//
// # State Machine
//
// A [Run] moves through these states:
//
//	running → waiting → running → ... → completed | failed | cancelled
//
// # Key Types
//
//   - [Definition]: typed workflow descriptor with Name and Handler
//   - [Run]: one workflow instance
//   - [Checkpoint]: one step record keyed by (run, step name)
//   - [PendingEvent]: an open or resolved wait point
//   - [Runner]: starts, wakes, resumes and cancels runs
package workflow
