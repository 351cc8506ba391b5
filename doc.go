// Package dealflow is a durable workflow engine for the deal lifecycle of a
// pitch marketplace. It drives NDA execution, investment commitments and
// production-company negotiations from first request to a terminal state,
// across human delays that last days and process restarts in between.
//
// The engine is a library. Import it, configure a store, and start
// workflows through the engine package:
//
//	eng, err := engine.New(pgStore,
//	    engine.WithLogger(logger),
//	    engine.WithNotifier(sender),
//	)
//	run, err := eng.StartWorkflow(ctx, nda.WorkflowName, params)
//	_, err = eng.Deliver(ctx, run.ID, nda.EventSignature, payload)
//
// # Architecture
//
// Every subsystem (workflow runtime, event buffer, the three deal domains)
// defines its own store interface. A single backend implements all of them;
// see store.Store. Workflow bodies are ordinary Go functions that call
// checkpointed steps, event waits and durable sleeps on a *workflow.Workflow.
// A suspended instance is only rows in the store; the runtime scheduler
// wakes it when an event arrives or its deadline passes.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package dealflow
