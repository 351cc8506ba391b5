// Package engine wires the deal workflow engine together and is the
// application-level API for starting, driving and inspecting workflow
// runs.
//
// The engine sits above every subsystem package: the root package defines
// shared types that workflow, nda, investment and production import, so
// the composition happens here rather than there.
//
// # Building an Engine
//
//	st := memory.New()
//	eng, err := engine.New(st,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithCache(cache.NewRedis(rdb)),
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(logger))),
//	)
//
// New registers the nda, investment and production workflows, installs
// the default step interceptors (recover, tracing, metrics, logging,
// timeout) and the wake-due-instances scheduler entry.
//
// # Lifecycle
//
//	eng.Start(ctx) // resume orphaned runs, start the scheduler
//	defer eng.Stop(ctx)
//
//	run, err := eng.StartWorkflow(ctx, nda.WorkflowName, params)
//	_, err = eng.Deliver(ctx, run.ID, nda.EventSignature, payload)
//
// # Options
//
//   - [WithConfig], [WithLogger], [WithClock], [WithOwner]
//   - [WithExtension], [WithInterceptor]
//   - [WithDocuments], [WithNotifier], [WithSigner], [WithPayments], [WithCache]
//   - [WithRetry]
//   - [WithTracerProvider], [WithMeterProvider]
package engine
