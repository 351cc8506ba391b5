// Package middleware provides step interceptors for the durable runtime.
//
// Each constructor returns a [workflow.Interceptor]. Interceptors wrap
// every attempt of every step that actually executes; replayed steps
// never reach them. Compose them with [workflow.Chain], first argument
// outermost:
//
//	runner := workflow.NewRunner(reg, st, st, exts, logger,
//	    workflow.WithInterceptor(workflow.Chain(
//	        middleware.Recover(logger),
//	        middleware.Tracing(),
//	        middleware.Metrics(),
//	        middleware.Logging(logger),
//	        middleware.Timeout(30*time.Second),
//	    )),
//	)
//
// # Built-in interceptors
//
//   - [Recover] turns a panicking step body into a step error
//   - [Logging] logs failed attempts and slow steps at debug level
//   - [Timeout] bounds each attempt
//   - [Tracing] wraps each attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome counters
package middleware
