// Package observability records run lifecycle metrics through
// OpenTelemetry. [MetricsExtension] is an ext.Extension; register it on
// the engine to count started, suspended, completed, failed and cancelled
// runs per workflow, and the runs each wake-up sweep drives.
//
// Per-attempt step metrics and spans live in the middleware package.
package observability
