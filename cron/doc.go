// Package cron runs named maintenance tasks on cron schedules.
//
// The engine registers one entry, wake-due-instances, that drives every
// workflow run whose wait deadline passed or whose awaited event arrived.
// Schedules use the five-field cron syntax or descriptors such as
// "@every 1s" and "@daily".
//
// Entries live in process. Running the scheduler in several processes is
// safe for the engine's entries because each run is driven under its own
// lease; a process that loses the lease race skips the run.
//
// An entry never overlaps itself: a tick that finds the previous
// execution still running skips the entry and reschedules it.
package cron
