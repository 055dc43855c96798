// Package stores persists run history in SQLite. The store implements
// engine.RunRecorder, so an executor wired with it records every run,
// plan step, and event for later inspection. Schema changes ship as
// embedded migrations.
package stores
