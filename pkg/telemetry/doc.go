// Package telemetry provides logging, tracing, metrics, and events for
// the OpenMend engine.
//
// Logging is built on zerolog with structured fields for run and
// resource context. Tracing uses OpenTelemetry with OTLP and stdout
// exporters; spans cover plan computation, runs, and individual plan
// steps. Metrics are exposed through Prometheus (plans built, runs
// started and completed, resources applied, reconcile mismatches, error
// classes). Events fan run and resource outcomes out to in-process
// subscribers.
//
// All components degrade to safe no-ops when disabled, so engine code
// can call them unconditionally.
package telemetry
