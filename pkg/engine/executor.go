package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmend/openmend/pkg/telemetry"
)

// RunRecorder persists run history. The executor treats recording as
// best effort: recorder failures are logged and never affect the run.
type RunRecorder interface {
	// RecordRunStarted persists the start of a run and its plan.
	RecordRunStarted(ctx context.Context, runID string, plan *ExecutionPlan) error

	// RecordResourceResult persists the outcome of one plan step.
	RecordResourceResult(ctx context.Context, runID string, r *Resource, op Operation, status string, opErr error) error

	// RecordRunFinished persists the final result of a run.
	RecordRunFinished(ctx context.Context, runID string, result RunResult) error
}

// Options tunes a single run. Force and Pull are tri-state: nil leaves
// each resource's own flag alone, a non-nil value overrides it for every
// resource in the plan. ContinueOnFailure overrides the workspace
// continue-on-failure policy the same way.
type Options struct {
	// DryRun logs the plan without touching the backend.
	DryRun bool

	// AutoConfirm skips the confirmation step.
	AutoConfirm bool

	// Force overrides Resource.Force for the whole plan when set.
	Force *bool

	// Pull overrides Resource.Pull for the whole plan when set.
	Pull *bool

	// ContinueOnFailure overrides the workspace policy when set.
	ContinueOnFailure *bool
}

// Executor walks an execution plan in order, single-threaded, invoking
// the driver for each resource with a shared lazily-built backend
// client. Driver failures never escape as run errors; they show up in
// the RunResult counts and the per-resource logs.
type Executor struct {
	// Drivers resolves resource types to drivers.
	Drivers *DriverRegistry

	// NewClient builds the shared backend client on first use. The
	// handle is cached for the lifetime of the Executor.
	NewClient ClientFactory

	// Confirmer approves plans that are not auto-confirmed. When nil,
	// unconfirmed plans are treated as declined.
	Confirmer Confirmer

	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	events   *telemetry.EventPublisher
	recorder RunRecorder

	clientOnce sync.Once
	client     any
	clientErr  error
}

// NewExecutor creates an executor over the given drivers and client
// factory.
func NewExecutor(drivers *DriverRegistry, newClient ClientFactory) *Executor {
	return &Executor{Drivers: drivers, NewClient: newClient}
}

// WithConfirmer attaches the plan confirmer.
func (e *Executor) WithConfirmer(c Confirmer) *Executor {
	e.Confirmer = c
	return e
}

// WithLogger attaches a logger; the executor logs through a child
// component logger.
func (e *Executor) WithLogger(logger *telemetry.Logger) *Executor {
	if logger != nil {
		e.logger = logger.NewComponentLogger("executor")
	}
	return e
}

// WithMetrics attaches the telemetry metrics collector.
func (e *Executor) WithMetrics(m *telemetry.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithTracer attaches an OpenTelemetry tracer for run and step spans.
func (e *Executor) WithTracer(t *telemetry.Tracer) *Executor {
	e.tracer = t
	return e
}

// WithEvents attaches an event publisher for run and step events.
func (e *Executor) WithEvents(ep *telemetry.EventPublisher) *Executor {
	e.events = ep
	return e
}

// WithRecorder attaches a run-history recorder.
func (e *Executor) WithRecorder(r RunRecorder) *Executor {
	e.recorder = r
	return e
}

// Run executes a plan. An empty plan, a dry run, and a declined
// confirmation all return the zero RunResult with no error and no
// backend calls. Otherwise every resource in the plan counts as
// attempted; a failed step either stops the run (returning the partial
// result) or is skipped past, depending on the continue-on-failure
// policy for the plan's operation.
func (e *Executor) Run(ctx context.Context, plan *ExecutionPlan, opts Options) (RunResult, error) {
	var result RunResult
	if plan.Empty() {
		return result, nil
	}
	if err := plan.Operation.Validate(); err != nil {
		return result, err
	}

	log := e.log()
	op := plan.Operation

	if opts.DryRun {
		log.Infof("dry run: %s plan with %d resources", op, plan.Len())
		for i, r := range plan.Resources {
			log.Infof("  %d. %s %s", i+1, op, r)
		}
		return result, nil
	}

	if !opts.AutoConfirm {
		if e.Confirmer == nil {
			log.Warnf("%s plan has no confirmer and auto confirm is off, skipping run", op)
			return result, nil
		}
		ok, err := e.Confirmer.Confirm(ctx, plan)
		if err != nil {
			return result, NewPermanentError("confirming plan", err)
		}
		if !ok {
			log.Infof("%s plan declined, skipping run", op)
			return result, nil
		}
	}

	runID := uuid.New().String()
	log = log.WithRunID(runID)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartRunSpan(ctx, runID)
		defer span.End()
	}
	if e.metrics != nil {
		e.metrics.RecordRunStarted(string(op))
		start := time.Now()
		defer func() {
			status := "complete"
			if !result.Complete() {
				status = "partial"
			}
			e.metrics.RecordRunCompleted(status, time.Since(start))
		}()
	}
	e.record(ctx, log, func() error {
		if e.recorder == nil {
			return nil
		}
		return e.recorder.RecordRunStarted(ctx, runID, plan)
	})

	result.Attempted = plan.Len()
	log.Infof("running %s plan with %d resources", op, result.Attempted)
	if e.events != nil {
		_ = e.events.PublishRunStarted(runID, string(op), result.Attempted)
	}

	for _, r := range plan.Resources {
		if opts.Force != nil {
			r.Force = *opts.Force
		}
		if opts.Pull != nil {
			r.Pull = *opts.Pull
		}

		err := e.applyResource(ctx, r, op, runID)
		status := "success"
		if err != nil {
			status = "failure"
		}
		if e.metrics != nil {
			e.metrics.RecordResourceApplied(string(op), status, r.Type)
			if err != nil {
				e.metrics.RecordError(string(classOf(err)))
			}
		}
		e.record(ctx, log, func() error {
			if e.recorder == nil {
				return nil
			}
			return e.recorder.RecordResourceResult(ctx, runID, r, op, status, err)
		})

		if err == nil {
			result.Succeeded++
			if e.events != nil {
				_ = e.events.PublishResourceApplied(runID, r.String(), string(op))
			}
			continue
		}
		if e.events != nil {
			_ = e.events.PublishResourceFailed(runID, r.String(), string(op), err.Error())
		}
		log.WithError(err).Errorf("%s failed for %s", op, r)
		if !e.continueOnFailure(r, op, opts) {
			break
		}
		log.Warnf("continuing %s run past failed resource %s", op, r)
	}

	if result.Succeeded != result.Attempted {
		log.Warnf("%s run incomplete: %d of %d resources succeeded",
			op, result.Succeeded, result.Attempted)
		if e.metrics != nil {
			e.metrics.RecordReconcileMismatch(string(op))
		}
	} else {
		log.Infof("%s run complete: %d resources", op, result.Succeeded)
	}
	if e.events != nil {
		_ = e.events.PublishRunCompleted(runID, result.Attempted, result.Succeeded)
	}
	e.record(ctx, log, func() error {
		if e.recorder == nil {
			return nil
		}
		return e.recorder.RecordRunFinished(ctx, runID, result)
	})
	return result, nil
}

// applyResource runs one plan step. A (false, nil) driver return is
// reported as a driver failure so declined operations are visible in
// the result counts.
func (e *Executor) applyResource(ctx context.Context, r *Resource, op Operation, runID string) error {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartResourceSpan(ctx, runID, r.String(), string(op))
		defer span.End()
	}

	driver, err := e.Drivers.Get(r.Type)
	if err != nil {
		return err
	}
	client, err := e.backendClient(ctx)
	if err != nil {
		return err
	}

	var done bool
	switch op {
	case OperationCreate:
		done, err = driver.Create(ctx, r, client)
	case OperationRead:
		var state any
		state, err = driver.Read(ctx, r, client)
		if err == nil {
			r.ActiveSnapshot = state
			done = true
		}
	case OperationUpdate:
		done, err = driver.Update(ctx, r, client)
	case OperationDelete:
		done, err = driver.Delete(ctx, r, client)
	default:
		return NewPermanentError(fmt.Sprintf("invalid operation: %q", string(op)), nil).
			WithCode(ErrCodeValidation)
	}
	if err != nil {
		return NewPermanentError(fmt.Sprintf("%s %s", op, r), err).
			WithCode(ErrCodeDriverFailed).
			WithResource(r.String()).
			WithOperation(op)
	}
	if !done {
		return NewPermanentError(fmt.Sprintf("driver declined %s for %s", op, r), nil).
			WithCode(ErrCodeDriverFailed).
			WithResource(r.String()).
			WithOperation(op)
	}
	return nil
}

// backendClient returns the shared client, building it on first use.
func (e *Executor) backendClient(ctx context.Context) (any, error) {
	e.clientOnce.Do(func() {
		if e.NewClient == nil {
			return
		}
		e.client, e.clientErr = e.NewClient(ctx)
	})
	if e.clientErr != nil {
		return nil, NewTransientError("building backend client", e.clientErr)
	}
	return e.client, nil
}

// continueOnFailure resolves the continue policy for a failed step: the
// run option wins when set, otherwise the workspace settings decide.
func (e *Executor) continueOnFailure(r *Resource, op Operation, opts Options) bool {
	if opts.ContinueOnFailure != nil {
		return *opts.ContinueOnFailure
	}
	return r.Settings.ContinueOn(op)
}

// record runs a recorder call and logs failures without failing the run.
func (e *Executor) record(_ context.Context, log *telemetry.Logger, fn func() error) {
	if err := fn(); err != nil {
		log.WithError(err).Warn("recording run history failed")
	}
}

func (e *Executor) log() *telemetry.Logger {
	if e.logger != nil {
		return e.logger
	}
	return telemetry.NopLogger()
}
