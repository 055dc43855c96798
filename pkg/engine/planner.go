package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmend/openmend/pkg/telemetry"
)

// Planner turns a catalog into an execution plan for one operation. The
// pipeline is flatten, install-order sort, dedup, dependency resolve;
// any selection error (invalid operation, malformed entry, app expansion
// failure, dependency cycle) aborts planning before execution starts.
type Planner struct {
	// Table maps resource types to install priorities. A nil table
	// gives every type DefaultInstallOrder, so declaration order wins.
	Table InstallOrderTable

	logger  *telemetry.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

// NewPlanner creates a planner with the given install order table.
func NewPlanner(table InstallOrderTable) *Planner {
	return &Planner{Table: table}
}

// WithLogger attaches a logger; the planner logs through a child
// component logger.
func (p *Planner) WithLogger(logger *telemetry.Logger) *Planner {
	if logger != nil {
		p.logger = logger.NewComponentLogger("planner")
	}
	return p
}

// WithTracer attaches an OpenTelemetry tracer for plan spans.
func (p *Planner) WithTracer(tracer *telemetry.Tracer) *Planner {
	p.tracer = tracer
	return p
}

// WithMetrics attaches the telemetry metrics collector.
func (p *Planner) WithMetrics(m *telemetry.Metrics) *Planner {
	p.metrics = m
	return p
}

// Plan computes the execution plan for an operation over the catalog,
// restricted by the filter. The returned plan is duplicate-free and
// dependency-ordered: for create and update every dependency precedes
// its dependents, for delete every dependent precedes its dependencies.
// Planning never mutates the catalog.
func (p *Planner) Plan(ctx context.Context, catalog *Catalog, f Filter, op Operation) (*ExecutionPlan, error) {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.StartPlanSpan(ctx, string(op))
		defer span.End()
	}
	_ = ctx

	if catalog == nil {
		return nil, NewPermanentError("catalog is nil", nil).
			WithCode(ErrCodeValidation)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	resources, err := catalog.Flatten(op, f)
	if err != nil {
		return nil, err
	}

	resources = SortByInstallOrder(resources, p.Table, op.Direction())
	resources = Dedup(resources)

	resources, err = Resolve(resources, op.ResolveMode())
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		ID:        uuid.New().String(),
		Operation: op,
		Resources: resources,
		CreatedAt: time.Now(),
	}

	if p.metrics != nil {
		p.metrics.RecordPlanBuilt(string(op))
	}
	if p.logger != nil {
		p.logger.WithField("plan_id", plan.ID).
			Infof("planned %s of %d resources", op, plan.Len())
	}
	return plan, nil
}
