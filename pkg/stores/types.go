package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/openmend/openmend/pkg/engine"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
)

// StepStatus is the state of one recorded plan step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
)

// EventLevel is the severity of a recorded event.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// RunRecord is one execution run as persisted in history.
type RunRecord struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	Operation   string     `json:"operation"`
	Status      RunStatus  `json:"status"`
	Attempted   int        `json:"attempted"`
	Succeeded   int        `json:"succeeded"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepRecord is one plan step within a run.
type StepRecord struct {
	ID            int64      `json:"id"`
	RunID         string     `json:"run_id"`
	Position      int        `json:"position"`
	ResourceType  string     `json:"resource_type"`
	ResourceName  string     `json:"resource_name"`
	ResourceGroup string     `json:"resource_group"`
	Operation     string     `json:"operation"`
	Status        StepStatus `json:"status"`
	Error         *string    `json:"error,omitempty"`
	AppliedAt     *time.Time `json:"applied_at,omitempty"`
}

// EventRecord is one append-only history event.
type EventRecord struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Resource  *string    `json:"resource,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// HistoryStore persists run history and serves it back for inspection.
// Implementations also satisfy engine.RunRecorder so they can be handed
// straight to an executor.
type HistoryStore interface {
	engine.RunRecorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// History queries
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)
	ListSteps(ctx context.Context, runID string) ([]*StepRecord, error)
	ListEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*EventRecord, error)

	// Maintenance
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Utility
	AppendEvent(ctx context.Context, event *EventRecord) error
	HealthCheck(ctx context.Context) error
}
