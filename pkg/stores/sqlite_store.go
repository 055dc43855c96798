package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openmend/openmend/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging database: %w", err)
	}

	// Connection-level setting; the DSN flag alone does not survive pool churn.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded filesystem.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// RecordRunStarted inserts the run row and one pending step per plan
// resource in a single transaction.
func (s *SQLiteStore) RecordRunStarted(ctx context.Context, runID string, plan *engine.ExecutionPlan) error {
	if plan == nil {
		return fmt.Errorf("plan must not be nil")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plan_id, operation, status, attempted, succeeded, started_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, runID, plan.ID, string(plan.Operation), RunStatusRunning, plan.Len(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, r := range plan.Resources {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plan_steps (run_id, position, resource_type, resource_name, resource_group, operation, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, i, r.Type, r.Name, r.Group, string(plan.Operation), StepStatusPending)
		if err != nil {
			return fmt.Errorf("inserting plan step %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (run_id, level, message, timestamp)
		VALUES (?, ?, ?, ?)
	`, runID, EventLevelInfo, fmt.Sprintf("run started: %s plan with %d resources", plan.Operation, plan.Len()), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting run event: %w", err)
	}

	return tx.Commit()
}

// RecordResourceResult marks the matching pending step with its outcome
// and appends an event.
func (s *SQLiteStore) RecordResourceResult(ctx context.Context, runID string, r *engine.Resource, op engine.Operation, status string, opErr error) error {
	if r == nil {
		return fmt.Errorf("resource must not be nil")
	}

	var errMsg *string
	if opErr != nil {
		msg := opErr.Error()
		errMsg = &msg
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE plan_steps
		SET status = ?, error = ?, applied_at = ?
		WHERE id = (
			SELECT id FROM plan_steps
			WHERE run_id = ? AND resource_type = ? AND resource_name = ? AND resource_group = ? AND status = ?
			ORDER BY position ASC
			LIMIT 1
		)
	`, status, errMsg, time.Now().UTC(), runID, r.Type, r.Name, r.Group, StepStatusPending)
	if err != nil {
		return fmt.Errorf("updating plan step: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no pending step for %s in run %s", r, runID)
	}

	level := EventLevelInfo
	message := fmt.Sprintf("%s applied to %s", op, r)
	if opErr != nil {
		level = EventLevelError
		message = fmt.Sprintf("%s failed for %s: %v", op, r, opErr)
	}
	resource := r.String()

	return s.AppendEvent(ctx, &EventRecord{
		RunID:    &runID,
		Resource: &resource,
		Level:    level,
		Message:  message,
	})
}

// RecordRunFinished closes out the run row with its final counts.
func (s *SQLiteStore) RecordRunFinished(ctx context.Context, runID string, runResult engine.RunResult) error {
	status := RunStatusCompleted
	level := EventLevelInfo
	if !runResult.Complete() {
		status = RunStatusPartial
		level = EventLevelWarning
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, attempted = ?, succeeded = ?, completed_at = ?
		WHERE id = ?
	`, status, runResult.Attempted, runResult.Succeeded, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return s.AppendEvent(ctx, &EventRecord{
		RunID:   &runID,
		Level:   level,
		Message: fmt.Sprintf("run finished: %d of %d resources succeeded", runResult.Succeeded, runResult.Attempted),
	})
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_id, operation, status, attempted, succeeded, started_at, completed_at
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&run.ID,
		&run.PlanID,
		&run.Operation,
		&run.Status,
		&run.Attempted,
		&run.Succeeded,
		&run.StartedAt,
		&run.CompletedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs newest first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, operation, status, attempted, succeeded, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run := &RunRecord{}
		err := rows.Scan(
			&run.ID,
			&run.PlanID,
			&run.Operation,
			&run.Status,
			&run.Attempted,
			&run.Succeeded,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// ListSteps lists the plan steps of a run in plan order.
func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position, resource_type, resource_name, resource_group, operation, status, error, applied_at
		FROM plan_steps
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing plan steps: %w", err)
	}
	defer rows.Close()

	steps := []*StepRecord{}
	for rows.Next() {
		step := &StepRecord{}
		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.Position,
			&step.ResourceType,
			&step.ResourceName,
			&step.ResourceGroup,
			&step.Operation,
			&step.Status,
			&step.Error,
			&step.AppliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning plan step: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plan steps: %w", err)
	}

	return steps, nil
}

// AppendEvent appends an event to the history log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventRecord) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, resource, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, event.RunID, event.Resource, event.Level, event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListEvents retrieves events newest first with optional filters.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, resource, level, message, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, runID, runID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Resource,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// DeleteRun deletes a run and, via foreign keys, its steps and events.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// PruneRuns deletes all but the newest keep runs and returns how many
// were removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs
			ORDER BY started_at DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
