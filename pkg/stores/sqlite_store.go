package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/forecastkit/forecastkit/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.StateStore using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
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
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveExecution inserts or updates an execution record
func (s *SQLiteStore) SaveExecution(ctx context.Context, exec *engine.Execution) error {
	fingerprints, err := json.Marshal(exec.DataFingerprints)
	if err != nil {
		return fmt.Errorf("failed to encode data fingerprints: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, dataset_group, state, data_fingerprints,
			predictor_fingerprint, predictor_name, predictor_reused,
			forecast_name, forecast_arn, export_location, error,
			started_at, updated_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			data_fingerprints = excluded.data_fingerprints,
			predictor_fingerprint = excluded.predictor_fingerprint,
			predictor_name = excluded.predictor_name,
			predictor_reused = excluded.predictor_reused,
			forecast_name = excluded.forecast_name,
			forecast_arn = excluded.forecast_arn,
			export_location = excluded.export_location,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		exec.ID,
		exec.DatasetGroup,
		exec.State,
		string(fingerprints),
		exec.PredictorFingerprint,
		exec.PredictorName,
		exec.PredictorReused,
		exec.ForecastName,
		exec.ForecastARN,
		exec.ExportLocation,
		exec.Error,
		exec.StartedAt,
		exec.UpdatedAt,
		exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

const executionColumns = `
	id, dataset_group, state, data_fingerprints,
	predictor_fingerprint, predictor_name, predictor_reused,
	forecast_name, forecast_arn, export_location, error,
	started_at, updated_at, completed_at
`

func scanExecution(row interface{ Scan(...any) error }) (*engine.Execution, error) {
	exec := &engine.Execution{}
	var fingerprints string

	err := row.Scan(
		&exec.ID,
		&exec.DatasetGroup,
		&exec.State,
		&fingerprints,
		&exec.PredictorFingerprint,
		&exec.PredictorName,
		&exec.PredictorReused,
		&exec.ForecastName,
		&exec.ForecastARN,
		&exec.ExportLocation,
		&exec.Error,
		&exec.StartedAt,
		&exec.UpdatedAt,
		&exec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if fingerprints != "" {
		if err := json.Unmarshal([]byte(fingerprints), &exec.DataFingerprints); err != nil {
			return nil, fmt.Errorf("failed to decode data fingerprints: %w", err)
		}
	}

	return exec, nil
}

// GetExecution retrieves an execution by ID
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*engine.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = ?`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return exec, nil
}

// LatestExecution retrieves the most recently started execution of a dataset group
func (s *SQLiteStore) LatestExecution(ctx context.Context, datasetGroup string) (*engine.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE dataset_group = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, datasetGroup))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no executions for %s: %w", datasetGroup, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}

	return exec, nil
}

// ListExecutions lists executions, newest first, optionally filtered by dataset group.
// A limit of 0 means no limit.
func (s *SQLiteStore) ListExecutions(ctx context.Context, datasetGroup string, limit int) ([]*engine.Execution, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}

	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE (? = '' OR dataset_group = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, datasetGroup, datasetGroup, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*engine.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return execs, nil
}

// SaveResource inserts or updates a resource record
func (s *SQLiteStore) SaveResource(ctx context.Context, rec *engine.ResourceRecord) error {
	query := `
		INSERT INTO resources (
			execution_id, kind, name, arn, status, reused, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, kind, name) DO UPDATE SET
			arn = excluded.arn,
			status = excluded.status,
			reused = excluded.reused,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ExecutionID,
		rec.Kind,
		rec.Name,
		rec.ARN,
		rec.Status,
		rec.Reused,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}

	return nil
}

// ListResources lists the resources touched by an execution
func (s *SQLiteStore) ListResources(ctx context.Context, executionID string) ([]*engine.ResourceRecord, error) {
	query := `
		SELECT execution_id, kind, name, arn, status, reused, created_at, updated_at
		FROM resources
		WHERE execution_id = ?
		ORDER BY created_at, kind, name
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*engine.ResourceRecord
	for rows.Next() {
		rec := &engine.ResourceRecord{}
		err := rows.Scan(
			&rec.ExecutionID,
			&rec.Kind,
			&rec.Name,
			&rec.ARN,
			&rec.Status,
			&rec.Reused,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}

	return recs, nil
}

// AppendEvent appends an event to the local audit trail
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	query := `
		INSERT INTO events (execution_id, type, resource, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.ExecutionID,
		event.Type,
		event.Resource,
		event.Level,
		event.Message,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}

// RecordEvent appends an audit event from its parts. It satisfies the
// engine's optional audit-trail hook.
func (s *SQLiteStore) RecordEvent(ctx context.Context, executionID, eventType, resource, level, message string) error {
	return s.AppendEvent(ctx, &Event{
		ExecutionID: executionID,
		Type:        eventType,
		Resource:    resource,
		Level:       EventLevel(level),
		Message:     message,
	})
}

// ListEvents lists the events recorded for an execution, oldest first
func (s *SQLiteStore) ListEvents(ctx context.Context, executionID string) ([]*Event, error) {
	query := `
		SELECT id, execution_id, type, resource, level, message, timestamp
		FROM events
		WHERE execution_id = ?
		ORDER BY timestamp, id
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.ExecutionID,
			&event.Type,
			&event.Resource,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is alive
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
