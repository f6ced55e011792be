package engine

import (
	"context"
	"io"
)

// StateStore persists executions and resource records. Implementations
// must be safe for concurrent use; pkg/stores provides a SQLite-backed
// implementation.
type StateStore interface {
	// SaveExecution inserts or updates an execution.
	SaveExecution(ctx context.Context, exec *Execution) error

	// GetExecution retrieves an execution by ID. Returns ErrNotFound if
	// it does not exist.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// LatestExecution returns the most recently started execution for a
	// dataset group. Returns ErrNotFound if the group has none.
	LatestExecution(ctx context.Context, datasetGroup string) (*Execution, error)

	// ListExecutions returns executions for a dataset group, newest
	// first, up to limit. A limit of 0 means no limit. An empty dataset
	// group matches all groups.
	ListExecutions(ctx context.Context, datasetGroup string, limit int) ([]*Execution, error)

	// SaveResource inserts or updates a resource record.
	SaveResource(ctx context.Context, rec *ResourceRecord) error

	// ListResources returns the resource records of an execution.
	ListResources(ctx context.Context, executionID string) ([]*ResourceRecord, error)

	// Close releases the store.
	Close() error
}

// Notifier delivers terminal execution outcomes to an external channel.
// pkg/notify provides SNS-backed and log-backed implementations.
type Notifier interface {
	// NotifyOutcome publishes the outcome of a finished execution.
	// Delivery failures must not fail the execution.
	NotifyOutcome(ctx context.Context, outcome Outcome) error
}

// ObjectStore abstracts the bucket holding dataset uploads and forecast
// exports. pkg/objectstore provides S3-backed and filesystem-backed
// implementations.
type ObjectStore interface {
	// Open returns a reader over the object at the given key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Fingerprint returns the content fingerprint of the object.
	Fingerprint(ctx context.Context, key string) (string, error)

	// URI returns the service-facing location of the key (e.g. an s3://
	// URI) for import and export calls.
	URI(key string) string

	// ExportPrefix returns the location under which an execution's
	// forecast results are written.
	ExportPrefix(datasetGroup, executionID string) string
}
