// Package stores provides persistence layer implementations for ForecastKit.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// CRUD operations for pipeline executions, managed resource records, and
// the local event audit trail.
package stores
