// Package objectstore abstracts the bucket that holds dataset uploads and
// forecast exports. It provides an S3-backed store, a local-directory store
// for development, and a filesystem watcher that turns file drops into
// upload events for the orchestration engine.
package objectstore
