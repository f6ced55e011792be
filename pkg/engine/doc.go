// Package engine implements the forecast pipeline orchestrator.
//
// The orchestrator turns detected dataset uploads into a sequence of
// idempotent lifecycle stages against the managed forecasting service:
//
//	PENDING
//	  -> DATASET_GROUP_READY   dataset group + datasets exist and are associated
//	  -> DATASETS_IMPORTED     import jobs for the uploads finished
//	  -> PREDICTOR_READY       predictor trained, or a recent one reused
//	  -> FORECAST_READY        forecast generated
//	  -> EXPORTED              results written to the object store
//	  -> DONE
//
// FAILED may be entered from any non-terminal state. Every transition is
// persisted through a StateStore, so a crashed or interrupted execution
// resumes at the first unfinished stage instead of restarting.
//
// # Idempotency
//
// Resource names are deterministic functions of the dataset group and the
// content fingerprints of the triggering uploads (see pkg/identity).
// Re-running an execution with the same inputs converges on the same
// resources: creation conflicts are resolved by re-attaching to the
// existing resource, and a fingerprint tag on each resource guards against
// silently adopting a foreign resource under the expected name.
//
// # Predictor reuse
//
// Training is the expensive stage. When an active predictor of the group
// carries a matching fingerprint tag and is younger than the configured
// MaxAge (default seven days), the orchestrator reuses it and skips
// training entirely.
//
// # Concurrency
//
// Executions for different dataset groups run concurrently. Executions for
// the same group are serialized through a GroupQueue, because the group's
// resource names would collide.
package engine
