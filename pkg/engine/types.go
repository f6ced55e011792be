package engine

import (
	"time"
)

// ExecState is the persisted progress of a pipeline execution. States
// advance strictly forward; StateFailed may be entered from any
// non-terminal state.
type ExecState string

const (
	// StatePending is the initial state of a newly created execution.
	StatePending ExecState = "PENDING"

	// StateDatasetGroupReady means the dataset group and its datasets
	// exist and are associated.
	StateDatasetGroupReady ExecState = "DATASET_GROUP_READY"

	// StateDatasetsImported means all triggered import jobs finished.
	StateDatasetsImported ExecState = "DATASETS_IMPORTED"

	// StatePredictorReady means a predictor is active, either freshly
	// trained or reused.
	StatePredictorReady ExecState = "PREDICTOR_READY"

	// StateForecastReady means the forecast was generated.
	StateForecastReady ExecState = "FORECAST_READY"

	// StateExported means the forecast export job finished.
	StateExported ExecState = "EXPORTED"

	// StateDone is the terminal success state.
	StateDone ExecState = "DONE"

	// StateFailed is the terminal failure state.
	StateFailed ExecState = "FAILED"
)

// stageRank orders the forward states for resume decisions.
var stageRank = map[ExecState]int{
	StatePending:           0,
	StateDatasetGroupReady: 1,
	StateDatasetsImported:  2,
	StatePredictorReady:    3,
	StateForecastReady:     4,
	StateExported:          5,
	StateDone:              6,
}

// IsTerminal reports whether the state is final.
func (s ExecState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Reached reports whether the state is at or past the given stage.
func (s ExecState) Reached(target ExecState) bool {
	if s == StateFailed {
		return false
	}
	return stageRank[s] >= stageRank[target]
}

func (s ExecState) String() string {
	return string(s)
}

// Execution is one end-to-end run of the forecast pipeline for a dataset
// group. Executions are persisted after every state transition so an
// interrupted run can resume where it stopped.
type Execution struct {
	// ID is the unique execution identifier.
	ID string `json:"id"`

	// DatasetGroup is the logical dataset group name from configuration.
	DatasetGroup string `json:"dataset_group"`

	// State is the current pipeline state.
	State ExecState `json:"state"`

	// DataFingerprints maps dataset type to the content fingerprint of
	// the upload that triggered this execution.
	DataFingerprints map[string]string `json:"data_fingerprints"`

	// PredictorFingerprint is the fingerprint of the training
	// configuration used for predictor identity and reuse.
	PredictorFingerprint string `json:"predictor_fingerprint,omitempty"`

	// PredictorName is the predictor serving this execution, set once the
	// predictor stage completes.
	PredictorName string `json:"predictor_name,omitempty"`

	// PredictorReused records whether an existing predictor was reused
	// instead of training a new one.
	PredictorReused bool `json:"predictor_reused,omitempty"`

	// ForecastName is the generated forecast, set once the forecast stage
	// completes.
	ForecastName string `json:"forecast_name,omitempty"`

	// ForecastARN is the external identifier of the generated forecast.
	ForecastARN string `json:"forecast_arn,omitempty"`

	// ExportLocation is the destination the forecast was exported to.
	ExportLocation string `json:"export_location,omitempty"`

	// Error holds the failure reason when State is FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt is when the execution was created.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when the execution last changed state.
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is when the execution reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the wall time of the execution so far, or the total
// time if it completed.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt != nil {
		return e.CompletedAt.Sub(e.StartedAt)
	}
	return time.Since(e.StartedAt)
}

// ResourceRecord tracks one external resource touched by an execution.
type ResourceRecord struct {
	// ExecutionID is the owning execution.
	ExecutionID string `json:"execution_id"`

	// Kind is the resource kind (dataset_group, dataset, import_job,
	// predictor, forecast, export).
	Kind string `json:"kind"`

	// Name is the service resource name.
	Name string `json:"name"`

	// ARN is the external resource identifier.
	ARN string `json:"arn"`

	// Status is the last observed resource status.
	Status string `json:"status"`

	// Reused records whether the resource existed before this execution.
	Reused bool `json:"reused,omitempty"`

	// CreatedAt is when this record was first written.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadEvent describes one detected dataset upload. The orchestrator
// starts or resumes an execution from a set of these.
type UploadEvent struct {
	// DatasetGroup is the logical group the upload belongs to, derived
	// from the file path.
	DatasetGroup string `json:"dataset_group"`

	// DatasetType is TARGET_TIME_SERIES, RELATED_TIME_SERIES, or
	// ITEM_METADATA, derived from the filename suffix.
	DatasetType string `json:"dataset_type"`

	// Location is where the service reads the data from.
	Location string `json:"location"`

	// Fingerprint is the content fingerprint of the uploaded file.
	Fingerprint string `json:"fingerprint"`

	// DetectedAt is when the upload was observed.
	DetectedAt time.Time `json:"detected_at"`
}

// Outcome summarizes a finished execution for notification consumers.
type Outcome struct {
	// ExecutionID identifies the execution.
	ExecutionID string `json:"execution_id"`

	// DatasetGroup is the logical dataset group name.
	DatasetGroup string `json:"dataset_group"`

	// State is the terminal state, DONE or FAILED.
	State ExecState `json:"state"`

	// ForecastARN identifies the generated forecast on success.
	ForecastARN string `json:"forecast_arn,omitempty"`

	// ExportLocation is where forecast results were written on success.
	ExportLocation string `json:"export_location,omitempty"`

	// PredictorReused reports whether training was skipped.
	PredictorReused bool `json:"predictor_reused"`

	// Error is the failure reason when State is FAILED.
	Error string `json:"error,omitempty"`

	// Duration is the end-to-end execution wall time.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.State == StateDone
}

// Stage names used for logging, metrics, and resource records.
const (
	StageDatasetGroup = "dataset_group"
	StageImport       = "import"
	StagePredictor    = "predictor"
	StageForecast     = "forecast"
	StageExport       = "export"
)
