package forecast

import (
	"context"
	"time"

	"github.com/forecastkit/forecastkit/pkg/config"
)

// Description is the orchestrator's view of a describe call for any managed
// resource kind. Describe calls for a resource that does not exist return a
// permanent NOT_FOUND ClientError, not a Description.
type Description struct {
	// Name is the resource name.
	Name string

	// ARN is the external resource identifier.
	ARN string

	// Status is the last observed lifecycle status.
	Status Status

	// Message carries the service's failure reason, when present.
	Message string

	// CreationTime is when the resource was created.
	CreationTime time.Time

	// LastModificationTime is when the resource last changed.
	LastModificationTime time.Time

	// Tags are the tags currently attached to the resource.
	Tags map[string]string
}

// DatasetGroupInput are the parameters for creating a dataset group.
type DatasetGroupInput struct {
	Name   string
	Domain string
	Tags   []config.Tag
}

// DatasetInput are the parameters for creating a dataset.
type DatasetInput struct {
	Name          string
	DatasetType   string
	Domain        string
	Schema        config.Schema
	DataFrequency string
	Tags          []config.Tag
}

// ImportJobInput are the parameters for starting a dataset import job.
type ImportJobInput struct {
	Name            string
	DatasetName     string
	DataLocation    string
	TimestampFormat string
	Tags            []config.Tag
}

// PredictorInput are the parameters for creating a predictor.
type PredictorInput struct {
	Name               string
	DatasetGroupName   string
	AlgorithmArn       string
	ForecastHorizon    int
	ForecastFrequency  string
	TrainingParameters map[string]string
	Tags               []config.Tag
}

// ForecastInput are the parameters for creating a forecast.
type ForecastInput struct {
	Name          string
	PredictorName string
	ForecastTypes []string
	Tags          []config.Tag
}

// ExportJobInput are the parameters for starting a forecast export job.
type ExportJobInput struct {
	Name         string
	ForecastName string
	Destination  string
	Tags         []config.Tag
}

// PredictorSummary is one entry from listing the predictors of a dataset
// group.
type PredictorSummary struct {
	Name         string
	ARN          string
	Status       Status
	CreationTime time.Time
}

// API is the raw surface of the managed forecasting service consumed by the
// orchestration core. Implementations classify every failure as a
// ClientError; they do not retry. Create calls return the resource ARN.
type API interface {
	CreateDatasetGroup(ctx context.Context, in DatasetGroupInput) (string, error)
	DescribeDatasetGroup(ctx context.Context, name string) (*Description, error)
	// UpdateDatasetGroup replaces the set of datasets associated with the
	// group. Associating an already-associated dataset is a no-op.
	UpdateDatasetGroup(ctx context.Context, name string, datasetNames []string) error

	CreateDataset(ctx context.Context, in DatasetInput) (string, error)
	DescribeDataset(ctx context.Context, name string) (*Description, error)

	CreateDatasetImportJob(ctx context.Context, in ImportJobInput) (string, error)
	// DescribeDatasetImportJob describes an import job by its dataset and
	// job name (the service namespaces import jobs under their dataset).
	DescribeDatasetImportJob(ctx context.Context, datasetName, jobName string) (*Description, error)

	CreatePredictor(ctx context.Context, in PredictorInput) (string, error)
	DescribePredictor(ctx context.Context, name string) (*Description, error)
	// ListPredictors returns the predictors belonging to a dataset group,
	// newest first.
	ListPredictors(ctx context.Context, datasetGroupName string) ([]PredictorSummary, error)

	CreateForecast(ctx context.Context, in ForecastInput) (string, error)
	DescribeForecast(ctx context.Context, name string) (*Description, error)

	CreateForecastExportJob(ctx context.Context, in ExportJobInput) (string, error)
	// DescribeForecastExportJob describes an export job by its forecast
	// and job name.
	DescribeForecastExportJob(ctx context.Context, forecastName, jobName string) (*Description, error)

	// TagResource applies tags to a resource; UntagResource removes tag
	// keys. Used to reconcile user tags with Present/Absent states.
	TagResource(ctx context.Context, arn string, tags map[string]string) error
	UntagResource(ctx context.Context, arn string, keys []string) error
}
