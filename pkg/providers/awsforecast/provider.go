package awsforecast

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	svc "github.com/aws/aws-sdk-go-v2/service/forecast"
	"github.com/aws/aws-sdk-go-v2/service/forecast/types"

	"github.com/forecastkit/forecastkit/pkg/config"
	fc "github.com/forecastkit/forecastkit/pkg/forecast"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// SDK is the subset of the Amazon Forecast client the provider consumes.
type SDK interface {
	CreateDatasetGroup(ctx context.Context, params *svc.CreateDatasetGroupInput, optFns ...func(*svc.Options)) (*svc.CreateDatasetGroupOutput, error)
	DescribeDatasetGroup(ctx context.Context, params *svc.DescribeDatasetGroupInput, optFns ...func(*svc.Options)) (*svc.DescribeDatasetGroupOutput, error)
	UpdateDatasetGroup(ctx context.Context, params *svc.UpdateDatasetGroupInput, optFns ...func(*svc.Options)) (*svc.UpdateDatasetGroupOutput, error)
	CreateDataset(ctx context.Context, params *svc.CreateDatasetInput, optFns ...func(*svc.Options)) (*svc.CreateDatasetOutput, error)
	DescribeDataset(ctx context.Context, params *svc.DescribeDatasetInput, optFns ...func(*svc.Options)) (*svc.DescribeDatasetOutput, error)
	CreateDatasetImportJob(ctx context.Context, params *svc.CreateDatasetImportJobInput, optFns ...func(*svc.Options)) (*svc.CreateDatasetImportJobOutput, error)
	DescribeDatasetImportJob(ctx context.Context, params *svc.DescribeDatasetImportJobInput, optFns ...func(*svc.Options)) (*svc.DescribeDatasetImportJobOutput, error)
	CreatePredictor(ctx context.Context, params *svc.CreatePredictorInput, optFns ...func(*svc.Options)) (*svc.CreatePredictorOutput, error)
	DescribePredictor(ctx context.Context, params *svc.DescribePredictorInput, optFns ...func(*svc.Options)) (*svc.DescribePredictorOutput, error)
	ListPredictors(ctx context.Context, params *svc.ListPredictorsInput, optFns ...func(*svc.Options)) (*svc.ListPredictorsOutput, error)
	CreateForecast(ctx context.Context, params *svc.CreateForecastInput, optFns ...func(*svc.Options)) (*svc.CreateForecastOutput, error)
	DescribeForecast(ctx context.Context, params *svc.DescribeForecastInput, optFns ...func(*svc.Options)) (*svc.DescribeForecastOutput, error)
	CreateForecastExportJob(ctx context.Context, params *svc.CreateForecastExportJobInput, optFns ...func(*svc.Options)) (*svc.CreateForecastExportJobOutput, error)
	DescribeForecastExportJob(ctx context.Context, params *svc.DescribeForecastExportJobInput, optFns ...func(*svc.Options)) (*svc.DescribeForecastExportJobOutput, error)
	TagResource(ctx context.Context, params *svc.TagResourceInput, optFns ...func(*svc.Options)) (*svc.TagResourceOutput, error)
	UntagResource(ctx context.Context, params *svc.UntagResourceInput, optFns ...func(*svc.Options)) (*svc.UntagResourceOutput, error)
	ListTagsForResource(ctx context.Context, params *svc.ListTagsForResourceInput, optFns ...func(*svc.Options)) (*svc.ListTagsForResourceOutput, error)
}

// Config identifies the account-level coordinates the provider derives
// resource ARNs from, plus the role the service assumes for S3 access.
type Config struct {
	// Region is the AWS region resources live in.
	Region string

	// AccountID is the owning AWS account.
	AccountID string

	// RoleARN is assumed by the forecasting service when reading uploads
	// and writing exports.
	RoleARN string

	// Partition defaults to "aws".
	Partition string
}

// Provider implements forecast.API over the Amazon Forecast SDK.
type Provider struct {
	sdk SDK
	cfg Config
	log *telemetry.Logger
}

// New creates a provider over an existing SDK client.
func New(sdk SDK, cfg Config, logger *telemetry.Logger) *Provider {
	if cfg.Partition == "" {
		cfg.Partition = "aws"
	}
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Provider{
		sdk: sdk,
		cfg: cfg,
		log: logger.NewComponentLogger("awsforecast"),
	}
}

// NewFromAWSConfig creates a provider from a resolved AWS configuration.
func NewFromAWSConfig(awsCfg aws.Config, cfg Config, logger *telemetry.Logger) *Provider {
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}
	return New(svc.NewFromConfig(awsCfg), cfg, logger)
}

// arn derives the resource ARN for a named resource. Import and export
// jobs are namespaced under their parent resource.
func (p *Provider) arn(resourceType string, nameParts ...string) string {
	name := nameParts[0]
	for _, part := range nameParts[1:] {
		name += "/" + part
	}
	return fmt.Sprintf("arn:%s:forecast:%s:%s:%s/%s",
		p.cfg.Partition, p.cfg.Region, p.cfg.AccountID, resourceType, name)
}

// sdkTags converts the Present tags to the SDK shape. Absent tags are
// reconciled after creation through UntagResource.
func sdkTags(tags []config.Tag) []types.Tag {
	var out []types.Tag
	for _, t := range tags {
		if t.Absent() {
			continue
		}
		out = append(out, types.Tag{
			Key:   aws.String(t.Key),
			Value: aws.String(t.Value),
		})
	}
	return out
}

// tagMap fetches the live tags of a resource.
func (p *Provider) tagMap(ctx context.Context, arn string) (map[string]string, error) {
	out, err := p.sdk.ListTagsForResource(ctx, &svc.ListTagsForResourceInput{
		ResourceArn: aws.String(arn),
	})
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(out.Tags))
	for _, t := range out.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// describe assembles the orchestrator's view of a describe call, including
// the live resource tags.
func (p *Provider) describe(ctx context.Context, op, name, arn string, status, message *string) (*fc.Description, error) {
	tags, err := p.tagMap(ctx, arn)
	if err != nil {
		return nil, classify(op, name, err)
	}
	return &fc.Description{
		Name:    name,
		ARN:     arn,
		Status:  fc.Status(aws.ToString(status)),
		Message: aws.ToString(message),
		Tags:    tags,
	}, nil
}

// CreateDatasetGroup creates an empty dataset group.
func (p *Provider) CreateDatasetGroup(ctx context.Context, in fc.DatasetGroupInput) (string, error) {
	out, err := p.sdk.CreateDatasetGroup(ctx, &svc.CreateDatasetGroupInput{
		DatasetGroupName: aws.String(in.Name),
		Domain:           types.Domain(in.Domain),
		Tags:             sdkTags(in.Tags),
	})
	if err != nil {
		return "", classify("CreateDatasetGroup", in.Name, err)
	}
	return aws.ToString(out.DatasetGroupArn), nil
}

// DescribeDatasetGroup describes a dataset group by name.
func (p *Provider) DescribeDatasetGroup(ctx context.Context, name string) (*fc.Description, error) {
	arn := p.arn("dataset-group", name)
	out, err := p.sdk.DescribeDatasetGroup(ctx, &svc.DescribeDatasetGroupInput{
		DatasetGroupArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribeDatasetGroup", name, err)
	}
	desc, err := p.describe(ctx, "DescribeDatasetGroup", name, aws.ToString(out.DatasetGroupArn), out.Status, nil)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// UpdateDatasetGroup replaces the datasets associated with the group.
func (p *Provider) UpdateDatasetGroup(ctx context.Context, name string, datasetNames []string) error {
	arns := make([]string, len(datasetNames))
	for i, ds := range datasetNames {
		arns[i] = p.arn("dataset", ds)
	}
	_, err := p.sdk.UpdateDatasetGroup(ctx, &svc.UpdateDatasetGroupInput{
		DatasetGroupArn: aws.String(p.arn("dataset-group", name)),
		DatasetArns:     arns,
	})
	if err != nil {
		return classify("UpdateDatasetGroup", name, err)
	}
	return nil
}

// CreateDataset creates a dataset container.
func (p *Provider) CreateDataset(ctx context.Context, in fc.DatasetInput) (string, error) {
	attrs := make([]types.SchemaAttribute, len(in.Schema.Attributes))
	for i, a := range in.Schema.Attributes {
		attrs[i] = types.SchemaAttribute{
			AttributeName: aws.String(a.AttributeName),
			AttributeType: types.AttributeType(a.AttributeType),
		}
	}

	input := &svc.CreateDatasetInput{
		DatasetName: aws.String(in.Name),
		DatasetType: types.DatasetType(in.DatasetType),
		Domain:      types.Domain(in.Domain),
		Schema:      &types.Schema{Attributes: attrs},
		Tags:        sdkTags(in.Tags),
	}
	if in.DataFrequency != "" {
		input.DataFrequency = aws.String(in.DataFrequency)
	}

	out, err := p.sdk.CreateDataset(ctx, input)
	if err != nil {
		return "", classify("CreateDataset", in.Name, err)
	}
	return aws.ToString(out.DatasetArn), nil
}

// DescribeDataset describes a dataset by name.
func (p *Provider) DescribeDataset(ctx context.Context, name string) (*fc.Description, error) {
	arn := p.arn("dataset", name)
	out, err := p.sdk.DescribeDataset(ctx, &svc.DescribeDatasetInput{
		DatasetArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribeDataset", name, err)
	}
	desc, err := p.describe(ctx, "DescribeDataset", name, aws.ToString(out.DatasetArn), out.Status, nil)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// CreateDatasetImportJob starts importing uploaded data into a dataset.
func (p *Provider) CreateDatasetImportJob(ctx context.Context, in fc.ImportJobInput) (string, error) {
	input := &svc.CreateDatasetImportJobInput{
		DatasetImportJobName: aws.String(in.Name),
		DatasetArn:           aws.String(p.arn("dataset", in.DatasetName)),
		DataSource: &types.DataSource{
			S3Config: &types.S3Config{
				Path:    aws.String(in.DataLocation),
				RoleArn: aws.String(p.cfg.RoleARN),
			},
		},
		Tags: sdkTags(in.Tags),
	}
	if in.TimestampFormat != "" {
		input.TimestampFormat = aws.String(in.TimestampFormat)
	}

	out, err := p.sdk.CreateDatasetImportJob(ctx, input)
	if err != nil {
		return "", classify("CreateDatasetImportJob", in.Name, err)
	}
	return aws.ToString(out.DatasetImportJobArn), nil
}

// DescribeDatasetImportJob describes an import job by its dataset and job
// name.
func (p *Provider) DescribeDatasetImportJob(ctx context.Context, datasetName, jobName string) (*fc.Description, error) {
	arn := p.arn("dataset-import-job", datasetName, jobName)
	out, err := p.sdk.DescribeDatasetImportJob(ctx, &svc.DescribeDatasetImportJobInput{
		DatasetImportJobArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribeDatasetImportJob", jobName, err)
	}
	desc, err := p.describe(ctx, "DescribeDatasetImportJob", jobName, aws.ToString(out.DatasetImportJobArn), out.Status, out.Message)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// CreatePredictor starts training a predictor. An empty algorithm selects
// AutoML.
func (p *Provider) CreatePredictor(ctx context.Context, in fc.PredictorInput) (string, error) {
	input := &svc.CreatePredictorInput{
		PredictorName:   aws.String(in.Name),
		ForecastHorizon: aws.Int32(int32(in.ForecastHorizon)),
		InputDataConfig: &types.InputDataConfig{
			DatasetGroupArn: aws.String(p.arn("dataset-group", in.DatasetGroupName)),
		},
		FeaturizationConfig: &types.FeaturizationConfig{
			ForecastFrequency: aws.String(in.ForecastFrequency),
		},
		Tags: sdkTags(in.Tags),
	}
	if in.AlgorithmArn != "" {
		input.AlgorithmArn = aws.String(in.AlgorithmArn)
	} else {
		input.PerformAutoML = aws.Bool(true)
	}
	if len(in.TrainingParameters) > 0 {
		input.TrainingParameters = in.TrainingParameters
	}

	out, err := p.sdk.CreatePredictor(ctx, input)
	if err != nil {
		return "", classify("CreatePredictor", in.Name, err)
	}
	return aws.ToString(out.PredictorArn), nil
}

// DescribePredictor describes a predictor by name.
func (p *Provider) DescribePredictor(ctx context.Context, name string) (*fc.Description, error) {
	arn := p.arn("predictor", name)
	out, err := p.sdk.DescribePredictor(ctx, &svc.DescribePredictorInput{
		PredictorArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribePredictor", name, err)
	}
	desc, err := p.describe(ctx, "DescribePredictor", name, aws.ToString(out.PredictorArn), out.Status, out.Message)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// ListPredictors returns the predictors of a dataset group, newest first.
func (p *Provider) ListPredictors(ctx context.Context, datasetGroupName string) ([]fc.PredictorSummary, error) {
	groupARN := p.arn("dataset-group", datasetGroupName)

	var summaries []fc.PredictorSummary
	var nextToken *string
	for {
		out, err := p.sdk.ListPredictors(ctx, &svc.ListPredictorsInput{
			Filters: []types.Filter{{
				Condition: types.FilterConditionStringIs,
				Key:       aws.String("DatasetGroupArn"),
				Value:     aws.String(groupARN),
			}},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, classify("ListPredictors", datasetGroupName, err)
		}
		for _, s := range out.Predictors {
			summaries = append(summaries, fc.PredictorSummary{
				Name:         aws.ToString(s.PredictorName),
				ARN:          aws.ToString(s.PredictorArn),
				Status:       fc.Status(aws.ToString(s.Status)),
				CreationTime: aws.ToTime(s.CreationTime),
			})
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreationTime.After(summaries[j].CreationTime)
	})
	return summaries, nil
}

// CreateForecast materializes forecasts from a trained predictor.
func (p *Provider) CreateForecast(ctx context.Context, in fc.ForecastInput) (string, error) {
	input := &svc.CreateForecastInput{
		ForecastName: aws.String(in.Name),
		PredictorArn: aws.String(p.arn("predictor", in.PredictorName)),
		Tags:         sdkTags(in.Tags),
	}
	if len(in.ForecastTypes) > 0 {
		input.ForecastTypes = in.ForecastTypes
	}

	out, err := p.sdk.CreateForecast(ctx, input)
	if err != nil {
		return "", classify("CreateForecast", in.Name, err)
	}
	return aws.ToString(out.ForecastArn), nil
}

// DescribeForecast describes a forecast by name.
func (p *Provider) DescribeForecast(ctx context.Context, name string) (*fc.Description, error) {
	arn := p.arn("forecast", name)
	out, err := p.sdk.DescribeForecast(ctx, &svc.DescribeForecastInput{
		ForecastArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribeForecast", name, err)
	}
	desc, err := p.describe(ctx, "DescribeForecast", name, aws.ToString(out.ForecastArn), out.Status, out.Message)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// CreateForecastExportJob starts exporting forecast results.
func (p *Provider) CreateForecastExportJob(ctx context.Context, in fc.ExportJobInput) (string, error) {
	out, err := p.sdk.CreateForecastExportJob(ctx, &svc.CreateForecastExportJobInput{
		ForecastExportJobName: aws.String(in.Name),
		ForecastArn:           aws.String(p.arn("forecast", in.ForecastName)),
		Destination: &types.DataDestination{
			S3Config: &types.S3Config{
				Path:    aws.String(in.Destination),
				RoleArn: aws.String(p.cfg.RoleARN),
			},
		},
		Tags: sdkTags(in.Tags),
	})
	if err != nil {
		return "", classify("CreateForecastExportJob", in.Name, err)
	}
	return aws.ToString(out.ForecastExportJobArn), nil
}

// DescribeForecastExportJob describes an export job by its forecast and job
// name.
func (p *Provider) DescribeForecastExportJob(ctx context.Context, forecastName, jobName string) (*fc.Description, error) {
	arn := p.arn("forecast-export-job", forecastName, jobName)
	out, err := p.sdk.DescribeForecastExportJob(ctx, &svc.DescribeForecastExportJobInput{
		ForecastExportJobArn: aws.String(arn),
	})
	if err != nil {
		return nil, classify("DescribeForecastExportJob", jobName, err)
	}
	desc, err := p.describe(ctx, "DescribeForecastExportJob", jobName, aws.ToString(out.ForecastExportJobArn), out.Status, out.Message)
	if err != nil {
		return nil, err
	}
	desc.CreationTime = aws.ToTime(out.CreationTime)
	desc.LastModificationTime = aws.ToTime(out.LastModificationTime)
	return desc, nil
}

// TagResource applies tags to a resource.
func (p *Provider) TagResource(ctx context.Context, arn string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	sdk := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		sdk = append(sdk, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := p.sdk.TagResource(ctx, &svc.TagResourceInput{
		ResourceArn: aws.String(arn),
		Tags:        sdk,
	})
	if err != nil {
		return classify("TagResource", arn, err)
	}
	return nil
}

// UntagResource removes tag keys from a resource.
func (p *Provider) UntagResource(ctx context.Context, arn string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := p.sdk.UntagResource(ctx, &svc.UntagResourceInput{
		ResourceArn: aws.String(arn),
		TagKeys:     keys,
	})
	if err != nil {
		return classify("UntagResource", arn, err)
	}
	return nil
}
