package awsforecast

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	svc "github.com/aws/aws-sdk-go-v2/service/forecast"
	"github.com/aws/aws-sdk-go-v2/service/forecast/types"

	"github.com/forecastkit/forecastkit/pkg/config"
	fc "github.com/forecastkit/forecastkit/pkg/forecast"
)

// fakeSDK fails any call without an explicit handler.
type fakeSDK struct {
	t *testing.T

	createDatasetGroup  func(*svc.CreateDatasetGroupInput) (*svc.CreateDatasetGroupOutput, error)
	createDataset       func(*svc.CreateDatasetInput) (*svc.CreateDatasetOutput, error)
	createImportJob     func(*svc.CreateDatasetImportJobInput) (*svc.CreateDatasetImportJobOutput, error)
	describeImportJob   func(*svc.DescribeDatasetImportJobInput) (*svc.DescribeDatasetImportJobOutput, error)
	createPredictor     func(*svc.CreatePredictorInput) (*svc.CreatePredictorOutput, error)
	describePredictor   func(*svc.DescribePredictorInput) (*svc.DescribePredictorOutput, error)
	listPredictors      func(*svc.ListPredictorsInput) (*svc.ListPredictorsOutput, error)
	listTagsForResource func(*svc.ListTagsForResourceInput) (*svc.ListTagsForResourceOutput, error)
}

func (f *fakeSDK) CreateDatasetGroup(_ context.Context, params *svc.CreateDatasetGroupInput, _ ...func(*svc.Options)) (*svc.CreateDatasetGroupOutput, error) {
	if f.createDatasetGroup == nil {
		f.t.Fatal("unexpected CreateDatasetGroup call")
	}
	return f.createDatasetGroup(params)
}

func (f *fakeSDK) DescribeDatasetGroup(_ context.Context, _ *svc.DescribeDatasetGroupInput, _ ...func(*svc.Options)) (*svc.DescribeDatasetGroupOutput, error) {
	f.t.Fatal("unexpected DescribeDatasetGroup call")
	return nil, nil
}

func (f *fakeSDK) UpdateDatasetGroup(_ context.Context, _ *svc.UpdateDatasetGroupInput, _ ...func(*svc.Options)) (*svc.UpdateDatasetGroupOutput, error) {
	f.t.Fatal("unexpected UpdateDatasetGroup call")
	return nil, nil
}

func (f *fakeSDK) CreateDataset(_ context.Context, params *svc.CreateDatasetInput, _ ...func(*svc.Options)) (*svc.CreateDatasetOutput, error) {
	if f.createDataset == nil {
		f.t.Fatal("unexpected CreateDataset call")
	}
	return f.createDataset(params)
}

func (f *fakeSDK) DescribeDataset(_ context.Context, _ *svc.DescribeDatasetInput, _ ...func(*svc.Options)) (*svc.DescribeDatasetOutput, error) {
	f.t.Fatal("unexpected DescribeDataset call")
	return nil, nil
}

func (f *fakeSDK) CreateDatasetImportJob(_ context.Context, params *svc.CreateDatasetImportJobInput, _ ...func(*svc.Options)) (*svc.CreateDatasetImportJobOutput, error) {
	if f.createImportJob == nil {
		f.t.Fatal("unexpected CreateDatasetImportJob call")
	}
	return f.createImportJob(params)
}

func (f *fakeSDK) DescribeDatasetImportJob(_ context.Context, params *svc.DescribeDatasetImportJobInput, _ ...func(*svc.Options)) (*svc.DescribeDatasetImportJobOutput, error) {
	if f.describeImportJob == nil {
		f.t.Fatal("unexpected DescribeDatasetImportJob call")
	}
	return f.describeImportJob(params)
}

func (f *fakeSDK) CreatePredictor(_ context.Context, params *svc.CreatePredictorInput, _ ...func(*svc.Options)) (*svc.CreatePredictorOutput, error) {
	if f.createPredictor == nil {
		f.t.Fatal("unexpected CreatePredictor call")
	}
	return f.createPredictor(params)
}

func (f *fakeSDK) DescribePredictor(_ context.Context, params *svc.DescribePredictorInput, _ ...func(*svc.Options)) (*svc.DescribePredictorOutput, error) {
	if f.describePredictor == nil {
		f.t.Fatal("unexpected DescribePredictor call")
	}
	return f.describePredictor(params)
}

func (f *fakeSDK) ListPredictors(_ context.Context, params *svc.ListPredictorsInput, _ ...func(*svc.Options)) (*svc.ListPredictorsOutput, error) {
	if f.listPredictors == nil {
		f.t.Fatal("unexpected ListPredictors call")
	}
	return f.listPredictors(params)
}

func (f *fakeSDK) CreateForecast(_ context.Context, _ *svc.CreateForecastInput, _ ...func(*svc.Options)) (*svc.CreateForecastOutput, error) {
	f.t.Fatal("unexpected CreateForecast call")
	return nil, nil
}

func (f *fakeSDK) DescribeForecast(_ context.Context, _ *svc.DescribeForecastInput, _ ...func(*svc.Options)) (*svc.DescribeForecastOutput, error) {
	f.t.Fatal("unexpected DescribeForecast call")
	return nil, nil
}

func (f *fakeSDK) CreateForecastExportJob(_ context.Context, _ *svc.CreateForecastExportJobInput, _ ...func(*svc.Options)) (*svc.CreateForecastExportJobOutput, error) {
	f.t.Fatal("unexpected CreateForecastExportJob call")
	return nil, nil
}

func (f *fakeSDK) DescribeForecastExportJob(_ context.Context, _ *svc.DescribeForecastExportJobInput, _ ...func(*svc.Options)) (*svc.DescribeForecastExportJobOutput, error) {
	f.t.Fatal("unexpected DescribeForecastExportJob call")
	return nil, nil
}

func (f *fakeSDK) TagResource(_ context.Context, _ *svc.TagResourceInput, _ ...func(*svc.Options)) (*svc.TagResourceOutput, error) {
	f.t.Fatal("unexpected TagResource call")
	return nil, nil
}

func (f *fakeSDK) UntagResource(_ context.Context, _ *svc.UntagResourceInput, _ ...func(*svc.Options)) (*svc.UntagResourceOutput, error) {
	f.t.Fatal("unexpected UntagResource call")
	return nil, nil
}

func (f *fakeSDK) ListTagsForResource(_ context.Context, params *svc.ListTagsForResourceInput, _ ...func(*svc.Options)) (*svc.ListTagsForResourceOutput, error) {
	if f.listTagsForResource == nil {
		f.t.Fatal("unexpected ListTagsForResource call")
	}
	return f.listTagsForResource(params)
}

func testProvider(sdk SDK) *Provider {
	return New(sdk, Config{
		Region:    "us-east-1",
		AccountID: "123456789012",
		RoleARN:   "arn:aws:iam::123456789012:role/forecastkit",
	}, nil)
}

func TestProviderDerivesImportJobARN(t *testing.T) {
	var gotARN string
	api := &fakeSDK{
		t: t,
		describeImportJob: func(in *svc.DescribeDatasetImportJobInput) (*svc.DescribeDatasetImportJobOutput, error) {
			gotARN = aws.ToString(in.DatasetImportJobArn)
			return &svc.DescribeDatasetImportJobOutput{
				DatasetImportJobArn: in.DatasetImportJobArn,
				Status:              aws.String("ACTIVE"),
			}, nil
		},
		listTagsForResource: func(*svc.ListTagsForResourceInput) (*svc.ListTagsForResourceOutput, error) {
			return &svc.ListTagsForResourceOutput{}, nil
		},
	}
	p := testProvider(api)

	desc, err := p.DescribeDatasetImportJob(context.Background(), "taxi", "taxi_import_abc123def456")
	if err != nil {
		t.Fatalf("DescribeDatasetImportJob: %v", err)
	}
	want := "arn:aws:forecast:us-east-1:123456789012:dataset-import-job/taxi/taxi_import_abc123def456"
	if gotARN != want {
		t.Errorf("expected ARN %s, got %s", want, gotARN)
	}
	if desc.Status != fc.StatusActive {
		t.Errorf("expected ACTIVE, got %s", desc.Status)
	}
}

func TestCreateDatasetGroupDropsAbsentTags(t *testing.T) {
	var got *svc.CreateDatasetGroupInput
	api := &fakeSDK{
		t: t,
		createDatasetGroup: func(in *svc.CreateDatasetGroupInput) (*svc.CreateDatasetGroupOutput, error) {
			got = in
			return &svc.CreateDatasetGroupOutput{
				DatasetGroupArn: aws.String("arn:aws:forecast:us-east-1:123456789012:dataset-group/taxi"),
			}, nil
		},
	}
	p := testProvider(api)

	arn, err := p.CreateDatasetGroup(context.Background(), fc.DatasetGroupInput{
		Name:   "taxi",
		Domain: "CUSTOM",
		Tags: []config.Tag{
			{Key: "team", Value: "data"},
			{Key: "legacy", State: config.TagAbsent},
		},
	})
	if err != nil {
		t.Fatalf("CreateDatasetGroup: %v", err)
	}
	if arn == "" {
		t.Error("expected an ARN")
	}
	if got.Domain != types.Domain("CUSTOM") {
		t.Errorf("unexpected domain %s", got.Domain)
	}
	if len(got.Tags) != 1 || aws.ToString(got.Tags[0].Key) != "team" {
		t.Errorf("expected only the Present tag, got %v", got.Tags)
	}
}

func TestCreatePredictorSelectsAutoMLWithoutAlgorithm(t *testing.T) {
	var got *svc.CreatePredictorInput
	api := &fakeSDK{
		t: t,
		createPredictor: func(in *svc.CreatePredictorInput) (*svc.CreatePredictorOutput, error) {
			got = in
			return &svc.CreatePredictorOutput{
				PredictorArn: aws.String("arn:aws:forecast:us-east-1:123456789012:predictor/taxi_predictor"),
			}, nil
		},
	}
	p := testProvider(api)

	_, err := p.CreatePredictor(context.Background(), fc.PredictorInput{
		Name:              "taxi_predictor",
		DatasetGroupName:  "taxi",
		ForecastHorizon:   24,
		ForecastFrequency: "H",
	})
	if err != nil {
		t.Fatalf("CreatePredictor: %v", err)
	}
	if got.AlgorithmArn != nil {
		t.Errorf("expected no algorithm, got %s", aws.ToString(got.AlgorithmArn))
	}
	if !aws.ToBool(got.PerformAutoML) {
		t.Error("expected AutoML to be selected")
	}
	if aws.ToInt32(got.ForecastHorizon) != 24 {
		t.Errorf("unexpected horizon %d", aws.ToInt32(got.ForecastHorizon))
	}

	_, err = p.CreatePredictor(context.Background(), fc.PredictorInput{
		Name:              "taxi_predictor",
		DatasetGroupName:  "taxi",
		AlgorithmArn:      "arn:aws:forecast:::algorithm/Deep_AR_Plus",
		ForecastHorizon:   24,
		ForecastFrequency: "H",
	})
	if err != nil {
		t.Fatalf("CreatePredictor: %v", err)
	}
	if aws.ToString(got.AlgorithmArn) != "arn:aws:forecast:::algorithm/Deep_AR_Plus" {
		t.Errorf("expected explicit algorithm, got %v", got.AlgorithmArn)
	}
	if got.PerformAutoML != nil {
		t.Error("expected AutoML to be off with an explicit algorithm")
	}
}

func TestDescribePredictorMergesLiveTags(t *testing.T) {
	api := &fakeSDK{
		t: t,
		describePredictor: func(in *svc.DescribePredictorInput) (*svc.DescribePredictorOutput, error) {
			return &svc.DescribePredictorOutput{
				PredictorArn: in.PredictorArn,
				Status:       aws.String("ACTIVE"),
			}, nil
		},
		listTagsForResource: func(*svc.ListTagsForResourceInput) (*svc.ListTagsForResourceOutput, error) {
			return &svc.ListTagsForResourceOutput{Tags: []types.Tag{
				{Key: aws.String("forecastkit:fingerprint"), Value: aws.String("abc123")},
			}}, nil
		},
	}
	p := testProvider(api)

	desc, err := p.DescribePredictor(context.Background(), "taxi_predictor")
	if err != nil {
		t.Fatalf("DescribePredictor: %v", err)
	}
	if desc.Tags["forecastkit:fingerprint"] != "abc123" {
		t.Errorf("expected live tags on the description, got %v", desc.Tags)
	}
}

func TestListPredictorsPaginatesNewestFirst(t *testing.T) {
	base := time.Now()
	api := &fakeSDK{t: t}
	api.listPredictors = func(in *svc.ListPredictorsInput) (*svc.ListPredictorsOutput, error) {
		if len(in.Filters) != 1 || aws.ToString(in.Filters[0].Key) != "DatasetGroupArn" {
			t.Fatalf("expected a DatasetGroupArn filter, got %v", in.Filters)
		}
		if in.NextToken == nil {
			return &svc.ListPredictorsOutput{
				Predictors: []types.PredictorSummary{{
					PredictorName: aws.String("old"),
					PredictorArn:  aws.String("arn:old"),
					Status:        aws.String("ACTIVE"),
					CreationTime:  aws.Time(base.Add(-2 * time.Hour)),
				}},
				NextToken: aws.String("page2"),
			}, nil
		}
		return &svc.ListPredictorsOutput{
			Predictors: []types.PredictorSummary{{
				PredictorName: aws.String("new"),
				PredictorArn:  aws.String("arn:new"),
				Status:        aws.String("ACTIVE"),
				CreationTime:  aws.Time(base),
			}},
		}, nil
	}
	p := testProvider(api)

	summaries, err := p.ListPredictors(context.Background(), "taxi")
	if err != nil {
		t.Fatalf("ListPredictors: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 predictors, got %d", len(summaries))
	}
	if summaries[0].Name != "new" || summaries[1].Name != "old" {
		t.Errorf("expected newest first, got %s then %s", summaries[0].Name, summaries[1].Name)
	}
}

func TestCreateImportJobCarriesRoleAndLocation(t *testing.T) {
	var got *svc.CreateDatasetImportJobInput
	api := &fakeSDK{
		t: t,
		createImportJob: func(in *svc.CreateDatasetImportJobInput) (*svc.CreateDatasetImportJobOutput, error) {
			got = in
			return &svc.CreateDatasetImportJobOutput{
				DatasetImportJobArn: aws.String("arn:import"),
			}, nil
		},
	}
	p := testProvider(api)

	_, err := p.CreateDatasetImportJob(context.Background(), fc.ImportJobInput{
		Name:            "taxi_import_abc",
		DatasetName:     "taxi",
		DataLocation:    "s3://uploads/taxi/data.csv",
		TimestampFormat: "yyyy-MM-dd HH:mm:ss",
	})
	if err != nil {
		t.Fatalf("CreateDatasetImportJob: %v", err)
	}
	s3cfg := got.DataSource.S3Config
	if aws.ToString(s3cfg.Path) != "s3://uploads/taxi/data.csv" {
		t.Errorf("unexpected path %s", aws.ToString(s3cfg.Path))
	}
	if aws.ToString(s3cfg.RoleArn) != "arn:aws:iam::123456789012:role/forecastkit" {
		t.Errorf("unexpected role %s", aws.ToString(s3cfg.RoleArn))
	}
	if aws.ToString(got.DatasetArn) != "arn:aws:forecast:us-east-1:123456789012:dataset/taxi" {
		t.Errorf("unexpected dataset ARN %s", aws.ToString(got.DatasetArn))
	}
}
