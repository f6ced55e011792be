package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/forecastkit/forecastkit/pkg/config"
	"github.com/forecastkit/forecastkit/pkg/forecast"
	"github.com/forecastkit/forecastkit/pkg/identity"
)

// fakeService is an in-memory stand-in for the forecasting service.
// Created resources become ACTIVE immediately unless a status override is
// configured.
type fakeService struct {
	mu        sync.Mutex
	resources map[string]*forecast.Description
	byARN     map[string]*forecast.Description

	predictors []forecast.PredictorSummary

	// importJobStatus overrides the status of created import jobs.
	importJobStatus forecast.Status

	createCalls map[string]int
}

func newFakeService() *fakeService {
	return &fakeService{
		resources:   make(map[string]*forecast.Description),
		byARN:       make(map[string]*forecast.Description),
		createCalls: make(map[string]int),
	}
}

func (s *fakeService) countCall(op string) {
	s.createCalls[op]++
}

func (s *fakeService) calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls[op]
}

func tagMap(tags []config.Tag) map[string]string {
	m := make(map[string]string)
	for _, t := range tags {
		if !t.Absent() {
			m[t.Key] = t.Value
		}
	}
	return m
}

func (s *fakeService) create(op, name string, status forecast.Status, tags []config.Tag) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCall(op)

	if _, exists := s.resources[name]; exists {
		cerr := forecast.NewConflictError("resource already exists", nil)
		cerr.Code = forecast.ErrCodeAlreadyExists
		return "", cerr
	}

	desc := &forecast.Description{
		Name:         name,
		ARN:          "arn:fake:" + name,
		Status:       status,
		CreationTime: time.Now(),
		Tags:         tagMap(tags),
	}
	s.resources[name] = desc
	s.byARN[desc.ARN] = desc
	return desc.ARN, nil
}

func (s *fakeService) describe(name string) (*forecast.Description, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	desc, ok := s.resources[name]
	if !ok {
		nf := forecast.NewPermanentError("no such resource", nil)
		nf.Code = forecast.ErrCodeNotFound
		return nil, nf.WithResource(name)
	}
	copy := *desc
	return &copy, nil
}

func (s *fakeService) CreateDatasetGroup(ctx context.Context, in forecast.DatasetGroupInput) (string, error) {
	return s.create("CreateDatasetGroup", in.Name, forecast.StatusActive, in.Tags)
}

func (s *fakeService) DescribeDatasetGroup(ctx context.Context, name string) (*forecast.Description, error) {
	return s.describe(name)
}

func (s *fakeService) UpdateDatasetGroup(ctx context.Context, name string, datasetNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCall("UpdateDatasetGroup")
	if _, ok := s.resources[name]; !ok {
		nf := forecast.NewPermanentError("no such dataset group", nil)
		nf.Code = forecast.ErrCodeNotFound
		return nf
	}
	return nil
}

func (s *fakeService) CreateDataset(ctx context.Context, in forecast.DatasetInput) (string, error) {
	return s.create("CreateDataset", in.Name, forecast.StatusActive, in.Tags)
}

func (s *fakeService) DescribeDataset(ctx context.Context, name string) (*forecast.Description, error) {
	return s.describe(name)
}

func (s *fakeService) CreateDatasetImportJob(ctx context.Context, in forecast.ImportJobInput) (string, error) {
	status := forecast.StatusActive
	if s.importJobStatus != "" {
		status = s.importJobStatus
	}
	return s.create("CreateDatasetImportJob", in.Name, status, in.Tags)
}

func (s *fakeService) DescribeDatasetImportJob(ctx context.Context, datasetName, jobName string) (*forecast.Description, error) {
	return s.describe(jobName)
}

func (s *fakeService) CreatePredictor(ctx context.Context, in forecast.PredictorInput) (string, error) {
	arn, err := s.create("CreatePredictor", in.Name, forecast.StatusActive, in.Tags)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.predictors = append(s.predictors, forecast.PredictorSummary{
		Name:         in.Name,
		ARN:          arn,
		Status:       forecast.StatusActive,
		CreationTime: time.Now(),
	})
	s.mu.Unlock()
	return arn, nil
}

func (s *fakeService) DescribePredictor(ctx context.Context, name string) (*forecast.Description, error) {
	return s.describe(name)
}

func (s *fakeService) ListPredictors(ctx context.Context, datasetGroupName string) ([]forecast.PredictorSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]forecast.PredictorSummary, 0, len(s.predictors))
	for i := len(s.predictors) - 1; i >= 0; i-- {
		out = append(out, s.predictors[i])
	}
	return out, nil
}

func (s *fakeService) CreateForecast(ctx context.Context, in forecast.ForecastInput) (string, error) {
	return s.create("CreateForecast", in.Name, forecast.StatusActive, in.Tags)
}

func (s *fakeService) DescribeForecast(ctx context.Context, name string) (*forecast.Description, error) {
	return s.describe(name)
}

func (s *fakeService) CreateForecastExportJob(ctx context.Context, in forecast.ExportJobInput) (string, error) {
	return s.create("CreateForecastExportJob", in.Name, forecast.StatusActive, in.Tags)
}

func (s *fakeService) DescribeForecastExportJob(ctx context.Context, forecastName, jobName string) (*forecast.Description, error) {
	return s.describe(jobName)
}

func (s *fakeService) TagResource(ctx context.Context, arn string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	desc, ok := s.byARN[arn]
	if !ok {
		nf := forecast.NewPermanentError("no such resource", nil)
		nf.Code = forecast.ErrCodeNotFound
		return nf
	}
	if desc.Tags == nil {
		desc.Tags = make(map[string]string)
	}
	for k, v := range tags {
		desc.Tags[k] = v
	}
	return nil
}

func (s *fakeService) UntagResource(ctx context.Context, arn string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if desc, ok := s.byARN[arn]; ok {
		for _, k := range keys {
			delete(desc.Tags, k)
		}
	}
	return nil
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu         sync.Mutex
	executions map[string]*Execution
	resources  map[string][]*ResourceRecord
}

func newMemStore() *memStore {
	return &memStore{
		executions: make(map[string]*Execution),
		resources:  make(map[string][]*ResourceRecord),
	}
}

func (m *memStore) SaveExecution(ctx context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *exec
	m.executions[exec.ID] = &copy
	return nil
}

func (m *memStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *exec
	return &copy, nil
}

func (m *memStore) LatestExecution(ctx context.Context, datasetGroup string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Execution
	for _, exec := range m.executions {
		if exec.DatasetGroup != datasetGroup {
			continue
		}
		if latest == nil || exec.StartedAt.After(latest.StartedAt) {
			latest = exec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

func (m *memStore) ListExecutions(ctx context.Context, datasetGroup string, limit int) ([]*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Execution, 0)
	for _, exec := range m.executions {
		if datasetGroup == "" || exec.DatasetGroup == datasetGroup {
			copy := *exec
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *memStore) SaveResource(ctx context.Context, rec *ResourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	m.resources[rec.ExecutionID] = append(m.resources[rec.ExecutionID], &copy)
	return nil
}

func (m *memStore) ListResources(ctx context.Context, executionID string) ([]*ResourceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ResourceRecord(nil), m.resources[executionID]...), nil
}

func (m *memStore) Close() error { return nil }

// memNotifier records outcomes.
type memNotifier struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (n *memNotifier) NotifyOutcome(ctx context.Context, outcome Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func (n *memNotifier) last(t *testing.T) Outcome {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.outcomes) == 0 {
		t.Fatal("no outcome was delivered")
	}
	return n.outcomes[len(n.outcomes)-1]
}

// memObjects is a trivial ObjectStore.
type memObjects struct{}

func (memObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) { return nil, nil }

func (memObjects) Fingerprint(ctx context.Context, key string) (string, error) { return "", nil }

func (memObjects) URI(key string) string { return "s3://bucket/" + key }

func (memObjects) ExportPrefix(datasetGroup, executionID string) string {
	return "s3://bucket/exports/" + datasetGroup + "/" + executionID + "/"
}

type testEnv struct {
	svc      *fakeService
	store    *memStore
	notifier *memNotifier
	orch     *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	svc := newFakeService()
	store := newMemStore()
	notifier := &memNotifier{}

	client := forecast.NewClient(svc, forecast.RetryConfig{
		MaxAttempts:   3,
		TransientBase: time.Nanosecond,
		ThrottleBase:  time.Nanosecond,
		MaxDelay:      time.Nanosecond,
	}, nil, nil)

	orch := NewOrchestrator(client, store, memObjects{}, notifier, Options{
		PollInterval: time.Millisecond,
		WaitTimeout:  time.Second,
	})
	orch.waiter.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return &testEnv{svc: svc, store: store, notifier: notifier, orch: orch}
}

func testConfig() *config.EffectiveConfig {
	return &config.EffectiveConfig{
		Name:   "taxi",
		Domain: "CUSTOM",
		Datasets: []config.DatasetSpec{
			{
				DatasetType:     config.TargetTimeSeries,
				Domain:          "CUSTOM",
				DataFrequency:   "D",
				TimestampFormat: "yyyy-MM-dd",
				Schema: config.Schema{Attributes: []config.SchemaAttribute{
					{AttributeName: "item_id", AttributeType: "string"},
					{AttributeName: "timestamp", AttributeType: "timestamp"},
					{AttributeName: "target_value", AttributeType: "float"},
				}},
			},
		},
		Predictor: config.PredictorSpec{
			AlgorithmArn:      "arn:aws:forecast:::algorithm/Deep_AR_Plus",
			ForecastHorizon:   24,
			ForecastFrequency: "D",
		},
		Forecast: config.ForecastSpec{
			ForecastTypes: []string{"0.10", "0.50", "0.90"},
		},
	}
}

func testUploads(content string) []UploadEvent {
	return []UploadEvent{{
		DatasetGroup: "taxi",
		DatasetType:  config.TargetTimeSeries,
		Location:     "s3://bucket/train/taxi.csv",
		Fingerprint:  identity.FingerprintBytes([]byte(content)),
		DetectedAt:   time.Now(),
	}}
}

func TestRunCompletesFullPipeline(t *testing.T) {
	env := newTestEnv(t)

	exec, err := env.orch.Run(context.Background(), testConfig(), testUploads("january"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.State != StateDone {
		t.Fatalf("expected state %s, got %s", StateDone, exec.State)
	}
	if exec.PredictorName == "" || exec.ForecastName == "" || exec.ForecastARN == "" {
		t.Errorf("execution missing resource names: %+v", exec)
	}
	if exec.ExportLocation == "" {
		t.Error("execution missing export location")
	}

	for _, op := range []string{
		"CreateDatasetGroup", "CreateDataset", "UpdateDatasetGroup",
		"CreateDatasetImportJob", "CreatePredictor", "CreateForecast",
		"CreateForecastExportJob",
	} {
		if env.svc.calls(op) != 1 {
			t.Errorf("expected exactly one %s call, got %d", op, env.svc.calls(op))
		}
	}

	outcome := env.notifier.last(t)
	if !outcome.Succeeded() {
		t.Errorf("expected success outcome, got %+v", outcome)
	}
	if outcome.ExecutionID != exec.ID {
		t.Errorf("outcome for wrong execution: %s != %s", outcome.ExecutionID, exec.ID)
	}

	recs, err := env.store.ListResources(context.Background(), exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 6 {
		t.Errorf("expected 6 resource records, got %d", len(recs))
	}
}

func TestImportFailureFailsExecutionBeforeTraining(t *testing.T) {
	env := newTestEnv(t)
	env.svc.importJobStatus = forecast.StatusCreateFailed

	exec, err := env.orch.Run(context.Background(), testConfig(), testUploads("january"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if exec.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, exec.State)
	}
	if env.svc.calls("CreatePredictor") != 0 {
		t.Error("training must not start after an import failure")
	}

	outcome := env.notifier.last(t)
	if outcome.Succeeded() {
		t.Error("expected failure outcome")
	}
	if outcome.Error == "" {
		t.Error("failure outcome missing error message")
	}
}

func TestSecondRunReusesRecentPredictor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()

	first, err := env.orch.Run(ctx, cfg, testUploads("january"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.PredictorReused {
		t.Fatal("first run cannot reuse a predictor")
	}

	// Same data again: the trained predictor is recent and fingerprints
	// match, so training is skipped.
	second, err := env.orch.Run(ctx, cfg, testUploads("january"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("terminal execution must not be resumed")
	}
	if !second.PredictorReused {
		t.Error("second run should reuse the predictor")
	}
	if second.PredictorName != first.PredictorName {
		t.Errorf("reused a different predictor: %s != %s", second.PredictorName, first.PredictorName)
	}
	if env.svc.calls("CreatePredictor") != 1 {
		t.Errorf("expected a single training run, got %d", env.svc.calls("CreatePredictor"))
	}
}

func TestNewDataTrainsNewPredictor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()

	first, err := env.orch.Run(ctx, cfg, testUploads("january"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := env.orch.Run(ctx, cfg, testUploads("february"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.PredictorReused {
		t.Error("new data must not reuse the old predictor")
	}
	if second.PredictorName == first.PredictorName {
		t.Error("new data should produce a new predictor identity")
	}
	if env.svc.calls("CreatePredictor") != 2 {
		t.Errorf("expected two training runs, got %d", env.svc.calls("CreatePredictor"))
	}
}

func TestExpiredPredictorIsNotReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()
	maxAge := int64(3600)
	cfg.Predictor.MaxAge = &maxAge

	if _, err := env.orch.Run(ctx, cfg, testUploads("january")); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Age the trained predictor past MaxAge.
	env.svc.mu.Lock()
	for i := range env.svc.predictors {
		env.svc.predictors[i].CreationTime = time.Now().Add(-2 * time.Hour)
	}
	env.svc.mu.Unlock()

	second, err := env.orch.Run(ctx, cfg, testUploads("january"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.PredictorReused {
		t.Error("expired predictor must not be reused")
	}
}

func TestFingerprintMismatchFailsExecution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()

	// Occupy the deterministic predictor name with a foreign resource.
	trainFP := identity.PredictorFingerprint(cfg.Predictor)
	uploads := testUploads("january")
	combinedFP := identity.FingerprintBytes([]byte(trainFP + "|" + canonicalFingerprints(map[string]string{
		uploads[0].DatasetType: uploads[0].Fingerprint,
	})))
	name := identity.Name("taxi", identity.KindPredictor, combinedFP)
	if _, err := env.svc.create("seed", name, forecast.StatusActive, []config.Tag{
		{Key: config.TagKeyFingerprint, Value: "somebody-elses-fingerprint"},
	}); err != nil {
		t.Fatal(err)
	}

	exec, err := env.orch.Run(ctx, cfg, uploads)
	if err == nil {
		t.Fatal("expected an error")
	}
	var ce *forecast.ClientError
	if !errors.As(err, &ce) || ce.Code != forecast.ErrCodeResourceMismatch {
		t.Errorf("expected %s, got %v", forecast.ErrCodeResourceMismatch, err)
	}
	if exec.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, exec.State)
	}
}

func TestUntaggedForeignResourceFailsExecution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()

	// A resource without the fingerprint tag was not created by this
	// system; it must not be adopted just because the name matches.
	trainFP := identity.PredictorFingerprint(cfg.Predictor)
	uploads := testUploads("january")
	combinedFP := identity.FingerprintBytes([]byte(trainFP + "|" + canonicalFingerprints(map[string]string{
		uploads[0].DatasetType: uploads[0].Fingerprint,
	})))
	name := identity.Name("taxi", identity.KindPredictor, combinedFP)
	if _, err := env.svc.create("seed", name, forecast.StatusActive, nil); err != nil {
		t.Fatal(err)
	}

	exec, err := env.orch.Run(ctx, cfg, uploads)
	if err == nil {
		t.Fatal("expected an error")
	}
	var ce *forecast.ClientError
	if !errors.As(err, &ce) || ce.Code != forecast.ErrCodeResourceMismatch {
		t.Errorf("expected %s, got %v", forecast.ErrCodeResourceMismatch, err)
	}
	if exec.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, exec.State)
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := testConfig()
	uploads := testUploads("january")

	// Seed a persisted execution that already finished the import stage.
	seeded := &Execution{
		ID:           "resume-1",
		DatasetGroup: cfg.Name,
		State:        StateDatasetsImported,
		DataFingerprints: map[string]string{
			uploads[0].DatasetType: uploads[0].Fingerprint,
		},
		StartedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now().Add(-time.Minute),
	}
	if err := env.store.SaveExecution(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	exec, err := env.orch.Run(ctx, cfg, uploads)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.ID != seeded.ID {
		t.Fatalf("expected resumed execution %s, got %s", seeded.ID, exec.ID)
	}
	if exec.State != StateDone {
		t.Errorf("expected state %s, got %s", StateDone, exec.State)
	}
	if env.svc.calls("CreateDatasetGroup") != 0 || env.svc.calls("CreateDatasetImportJob") != 0 {
		t.Error("completed stages must not be re-executed on resume")
	}
	if env.svc.calls("CreatePredictor") != 1 {
		t.Errorf("expected one training run after resume, got %d", env.svc.calls("CreatePredictor"))
	}
}

func TestResourceTagsCarrySolutionMarker(t *testing.T) {
	env := newTestEnv(t)

	exec, err := env.orch.Run(context.Background(), testConfig(), testUploads("january"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	desc, err := env.svc.describe(exec.PredictorName)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Tags[config.TagKeySolution] != "forecastkit" {
		t.Errorf("predictor missing solution tag, tags: %v", desc.Tags)
	}
	if desc.Tags[config.TagKeyFingerprint] == "" {
		t.Error("predictor missing fingerprint tag")
	}
}
