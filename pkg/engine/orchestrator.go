package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forecastkit/forecastkit/pkg/config"
	"github.com/forecastkit/forecastkit/pkg/forecast"
	"github.com/forecastkit/forecastkit/pkg/identity"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// DefaultPredictorMaxAge is how long a trained predictor stays eligible
// for reuse when the configuration does not set MaxAge.
const DefaultPredictorMaxAge = 604800 * time.Second

// Options configures an Orchestrator.
type Options struct {
	// PollInterval is how often pending resources are re-described.
	PollInterval time.Duration

	// WaitTimeout bounds how long a single stage may stay pending. Zero
	// means no bound.
	WaitTimeout time.Duration

	// Logger receives orchestration logs. A default logger is used when
	// nil.
	Logger *telemetry.Logger

	// Metrics receives orchestration metrics, optional.
	Metrics *telemetry.Metrics

	// Events receives lifecycle events, optional.
	Events *telemetry.EventPublisher
}

// Orchestrator drives the forecast pipeline for dataset groups: dataset
// group creation, data imports, predictor training or reuse, forecast
// generation, and export. Every state transition is persisted so an
// interrupted execution resumes instead of restarting.
type Orchestrator struct {
	client   *forecast.Client
	store    StateStore
	objects  ObjectStore
	notifier Notifier
	queue    *GroupQueue
	waiter   *Waiter

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(
	client *forecast.Client,
	store StateStore,
	objects ObjectStore,
	notifier Notifier,
	opts Options,
) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = telemetry.FromContext(context.Background())
	}
	return &Orchestrator{
		client:   client,
		store:    store,
		objects:  objects,
		notifier: notifier,
		queue:    NewGroupQueue(opts.Metrics),
		waiter:   NewWaiter(opts.PollInterval, opts.WaitTimeout),
		log:      log.NewComponentLogger("engine"),
		metrics:  opts.Metrics,
		events:   opts.Events,
	}
}

// auditTrail is implemented by stores that keep a durable per-execution
// event log next to the execution rows. Recording is best effort.
type auditTrail interface {
	RecordEvent(ctx context.Context, executionID, eventType, resource, level, message string) error
}

func (o *Orchestrator) audit(ctx context.Context, executionID, eventType, resource, level, message string) {
	trail, ok := o.store.(auditTrail)
	if !ok {
		return
	}
	if err := trail.RecordEvent(ctx, executionID, eventType, resource, level, message); err != nil {
		o.log.WithExecutionID(executionID).WithError(err).Warn("failed to record audit event")
	}
}

// Run starts or resumes the pipeline execution for a dataset group in
// response to a set of detected uploads. Executions for the same dataset
// group are serialized; Run blocks while another execution holds the
// group.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.EffectiveConfig, uploads []UploadEvent) (*Execution, error) {
	release, err := o.queue.Acquire(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	exec, resumed, err := o.resolveExecution(ctx, cfg, uploads)
	if err != nil {
		return nil, err
	}

	log := o.log.WithExecutionID(exec.ID).WithDatasetGroup(cfg.Name)
	if resumed {
		log.WithField("state", exec.State).Info("resuming execution")
		o.audit(ctx, exec.ID, "execution.resumed", "", "info", fmt.Sprintf("resumed at state %s", exec.State))
	} else {
		log.Info("starting execution")
		if o.metrics != nil {
			o.metrics.RecordExecutionStarted(cfg.Name)
		}
		if o.events != nil {
			_ = o.events.PublishExecutionStarted(exec.ID, cfg.Name)
		}
		o.audit(ctx, exec.ID, "execution.started", "", "info", "")
	}

	if runErr := o.advance(ctx, exec, cfg, uploads); runErr != nil {
		o.fail(ctx, exec, runErr)
		return exec, runErr
	}

	o.complete(ctx, exec)
	return exec, nil
}

// resolveExecution returns the execution to run: the latest non-terminal
// execution for the group when its triggering data matches, otherwise a
// fresh one.
func (o *Orchestrator) resolveExecution(ctx context.Context, cfg *config.EffectiveConfig, uploads []UploadEvent) (*Execution, bool, error) {
	fps := make(map[string]string, len(uploads))
	for _, u := range uploads {
		fps[u.DatasetType] = u.Fingerprint
	}

	latest, err := o.store.LatestExecution(ctx, cfg.Name)
	if err != nil && !IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to load latest execution: %w", err)
	}
	if latest != nil && !latest.State.IsTerminal() && sameFingerprints(latest.DataFingerprints, fps) {
		return latest, true, nil
	}

	now := time.Now()
	exec := &Execution{
		ID:               uuid.New().String(),
		DatasetGroup:     cfg.Name,
		State:            StatePending,
		DataFingerprints: fps,
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		return nil, false, fmt.Errorf("failed to save execution: %w", err)
	}
	return exec, false, nil
}

func sameFingerprints(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// advance walks the execution through the remaining stages in order.
func (o *Orchestrator) advance(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, uploads []UploadEvent) error {
	stages := []struct {
		name   string
		target ExecState
		run    func(context.Context, *Execution, *config.EffectiveConfig, []UploadEvent) error
	}{
		{StageDatasetGroup, StateDatasetGroupReady, o.ensureDatasetGroup},
		{StageImport, StateDatasetsImported, o.ensureImports},
		{StagePredictor, StatePredictorReady, o.ensurePredictor},
		{StageForecast, StateForecastReady, o.ensureForecast},
		{StageExport, StateExported, o.ensureExport},
	}

	for _, stage := range stages {
		if exec.State.Reached(stage.target) {
			continue
		}
		timer := telemetry.NewTimer()
		if o.events != nil {
			_ = o.events.PublishStageStarted(exec.ID, stage.name, exec.DatasetGroup)
		}
		err := stage.run(ctx, exec, cfg, uploads)
		if o.metrics != nil {
			status := "succeeded"
			if err != nil {
				status = "failed"
			}
			o.metrics.RecordStage(stage.name, status, timer.Duration())
		}
		if err != nil {
			if o.events != nil {
				_ = o.events.PublishStageFailed(exec.ID, stage.name, exec.DatasetGroup, err.Error())
			}
			o.audit(ctx, exec.ID, "stage.failed", stage.name, "error", err.Error())
			return fmt.Errorf("stage %s: %w", stage.name, err)
		}
		if o.events != nil {
			_ = o.events.PublishStageCompleted(exec.ID, stage.name, exec.DatasetGroup, timer.Duration())
		}
		o.audit(ctx, exec.ID, "stage.completed", stage.name, "info", "")
		if err := o.transition(ctx, exec, stage.target); err != nil {
			return err
		}
	}
	return nil
}

// transition persists a forward state change.
func (o *Orchestrator) transition(ctx context.Context, exec *Execution, state ExecState) error {
	exec.State = state
	exec.UpdatedAt = time.Now()
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		return fmt.Errorf("failed to persist state %s: %w", state, err)
	}
	return nil
}

// ensureDatasetGroup creates the dataset group and its datasets and
// associates them.
func (o *Orchestrator) ensureDatasetGroup(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, _ []UploadEvent) error {
	groupName := identity.Sanitize(cfg.Name)

	arn, err := o.client.CreateDatasetGroup(ctx, forecast.DatasetGroupInput{
		Name:   groupName,
		Domain: cfg.Domain,
		Tags:   cfg.TagsFor(cfg.DatasetGroupTags),
	})
	if err != nil {
		return err
	}
	if err := o.applyTags(ctx, arn, cfg.TagsFor(cfg.DatasetGroupTags), nil); err != nil {
		return err
	}
	o.recordResource(ctx, exec, string(identity.KindDatasetGroup), groupName, arn, false)

	datasetNames := make([]string, 0, len(cfg.Datasets))
	for _, ds := range cfg.Datasets {
		name := identity.DatasetName(groupName, ds.DatasetType)
		dsARN, err := o.client.CreateDataset(ctx, forecast.DatasetInput{
			Name:          name,
			DatasetType:   ds.DatasetType,
			Domain:        ds.Domain,
			Schema:        ds.Schema,
			DataFrequency: ds.DataFrequency,
			Tags:          cfg.TagsFor(ds.Tags),
		})
		if err != nil {
			return err
		}
		o.recordResource(ctx, exec, string(identity.KindDataset), name, dsARN, false)
		datasetNames = append(datasetNames, name)
	}

	return o.client.UpdateDatasetGroup(ctx, groupName, datasetNames)
}

// ensureImports starts one import job per triggered upload and waits for
// all of them. An import failure fails the whole execution before any
// training starts.
func (o *Orchestrator) ensureImports(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, uploads []UploadEvent) error {
	groupName := identity.Sanitize(cfg.Name)

	type pendingImport struct {
		datasetName string
		jobName     string
	}
	pending := make([]pendingImport, 0, len(uploads))

	for _, upload := range uploads {
		ds := cfg.Dataset(upload.DatasetType)
		if ds == nil {
			o.log.WithExecutionID(exec.ID).
				WithField("dataset_type", upload.DatasetType).
				Warn("upload for unconfigured dataset type, skipping")
			continue
		}

		datasetName := identity.DatasetName(groupName, upload.DatasetType)
		jobName := identity.ImportJobName(groupName, upload.DatasetType, upload.Fingerprint)

		tags := cfg.TagsFor(ds.Tags)
		tags = append(tags, config.Tag{Key: config.TagKeyFingerprint, Value: upload.Fingerprint})

		arn, err := o.client.CreateDatasetImportJob(ctx, forecast.ImportJobInput{
			Name:            jobName,
			DatasetName:     datasetName,
			DataLocation:    upload.Location,
			TimestampFormat: ds.TimestampFormat,
			Tags:            tags,
		})
		if err != nil {
			return err
		}
		o.recordResource(ctx, exec, string(identity.KindImportJob), jobName, arn, false)
		pending = append(pending, pendingImport{datasetName: datasetName, jobName: jobName})
	}

	for _, imp := range pending {
		imp := imp
		_, err := o.waiter.AwaitFinalized(ctx, imp.jobName, func(ctx context.Context) (*forecast.Description, error) {
			return o.client.DescribeDatasetImportJob(ctx, imp.datasetName, imp.jobName)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ensurePredictor reuses a recent matching predictor when possible,
// otherwise trains a new one and waits for it.
func (o *Orchestrator) ensurePredictor(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, _ []UploadEvent) error {
	groupName := identity.Sanitize(cfg.Name)

	trainFP := identity.PredictorFingerprint(cfg.Predictor)
	combinedFP := identity.FingerprintBytes([]byte(trainFP + "|" + canonicalFingerprints(exec.DataFingerprints)))
	exec.PredictorFingerprint = combinedFP

	maxAge := DefaultPredictorMaxAge
	if cfg.Predictor.MaxAge != nil {
		maxAge = time.Duration(*cfg.Predictor.MaxAge) * time.Second
	}

	if reused, err := o.findReusablePredictor(ctx, groupName, combinedFP, maxAge); err != nil {
		return err
	} else if reused != nil {
		exec.PredictorName = reused.Name
		exec.PredictorReused = true
		o.recordReusedResource(ctx, exec, string(identity.KindPredictor), reused.Name, reused.ARN)
		if o.metrics != nil {
			o.metrics.RecordPredictorReused(exec.DatasetGroup)
		}
		if o.events != nil {
			_ = o.events.PublishPredictorReused(exec.ID, exec.DatasetGroup, reused.Name)
		}
		o.log.WithExecutionID(exec.ID).
			WithField("predictor", reused.Name).
			Info("reusing existing predictor")
		return nil
	}

	name := identity.Name(groupName, identity.KindPredictor, combinedFP)
	tags := cfg.TagsFor(cfg.Predictor.Tags)
	tags = append(tags, config.Tag{Key: config.TagKeyFingerprint, Value: combinedFP})

	arn, err := o.client.CreatePredictor(ctx, forecast.PredictorInput{
		Name:               name,
		DatasetGroupName:   groupName,
		AlgorithmArn:       cfg.Predictor.AlgorithmArn,
		ForecastHorizon:    cfg.Predictor.ForecastHorizon,
		ForecastFrequency:  cfg.Predictor.ForecastFrequency,
		TrainingParameters: cfg.Predictor.TrainingParameters,
		Tags:               tags,
	})
	if err != nil {
		return err
	}

	desc, err := o.waiter.AwaitFinalized(ctx, name, func(ctx context.Context) (*forecast.Description, error) {
		return o.client.DescribePredictor(ctx, name)
	})
	if err != nil {
		return err
	}
	if err := o.checkFingerprint(desc, combinedFP); err != nil {
		return err
	}
	if err := o.applyTags(ctx, arn, tags, nil); err != nil {
		return err
	}

	exec.PredictorName = name
	o.recordResource(ctx, exec, string(identity.KindPredictor), name, arn, false)
	return nil
}

// findReusablePredictor returns the newest active predictor of the group
// whose fingerprint matches and whose age is within maxAge, or nil.
func (o *Orchestrator) findReusablePredictor(ctx context.Context, groupName, fingerprint string, maxAge time.Duration) (*forecast.Description, error) {
	summaries, err := o.client.ListPredictors(ctx, groupName)
	if err != nil {
		return nil, err
	}

	for _, summary := range summaries {
		// Newest first: once one predictor is too old, the rest are too.
		if time.Since(summary.CreationTime) > maxAge {
			return nil, nil
		}
		desc, err := o.client.DescribePredictor(ctx, summary.Name)
		if err != nil {
			if forecast.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !desc.Status.Finalized() {
			continue
		}
		if desc.Tags[config.TagKeyFingerprint] == fingerprint {
			return desc, nil
		}
	}
	return nil, nil
}

// checkFingerprint verifies that a resource resolved by name was built
// from the expected inputs. Every resource this system creates carries
// the fingerprint tag, so a missing tag means a foreign resource
// occupies the deterministic name just as much as a mismatching one;
// neither is ever silently adopted.
func (o *Orchestrator) checkFingerprint(desc *forecast.Description, fingerprint string) error {
	got, ok := desc.Tags[config.TagKeyFingerprint]
	if ok && got == fingerprint {
		return nil
	}
	if !ok {
		got = "none"
	}
	err := forecast.NewPermanentError(
		fmt.Sprintf("existing resource %s carries fingerprint %s, expected %s", desc.Name, got, fingerprint),
		nil,
	).WithResource(desc.Name)
	err.Code = forecast.ErrCodeResourceMismatch
	return err
}

// ensureForecast generates the forecast from the execution's predictor.
func (o *Orchestrator) ensureForecast(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, _ []UploadEvent) error {
	groupName := identity.Sanitize(cfg.Name)

	fp := identity.FingerprintBytes([]byte(exec.PredictorFingerprint + "|" + strings.Join(cfg.Forecast.ForecastTypes, ",")))
	name := identity.Name(groupName, identity.KindForecast, fp)

	tags := cfg.TagsFor(cfg.Forecast.Tags)
	tags = append(tags, config.Tag{Key: config.TagKeyFingerprint, Value: fp})

	arn, err := o.client.CreateForecast(ctx, forecast.ForecastInput{
		Name:          name,
		PredictorName: exec.PredictorName,
		ForecastTypes: cfg.Forecast.ForecastTypes,
		Tags:          tags,
	})
	if err != nil {
		return err
	}

	desc, err := o.waiter.AwaitFinalized(ctx, name, func(ctx context.Context) (*forecast.Description, error) {
		return o.client.DescribeForecast(ctx, name)
	})
	if err != nil {
		return err
	}
	if err := o.checkFingerprint(desc, fp); err != nil {
		return err
	}
	if err := o.applyTags(ctx, arn, tags, nil); err != nil {
		return err
	}

	exec.ForecastName = name
	exec.ForecastARN = arn
	o.recordResource(ctx, exec, string(identity.KindForecast), name, arn, false)
	return nil
}

// ensureExport writes the forecast results to the object store.
func (o *Orchestrator) ensureExport(ctx context.Context, exec *Execution, cfg *config.EffectiveConfig, _ []UploadEvent) error {
	groupName := identity.Sanitize(cfg.Name)

	destination := o.objects.ExportPrefix(cfg.Name, exec.ID)
	fp := identity.FingerprintBytes([]byte(exec.ForecastName + "|" + destination))
	name := identity.Name(groupName, identity.KindExport, fp)

	arn, err := o.client.CreateForecastExportJob(ctx, forecast.ExportJobInput{
		Name:         name,
		ForecastName: exec.ForecastName,
		Destination:  destination,
		Tags:         cfg.TagsFor(nil),
	})
	if err != nil {
		return err
	}

	if _, err := o.waiter.AwaitFinalized(ctx, name, func(ctx context.Context) (*forecast.Description, error) {
		return o.client.DescribeForecastExportJob(ctx, exec.ForecastName, name)
	}); err != nil {
		return err
	}

	exec.ExportLocation = destination
	o.recordResource(ctx, exec, string(identity.KindExport), name, arn, false)
	return nil
}

// applyTags reconciles a desired tag set with a resource.
func (o *Orchestrator) applyTags(ctx context.Context, arn string, tags []config.Tag, extraRemove []string) error {
	present := make(map[string]string)
	remove := append([]string(nil), extraRemove...)
	for _, t := range tags {
		if t.Absent() {
			remove = append(remove, t.Key)
			continue
		}
		present[t.Key] = t.Value
	}
	present[config.TagKeySolution] = "forecastkit"
	return o.client.ApplyTags(ctx, arn, present, remove)
}

// complete finishes the execution successfully and notifies.
func (o *Orchestrator) complete(ctx context.Context, exec *Execution) {
	if exec.State == StateDone {
		return
	}
	now := time.Now()
	exec.State = StateDone
	exec.UpdatedAt = now
	exec.CompletedAt = &now
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		o.log.WithExecutionID(exec.ID).WithError(err).Error("failed to persist completed execution")
	}

	if o.metrics != nil {
		o.metrics.RecordExecutionCompleted(string(StateDone), exec.Duration())
	}
	if o.events != nil {
		_ = o.events.PublishExecutionCompleted(exec.ID, exec.DatasetGroup, exec.Duration())
	}
	o.log.WithExecutionID(exec.ID).WithDatasetGroup(exec.DatasetGroup).Info("execution completed")
	o.audit(ctx, exec.ID, "execution.completed", "", "info", "")

	o.notify(ctx, exec)
}

// fail moves the execution to FAILED, persists it, and notifies.
func (o *Orchestrator) fail(ctx context.Context, exec *Execution, cause error) {
	now := time.Now()
	exec.State = StateFailed
	exec.Error = cause.Error()
	exec.UpdatedAt = now
	exec.CompletedAt = &now
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		o.log.WithExecutionID(exec.ID).WithError(err).Error("failed to persist failed execution")
	}

	if o.metrics != nil {
		o.metrics.RecordExecutionCompleted(string(StateFailed), exec.Duration())
		o.metrics.RecordError(errorClass(cause), errorCode(cause))
	}
	if o.events != nil {
		_ = o.events.PublishExecutionFailed(exec.ID, exec.DatasetGroup, cause.Error())
	}
	o.log.WithExecutionID(exec.ID).WithDatasetGroup(exec.DatasetGroup).
		WithError(cause).Error("execution failed")
	o.audit(ctx, exec.ID, "execution.failed", "", "error", cause.Error())

	o.notify(ctx, exec)
}

func (o *Orchestrator) notify(ctx context.Context, exec *Execution) {
	if o.notifier == nil {
		return
	}
	outcome := Outcome{
		ExecutionID:     exec.ID,
		DatasetGroup:    exec.DatasetGroup,
		State:           exec.State,
		ForecastARN:     exec.ForecastARN,
		ExportLocation:  exec.ExportLocation,
		PredictorReused: exec.PredictorReused,
		Error:           exec.Error,
		Duration:        exec.Duration(),
	}
	if err := o.notifier.NotifyOutcome(ctx, outcome); err != nil {
		// Notification failures never fail the execution.
		o.log.WithExecutionID(exec.ID).WithError(err).Warn("failed to deliver outcome notification")
	}
}

// recordResource persists a resource record, logging on failure.
func (o *Orchestrator) recordResource(ctx context.Context, exec *Execution, kind, name, arn string, reused bool) {
	now := time.Now()
	rec := &ResourceRecord{
		ExecutionID: exec.ID,
		Kind:        kind,
		Name:        name,
		ARN:         arn,
		Status:      string(forecast.StatusActive),
		Reused:      reused,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.SaveResource(ctx, rec); err != nil {
		o.log.WithExecutionID(exec.ID).WithError(err).
			WithResource(kind, name).Warn("failed to persist resource record")
	}
	if o.events != nil {
		_ = o.events.PublishResourceCreated(exec.ID, kind, name, arn)
	}
	eventType := "resource.created"
	if reused {
		eventType = "resource.reused"
	}
	o.audit(ctx, exec.ID, eventType, kind+"/"+name, "info", arn)
}

func (o *Orchestrator) recordReusedResource(ctx context.Context, exec *Execution, kind, name, arn string) {
	o.recordResource(ctx, exec, kind, name, arn, true)
}

// canonicalFingerprints renders a fingerprint map deterministically.
func canonicalFingerprints(fps map[string]string) string {
	keys := make([]string, 0, len(fps))
	for k := range fps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fps[k])
	}
	return strings.Join(parts, "|")
}

func errorClass(err error) string {
	switch {
	case forecast.IsTransient(err):
		return string(forecast.ClassTransient)
	case forecast.IsThrottled(err):
		return string(forecast.ClassThrottled)
	case forecast.IsConflict(err):
		return string(forecast.ClassConflict)
	default:
		return string(forecast.ClassPermanent)
	}
}

func errorCode(err error) string {
	var ce *forecast.ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
