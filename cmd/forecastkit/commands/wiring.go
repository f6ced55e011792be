package commands

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/forecast"
	"github.com/forecastkit/forecastkit/pkg/notify"
	"github.com/forecastkit/forecastkit/pkg/objectstore"
	"github.com/forecastkit/forecastkit/pkg/providers/awsforecast"
	"github.com/forecastkit/forecastkit/pkg/stores"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// awsOptions are the service coordinates shared by run and watch.
type awsOptions struct {
	region       string
	account      string
	roleARN      string
	topicARN     string
	bucket       string
	uploadDir    string
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// setupTelemetry builds the process-wide telemetry stack.
func setupTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if verbose {
		cfg = telemetry.DevelopmentConfig()
	}
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return tel, nil
}

// openStore opens and migrates the execution archive.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// buildRuntime assembles the orchestrator and its collaborators from the
// shared flags.
func buildRuntime(ctx context.Context, tel *telemetry.Telemetry, store *stores.SQLiteStore, opts awsOptions) (*engine.Orchestrator, engine.ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.region))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	provider := awsforecast.NewFromAWSConfig(awsCfg, awsforecast.Config{
		Region:    opts.region,
		AccountID: opts.account,
		RoleARN:   opts.roleARN,
	}, tel.Logger)
	client := forecast.NewClient(provider, forecast.DefaultRetryConfig(), tel.Logger, tel.Metrics)

	var objects engine.ObjectStore
	if opts.bucket != "" {
		objects = objectstore.NewS3StoreFromConfig(awsCfg, opts.bucket)
	} else {
		local, err := objectstore.NewLocalStore(opts.uploadDir)
		if err != nil {
			return nil, nil, err
		}
		objects = local
	}

	var notifier engine.Notifier
	if opts.topicARN != "" {
		notifier = notify.NewSNSNotifierFromConfig(awsCfg, opts.topicARN, tel.Logger, notify.WithSNSMetrics(tel.Metrics))
	} else {
		notifier = notify.NewLogNotifier(tel.Logger)
	}

	orch := engine.NewOrchestrator(client, store, objects, notifier, engine.Options{
		PollInterval: opts.pollInterval,
		WaitTimeout:  opts.waitTimeout,
		Logger:       tel.Logger,
		Metrics:      tel.Metrics,
		Events:       tel.Events,
	})
	return orch, objects, nil
}
