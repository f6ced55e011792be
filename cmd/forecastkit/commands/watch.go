package commands

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/forecastkit/forecastkit/pkg/config"
	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/objectstore"
)

func newWatchCommand() *cobra.Command {
	var opts awsOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch an upload directory and dispatch pipeline executions",
		Long: `Watch runs as a daemon: it observes the upload directory, and every
settled file drop triggers a pipeline execution for its dataset group.
Executions for the same group are serialized; drops for different groups
run concurrently.

The first path component below the upload directory names the dataset
group: <upload-dir>/<dataset-group>/<file>.csv.`,
		Example: `  forecastkit watch --upload-dir /var/forecastkit/uploads \
    --region us-east-1 --account 123456789012 \
    --role-arn arn:aws:iam::123456789012:role/forecastkit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()
			ctx = tel.WithContext(ctx)

			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			doc, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			orch, objects, err := buildRuntime(ctx, tel, store, opts)
			if err != nil {
				return err
			}
			local, ok := objects.(*objectstore.LocalStore)
			if !ok {
				// The watcher observes the local filesystem.
				local, err = objectstore.NewLocalStore(opts.uploadDir)
				if err != nil {
					return err
				}
			}

			watcher := objectstore.NewWatcher(local, tel.Logger)
			uploads, err := watcher.Watch(ctx)
			if err != nil {
				return err
			}

			log := tel.Logger.NewComponentLogger("watch")
			var wg sync.WaitGroup
			for upload := range uploads {
				eff, err := config.Resolve(doc, upload.DatasetGroup, nil)
				if err != nil {
					log.WithError(err).
						WithDatasetGroup(upload.DatasetGroup).
						Warn("Upload ignored: no usable configuration")
					continue
				}
				if tel.Metrics != nil {
					tel.Metrics.RecordUploadDetected(upload.DatasetType)
				}
				// With a bucket configured, the dropped file mirrors an
				// object under the same key; imports read from S3.
				if opts.bucket != "" {
					if key, err := filepath.Rel(local.Root(), upload.Location); err == nil {
						upload.Location = objects.URI(filepath.ToSlash(key))
					}
				}

				wg.Add(1)
				go func(eff *config.EffectiveConfig, upload engine.UploadEvent) {
					defer wg.Done()
					if _, err := orch.Run(ctx, eff, []engine.UploadEvent{upload}); err != nil {
						log.WithError(err).
							WithDatasetGroup(upload.DatasetGroup).
							Error("Execution failed")
					}
				}(eff, upload)
			}

			wg.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.region, "region", "us-east-1", "AWS region")
	cmd.Flags().StringVar(&opts.account, "account", "", "AWS account ID")
	cmd.Flags().StringVar(&opts.roleARN, "role-arn", "", "IAM role the forecasting service assumes for data access")
	cmd.Flags().StringVar(&opts.topicARN, "topic", "", "SNS topic for outcome notifications (log-only when empty)")
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "S3 bucket data locations refer to (local paths when empty)")
	cmd.Flags().StringVar(&opts.uploadDir, "upload-dir", "uploads", "directory to watch for uploads")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 30*time.Second, "how often pending resources are re-described")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 4*time.Hour, "how long a single stage may stay pending")

	return cmd
}
