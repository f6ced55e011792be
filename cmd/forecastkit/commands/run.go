package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forecastkit/forecastkit/pkg/config"
	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/objectstore"
)

func newRunCommand() *cobra.Command {
	var opts awsOptions
	var group string

	cmd := &cobra.Command{
		Use:   "run [upload-key...]",
		Short: "Drive one set of uploads through the forecast pipeline",
		Long: `Run starts (or resumes) a pipeline execution for the dataset group the
given uploads belong to: dataset group creation, data import, predictor
training or reuse, forecast generation, and export.

Upload keys are paths relative to the upload bucket or directory. The
filename suffix selects the dataset type: .related.csv for related time
series, .metadata.csv for item metadata, any other .csv for the target
time series.`,
		Example: `  # Run against an S3 bucket
  forecastkit run --bucket uploads --region us-east-1 --account 123456789012 \
    --role-arn arn:aws:iam::123456789012:role/forecastkit taxi/data.csv

  # Target and related data in one execution
  forecastkit run --bucket uploads taxi/data.csv taxi/weather.related.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()
			ctx = tel.WithContext(ctx)

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

			uploads, resolvedGroup, err := buildUploads(ctx, objects, args, group)
			if err != nil {
				return err
			}

			eff, err := config.Resolve(doc, resolvedGroup, nil)
			if err != nil {
				return err
			}

			exec, runErr := orch.Run(ctx, eff, uploads)
			if exec != nil {
				printExecution(exec)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "dataset group (defaults to the group derived from the upload keys)")
	cmd.Flags().StringVar(&opts.region, "region", "us-east-1", "AWS region")
	cmd.Flags().StringVar(&opts.account, "account", "", "AWS account ID")
	cmd.Flags().StringVar(&opts.roleARN, "role-arn", "", "IAM role the forecasting service assumes for data access")
	cmd.Flags().StringVar(&opts.topicARN, "topic", "", "SNS topic for outcome notifications (log-only when empty)")
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "S3 bucket holding uploads and exports")
	cmd.Flags().StringVar(&opts.uploadDir, "upload-dir", ".", "local upload directory (used when no bucket is set)")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 30*time.Second, "how often pending resources are re-described")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 4*time.Hour, "how long a single stage may stay pending")

	return cmd
}

// buildUploads fingerprints the given keys and checks they all belong to
// one dataset group.
func buildUploads(ctx context.Context, objects engine.ObjectStore, keys []string, group string) ([]engine.UploadEvent, string, error) {
	var uploads []engine.UploadEvent
	for _, key := range keys {
		derivedGroup, datasetType, ok := objectstore.ClassifyUpload(key)
		if !ok {
			return nil, "", fmt.Errorf("%s is not a dataset upload (expected a .csv file)", key)
		}
		if group == "" {
			group = derivedGroup
		} else if derivedGroup != group && len(keys) > 1 {
			return nil, "", fmt.Errorf("upload %s belongs to group %s, not %s", key, derivedGroup, group)
		}

		fp, err := objects.Fingerprint(ctx, key)
		if err != nil {
			return nil, "", err
		}
		uploads = append(uploads, engine.UploadEvent{
			DatasetGroup: group,
			DatasetType:  datasetType,
			Location:     objects.URI(key),
			Fingerprint:  fp,
			DetectedAt:   time.Now().UTC(),
		})
	}
	return uploads, group, nil
}

// printExecution renders a finished execution.
func printExecution(exec *engine.Execution) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(exec)
		return
	}

	fmt.Printf("Execution:     %s\n", exec.ID)
	fmt.Printf("Dataset group: %s\n", exec.DatasetGroup)
	fmt.Printf("State:         %s\n", exec.State)
	if exec.PredictorName != "" {
		reused := ""
		if exec.PredictorReused {
			reused = " (reused)"
		}
		fmt.Printf("Predictor:     %s%s\n", exec.PredictorName, reused)
	}
	if exec.ForecastARN != "" {
		fmt.Printf("Forecast:      %s\n", exec.ForecastARN)
	}
	if exec.ExportLocation != "" {
		fmt.Printf("Export:        %s\n", exec.ExportLocation)
	}
	if exec.Error != "" {
		fmt.Printf("Error:         %s\n", exec.Error)
	}
	fmt.Printf("Duration:      %s\n", exec.Duration().Round(time.Second))
}
