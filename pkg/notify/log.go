package notify

import (
	"context"

	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// LogNotifier writes execution outcomes to the structured log. It is the
// default gateway when no notification topic is configured.
type LogNotifier struct {
	log *telemetry.Logger
}

// NewLogNotifier creates a log-only gateway.
func NewLogNotifier(logger *telemetry.Logger) *LogNotifier {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &LogNotifier{
		log: logger.NewComponentLogger("notify-log"),
	}
}

// NotifyOutcome logs the outcome of a finished execution.
func (n *LogNotifier) NotifyOutcome(_ context.Context, outcome engine.Outcome) error {
	entry := n.log.WithExecutionID(outcome.ExecutionID).
		WithDatasetGroup(outcome.DatasetGroup).
		WithField("final_state", outcome.State).
		WithField("predictor_reused", outcome.PredictorReused).
		WithField("duration", outcome.Duration.String())

	if outcome.Succeeded() {
		entry.WithField("forecast_arn", outcome.ForecastARN).
			WithField("export_location", outcome.ExportLocation).
			Info("Execution completed")
	} else {
		entry.WithField("error", outcome.Error).Error("Execution failed")
	}
	return nil
}
