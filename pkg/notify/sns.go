package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// SNSAPI is the subset of the SNS client the gateway consumes.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// payload is the message body published for a finished execution.
type payload struct {
	ExecutionID     string `json:"execution_id"`
	DatasetGroup    string `json:"dataset_group"`
	FinalState      string `json:"final_state"`
	ForecastARN     string `json:"forecast_arn,omitempty"`
	ExportLocation  string `json:"export_location,omitempty"`
	PredictorReused bool   `json:"predictor_reused"`
	Error           string `json:"error,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	NotifiedAt      string `json:"notified_at"`
}

// SNSNotifier publishes execution outcomes to an SNS topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
}

// SNSOption customizes an SNSNotifier.
type SNSOption func(*SNSNotifier)

// WithSNSMetrics attaches delivery metrics.
func WithSNSMetrics(m *telemetry.Metrics) SNSOption {
	return func(n *SNSNotifier) { n.metrics = m }
}

// NewSNSNotifier creates a gateway publishing to topicARN.
func NewSNSNotifier(client SNSAPI, topicARN string, logger *telemetry.Logger, opts ...SNSOption) *SNSNotifier {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	n := &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		log:      logger.NewComponentLogger("notify-sns"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewSNSNotifierFromConfig creates a gateway from a resolved AWS
// configuration.
func NewSNSNotifierFromConfig(cfg aws.Config, topicARN string, logger *telemetry.Logger, opts ...SNSOption) *SNSNotifier {
	return NewSNSNotifier(sns.NewFromConfig(cfg), topicARN, logger, opts...)
}

// NotifyOutcome publishes the outcome of a finished execution.
func (n *SNSNotifier) NotifyOutcome(ctx context.Context, outcome engine.Outcome) error {
	subject := fmt.Sprintf("forecastkit: %s %s", outcome.DatasetGroup, outcome.State)

	body, err := json.Marshal(payload{
		ExecutionID:     outcome.ExecutionID,
		DatasetGroup:    outcome.DatasetGroup,
		FinalState:      string(outcome.State),
		ForecastARN:     outcome.ForecastARN,
		ExportLocation:  outcome.ExportLocation,
		PredictorReused: outcome.PredictorReused,
		Error:           outcome.Error,
		DurationSeconds: outcome.Duration.Seconds(),
		NotifiedAt:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		if n.metrics != nil {
			n.metrics.RecordNotification("sns", "error")
		}
		return fmt.Errorf("failed to publish to %s: %w", n.topicARN, err)
	}

	if n.metrics != nil {
		n.metrics.RecordNotification("sns", "ok")
	}
	n.log.WithExecutionID(outcome.ExecutionID).
		WithDatasetGroup(outcome.DatasetGroup).
		WithField("final_state", outcome.State).
		Info("Outcome published")
	return nil
}
