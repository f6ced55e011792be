package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// RetryConfig bounds the client's retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per call, including the
	// first. Exhausting it escalates the last retryable error to
	// permanent.
	MaxAttempts int

	// TransientBase is the initial backoff delay for transient errors.
	TransientBase time.Duration

	// ThrottleBase is the initial backoff delay for throttle errors. The
	// service sheds load for whole training slots, so this starts higher.
	ThrottleBase time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the retry bounds used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   10,
		TransientBase: 1 * time.Second,
		ThrottleBase:  5 * time.Second,
		MaxDelay:      1 * time.Minute,
	}
}

// Client wraps an API with retry and backoff for throttle and transient
// errors, and with idempotent re-attach for duplicate-creation conflicts.
// All retryable errors are absorbed here; only permanent errors cross into
// the orchestrator. The client is stateless per call and safe for
// concurrent use.
type Client struct {
	api     API
	retry   RetryConfig
	log     *telemetry.Logger
	metrics *telemetry.Metrics

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a rate-limited client over the given API.
func NewClient(api API, retry RetryConfig, log *telemetry.Logger, metrics *telemetry.Metrics) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if retry.TransientBase <= 0 {
		retry.TransientBase = DefaultRetryConfig().TransientBase
	}
	if retry.ThrottleBase <= 0 {
		retry.ThrottleBase = DefaultRetryConfig().ThrottleBase
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &Client{
		api:     api,
		retry:   retry,
		log:     log,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn with classified retry. Throttle and transient errors back off
// and retry up to the attempt ceiling; everything else propagates
// immediately.
func (c *Client) do(ctx context.Context, op, resource string, fn func(context.Context) error) error {
	timer := telemetry.NewTimer()
	var err error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			c.recordCall(op, "success", timer.Duration())
			return nil
		}
		if !IsRetryable(err) {
			c.recordCall(op, "error", timer.Duration())
			return err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := c.backoff(attempt, err)
		c.recordRetry(op, err)
		if c.log != nil {
			c.log.WithField("operation", op).WithField("resource", resource).
				WithError(err).
				Warnf("retrying after %s (attempt %d/%d)", delay, attempt+1, c.retry.MaxAttempts)
		}
		if serr := c.sleep(ctx, delay); serr != nil {
			return NewTransientError("call aborted while backing off", serr).
				WithOperation(op).WithResource(resource)
		}
	}

	c.recordCall(op, "exhausted", timer.Duration())
	return (&ClientError{
		Class:     ClassPermanent,
		Code:      ErrCodeRetriesExhausted,
		Message:   "retry attempts exhausted",
		Operation: op,
		Resource:  resource,
		Err:       err,
	})
}

// backoff computes exponential backoff with jitter, starting higher for
// throttles than for transient failures.
func (c *Client) backoff(attempt int, err error) time.Duration {
	base := c.retry.TransientBase
	if IsThrottled(err) {
		base = c.retry.ThrottleBase
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}

	// Jitter of up to 25% spreads out retries from concurrent executions.
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func (c *Client) recordCall(op, outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordAPICall(op, outcome, d)
	}
}

func (c *Client) recordRetry(op string, err error) {
	if c.metrics != nil {
		var e *ClientError
		class := string(ClassTransient)
		if errors.As(err, &e) {
			class = string(e.Class)
		}
		c.metrics.RecordAPIRetry(op, class)
	}
}

// createWithReattach issues a create call and absorbs a duplicate-creation
// conflict: when the service reports the resource already exists, the
// existing resource is re-resolved by name and, if found, the call is
// treated as success. This absorbs duplicate-creation races on retried
// executions. Whether the existing resource actually matches intent is the
// orchestrator's check; identity matching happens here.
func (c *Client) createWithReattach(
	ctx context.Context,
	op, name string,
	create func(context.Context) (string, error),
	describe func(context.Context) (*Description, error),
) (string, error) {
	var arn string
	err := c.do(ctx, op, name, func(ctx context.Context) error {
		created, cerr := create(ctx)
		if cerr == nil {
			arn = created
			return nil
		}
		if !IsAlreadyExists(cerr) {
			return cerr
		}

		desc, derr := describe(ctx)
		if derr != nil {
			if IsNotFound(derr) {
				// Existence was reported but the resource cannot be
				// resolved; surface the original conflict.
				return NewPermanentError("resource reported existing but cannot be described", cerr).
					WithOperation(op).WithResource(name)
			}
			return derr
		}
		if desc.Name != name {
			return NewPermanentError("existing resource does not match the intended identity", cerr).
				WithOperation(op).WithResource(name)
		}
		arn = desc.ARN
		return nil
	})
	return arn, err
}

// CreateDatasetGroup creates the dataset group, re-attaching to an existing
// one with the same identity.
func (c *Client) CreateDatasetGroup(ctx context.Context, in DatasetGroupInput) (string, error) {
	return c.createWithReattach(ctx, "CreateDatasetGroup", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreateDatasetGroup(ctx, in) },
		func(ctx context.Context) (*Description, error) { return c.api.DescribeDatasetGroup(ctx, in.Name) },
	)
}

// DescribeDatasetGroup describes the dataset group with retry.
func (c *Client) DescribeDatasetGroup(ctx context.Context, name string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribeDatasetGroup", name, func(ctx context.Context) error {
		d, derr := c.api.DescribeDatasetGroup(ctx, name)
		desc = d
		return derr
	})
	return desc, err
}

// UpdateDatasetGroup replaces the dataset association of the group.
func (c *Client) UpdateDatasetGroup(ctx context.Context, name string, datasetNames []string) error {
	return c.do(ctx, "UpdateDatasetGroup", name, func(ctx context.Context) error {
		return c.api.UpdateDatasetGroup(ctx, name, datasetNames)
	})
}

// CreateDataset creates a dataset, re-attaching to an existing one with the
// same identity.
func (c *Client) CreateDataset(ctx context.Context, in DatasetInput) (string, error) {
	return c.createWithReattach(ctx, "CreateDataset", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreateDataset(ctx, in) },
		func(ctx context.Context) (*Description, error) { return c.api.DescribeDataset(ctx, in.Name) },
	)
}

// DescribeDataset describes a dataset with retry.
func (c *Client) DescribeDataset(ctx context.Context, name string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribeDataset", name, func(ctx context.Context) error {
		d, derr := c.api.DescribeDataset(ctx, name)
		desc = d
		return derr
	})
	return desc, err
}

// CreateDatasetImportJob starts an import job, re-attaching to an existing
// job with the same identity.
func (c *Client) CreateDatasetImportJob(ctx context.Context, in ImportJobInput) (string, error) {
	return c.createWithReattach(ctx, "CreateDatasetImportJob", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreateDatasetImportJob(ctx, in) },
		func(ctx context.Context) (*Description, error) {
			return c.api.DescribeDatasetImportJob(ctx, in.DatasetName, in.Name)
		},
	)
}

// DescribeDatasetImportJob describes an import job with retry.
func (c *Client) DescribeDatasetImportJob(ctx context.Context, datasetName, jobName string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribeDatasetImportJob", jobName, func(ctx context.Context) error {
		d, derr := c.api.DescribeDatasetImportJob(ctx, datasetName, jobName)
		desc = d
		return derr
	})
	return desc, err
}

// CreatePredictor creates a predictor, re-attaching to an existing one with
// the same identity.
func (c *Client) CreatePredictor(ctx context.Context, in PredictorInput) (string, error) {
	return c.createWithReattach(ctx, "CreatePredictor", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreatePredictor(ctx, in) },
		func(ctx context.Context) (*Description, error) { return c.api.DescribePredictor(ctx, in.Name) },
	)
}

// DescribePredictor describes a predictor with retry.
func (c *Client) DescribePredictor(ctx context.Context, name string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribePredictor", name, func(ctx context.Context) error {
		d, derr := c.api.DescribePredictor(ctx, name)
		desc = d
		return derr
	})
	return desc, err
}

// ListPredictors lists the dataset group's predictors, newest first.
func (c *Client) ListPredictors(ctx context.Context, datasetGroupName string) ([]PredictorSummary, error) {
	var out []PredictorSummary
	err := c.do(ctx, "ListPredictors", datasetGroupName, func(ctx context.Context) error {
		list, lerr := c.api.ListPredictors(ctx, datasetGroupName)
		out = list
		return lerr
	})
	return out, err
}

// CreateForecast creates a forecast, re-attaching to an existing one with
// the same identity.
func (c *Client) CreateForecast(ctx context.Context, in ForecastInput) (string, error) {
	return c.createWithReattach(ctx, "CreateForecast", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreateForecast(ctx, in) },
		func(ctx context.Context) (*Description, error) { return c.api.DescribeForecast(ctx, in.Name) },
	)
}

// DescribeForecast describes a forecast with retry.
func (c *Client) DescribeForecast(ctx context.Context, name string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribeForecast", name, func(ctx context.Context) error {
		d, derr := c.api.DescribeForecast(ctx, name)
		desc = d
		return derr
	})
	return desc, err
}

// CreateForecastExportJob starts an export job, re-attaching to an existing
// job with the same identity.
func (c *Client) CreateForecastExportJob(ctx context.Context, in ExportJobInput) (string, error) {
	return c.createWithReattach(ctx, "CreateForecastExportJob", in.Name,
		func(ctx context.Context) (string, error) { return c.api.CreateForecastExportJob(ctx, in) },
		func(ctx context.Context) (*Description, error) {
			return c.api.DescribeForecastExportJob(ctx, in.ForecastName, in.Name)
		},
	)
}

// DescribeForecastExportJob describes an export job with retry.
func (c *Client) DescribeForecastExportJob(ctx context.Context, forecastName, jobName string) (*Description, error) {
	var desc *Description
	err := c.do(ctx, "DescribeForecastExportJob", jobName, func(ctx context.Context) error {
		d, derr := c.api.DescribeForecastExportJob(ctx, forecastName, jobName)
		desc = d
		return derr
	})
	return desc, err
}

// ApplyTags reconciles the desired tag set with the resource: tags marked
// Absent are removed, everything else is applied.
func (c *Client) ApplyTags(ctx context.Context, arn string, tags map[string]string, remove []string) error {
	if len(tags) > 0 {
		if err := c.do(ctx, "TagResource", arn, func(ctx context.Context) error {
			return c.api.TagResource(ctx, arn, tags)
		}); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		return c.do(ctx, "UntagResource", arn, func(ctx context.Context) error {
			return c.api.UntagResource(ctx, arn, remove)
		})
	}
	return nil
}
