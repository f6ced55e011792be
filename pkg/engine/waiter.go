package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/forecastkit/forecastkit/pkg/forecast"
)

// Waiter polls a resource until it finalizes. Forecast service resources
// move through *_PENDING and *_IN_PROGRESS for minutes (imports) to hours
// (predictor training), so the waiter suspends between describes instead
// of holding the service busy.
type Waiter struct {
	// Poll is the interval between describe calls.
	Poll time.Duration

	// Timeout bounds the total wait. Zero means no timeout.
	Timeout time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a waiter with the given poll interval and timeout.
func NewWaiter(poll, timeout time.Duration) *Waiter {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Waiter{
		Poll:    poll,
		Timeout: timeout,
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

// AwaitFinalized polls describe until the resource reaches ACTIVE. A
// failed or stopped status is a permanent error carrying the service's
// failure message. Exceeding the timeout is a permanent TIMEOUT error; the
// resource keeps progressing on the service side and a later execution can
// re-attach to it.
func (w *Waiter) AwaitFinalized(
	ctx context.Context,
	resource string,
	describe func(context.Context) (*forecast.Description, error),
) (*forecast.Description, error) {
	deadline := time.Time{}
	if w.Timeout > 0 {
		deadline = time.Now().Add(w.Timeout)
	}

	for {
		desc, err := describe(ctx)
		if err != nil {
			return nil, err
		}

		switch {
		case desc.Status.Finalized():
			return desc, nil
		case desc.Status.Failed():
			msg := fmt.Sprintf("resource finished with status %s", desc.Status)
			if desc.Message != "" {
				msg = fmt.Sprintf("%s: %s", msg, desc.Message)
			}
			return nil, forecast.NewPermanentError(msg, nil).WithResource(resource)
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			perr := forecast.NewPermanentError(
				fmt.Sprintf("timed out after %s waiting for resource to finalize (last status %s)", w.Timeout, desc.Status),
				nil,
			).WithResource(resource)
			perr.Code = forecast.ErrCodeTimeout
			return nil, perr
		}

		if err := w.sleep(ctx, w.Poll); err != nil {
			return nil, forecast.NewTransientError("wait aborted", err).WithResource(resource)
		}
	}
}
