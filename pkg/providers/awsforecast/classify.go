package awsforecast

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/forecast/types"
	"github.com/aws/smithy-go"

	fc "github.com/forecastkit/forecastkit/pkg/forecast"
)

// throttledLimitMarkers identify LimitExceededException messages that
// describe a transient concurrency ceiling rather than a hard account
// limit. Concurrency limits clear as running jobs finish, so they are
// retried like throttles.
var throttledLimitMarkers = []string{
	"concurrently",
	"dataset import jobs",
}

// classify maps an SDK error onto a ClientError. The operation and
// resource are attached for logging and metrics.
func classify(op, resource string, err error) error {
	if err == nil {
		return nil
	}

	ce := classifyError(err)
	return ce.WithOperation(op).WithResource(resource)
}

func classifyError(err error) *fc.ClientError {
	var alreadyExists *types.ResourceAlreadyExistsException
	if errors.As(err, &alreadyExists) {
		ce := fc.NewConflictError("resource already exists", err)
		ce.Code = fc.ErrCodeAlreadyExists
		return ce
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		ce := fc.NewPermanentError("resource not found", err)
		ce.Code = fc.ErrCodeNotFound
		return ce
	}

	// A resource in CREATE_PENDING or UPDATE_PENDING rejects operations
	// with ResourceInUse. That clears once the resource settles, so it is
	// retried like a throttle.
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		ce := fc.NewThrottledError("resource is busy", err)
		ce.Code = fc.ErrCodeResourceInUse
		return ce
	}

	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		msg := strings.ToLower(limit.ErrorMessage())
		for _, marker := range throttledLimitMarkers {
			if strings.Contains(msg, marker) {
				ce := fc.NewThrottledError("concurrency limit reached", err)
				ce.Code = fc.ErrCodeLimitExceeded
				return ce
			}
		}
		ce := fc.NewPermanentError("account limit exceeded", err)
		ce.Code = fc.ErrCodeLimitExceeded
		return ce
	}

	var invalid *types.InvalidInputException
	if errors.As(err, &invalid) {
		ce := fc.NewPermanentError("invalid input", err)
		ce.Code = fc.ErrCodeValidation
		return ce
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
			return fc.NewThrottledError("request throttled", err)
		case "AccessDeniedException", "UnauthorizedOperation":
			ce := fc.NewPermanentError("access denied", err)
			ce.Code = fc.ErrCodePermissionDenied
			return ce
		case "ValidationException":
			ce := fc.NewPermanentError("validation failed", err)
			ce.Code = fc.ErrCodeValidation
			return ce
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fc.NewTransientError("service error", err)
		}
		ce := fc.NewPermanentError(apiErr.ErrorCode(), err)
		ce.Code = fc.ErrCodeInternal
		return ce
	}

	// No service response at all: connection reset, DNS failure, timeout.
	return fc.NewTransientError("request failed", err)
}
