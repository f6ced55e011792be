package awsforecast

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/forecast/types"
	"github.com/aws/smithy-go"

	fc "github.com/forecastkit/forecastkit/pkg/forecast"
)

func TestClassifyTypedExceptions(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass fc.ErrorClass
		wantCode  string
	}{
		{
			name:      "already exists is a conflict",
			err:       &types.ResourceAlreadyExistsException{Message: aws.String("resource already exists")},
			wantClass: fc.ClassConflict,
			wantCode:  fc.ErrCodeAlreadyExists,
		},
		{
			name:      "not found is permanent",
			err:       &types.ResourceNotFoundException{Message: aws.String("no such resource")},
			wantClass: fc.ClassPermanent,
			wantCode:  fc.ErrCodeNotFound,
		},
		{
			name:      "resource in use is retried like a throttle",
			err:       &types.ResourceInUseException{Message: aws.String("resource is in state CREATE_PENDING")},
			wantClass: fc.ClassThrottled,
			wantCode:  fc.ErrCodeResourceInUse,
		},
		{
			name:      "concurrency limit is throttled",
			err:       &types.LimitExceededException{Message: aws.String("cannot run more than 3 predictors concurrently")},
			wantClass: fc.ClassThrottled,
			wantCode:  fc.ErrCodeLimitExceeded,
		},
		{
			name:      "import job concurrency limit is throttled",
			err:       &types.LimitExceededException{Message: aws.String("too many dataset import jobs in progress")},
			wantClass: fc.ClassThrottled,
			wantCode:  fc.ErrCodeLimitExceeded,
		},
		{
			name:      "hard account limit is permanent",
			err:       &types.LimitExceededException{Message: aws.String("maximum number of predictors reached")},
			wantClass: fc.ClassPermanent,
			wantCode:  fc.ErrCodeLimitExceeded,
		},
		{
			name:      "invalid input is permanent",
			err:       &types.InvalidInputException{Message: aws.String("schema attribute mismatch")},
			wantClass: fc.ClassPermanent,
			wantCode:  fc.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("CreatePredictor", "taxi_predictor", tt.err)

			var ce *fc.ClientError
			if !errors.As(err, &ce) {
				t.Fatalf("expected a ClientError, got %T", err)
			}
			if ce.Class != tt.wantClass {
				t.Errorf("expected class %s, got %s", tt.wantClass, ce.Class)
			}
			if ce.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, ce.Code)
			}
			if ce.Operation != "CreatePredictor" || ce.Resource != "taxi_predictor" {
				t.Errorf("missing context: op=%s resource=%s", ce.Operation, ce.Resource)
			}
			if !errors.As(err, &ce) || ce.Unwrap() == nil {
				t.Error("expected the SDK error to be wrapped")
			}
		})
	}
}

func TestClassifyGenericAPIErrors(t *testing.T) {
	throttled := classify("CreateForecast", "f", &smithy.GenericAPIError{
		Code: "ThrottlingException", Message: "slow down", Fault: smithy.FaultClient,
	})
	if !fc.IsThrottled(throttled) {
		t.Errorf("expected throttled, got %v", throttled)
	}

	serverFault := classify("CreateForecast", "f", &smithy.GenericAPIError{
		Code: "InternalFailure", Message: "oops", Fault: smithy.FaultServer,
	})
	if !fc.IsTransient(serverFault) {
		t.Errorf("expected transient, got %v", serverFault)
	}

	denied := classify("CreateForecast", "f", &smithy.GenericAPIError{
		Code: "AccessDeniedException", Message: "not allowed", Fault: smithy.FaultClient,
	})
	var ce *fc.ClientError
	if !errors.As(denied, &ce) || ce.Code != fc.ErrCodePermissionDenied || !fc.IsPermanent(denied) {
		t.Errorf("expected permanent permission error, got %v", denied)
	}
}

func TestClassifyNetworkErrorIsTransient(t *testing.T) {
	err := classify("DescribePredictor", "p", errors.New("dial tcp: connection refused"))
	if !fc.IsTransient(err) {
		t.Errorf("expected transient, got %v", err)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if err := classify("DescribePredictor", "p", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
