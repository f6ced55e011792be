// Package forecast defines the client surface for the managed forecasting
// service.
//
// The package has three layers:
//
//   - API is the raw service interface. Implementations (see
//     pkg/providers/awsforecast) translate service responses and classify
//     every failure as a ClientError.
//   - ClientError carries an ErrorClass (transient, throttled, conflict,
//     permanent) that drives all retry decisions. Helpers such as
//     IsRetryable and IsAlreadyExists are the only way callers inspect
//     failures.
//   - Client wraps an API with bounded exponential backoff for transient
//     and throttle errors, and resolves duplicate-creation conflicts by
//     re-attaching to the existing resource. Retryable errors never escape
//     the client; exhausting the attempt budget escalates to a permanent
//     error.
package forecast
