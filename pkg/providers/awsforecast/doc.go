// Package awsforecast implements the forecast.API surface over the Amazon
// Forecast SDK. It derives resource ARNs from the configured partition,
// region and account, and classifies every SDK failure into the client's
// transient / throttled / conflict / permanent taxonomy. It never retries;
// retry policy lives in the forecast client.
package awsforecast
