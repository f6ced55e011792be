// Package notify delivers terminal execution outcomes to external
// consumers. It provides an SNS-backed gateway for production and a
// log-only gateway for development. Delivery is best-effort: a failed
// notification never fails the execution it reports on.
package notify
