package stores

import "time"

// EventLevel represents the severity level of a stored event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event is a persisted lifecycle event. Events form the local audit
// trail of an execution, independent of the async notification path.
type Event struct {
	ID          int64      `json:"id"`
	ExecutionID string     `json:"execution_id,omitempty"`
	Type        string     `json:"type"`
	Resource    string     `json:"resource,omitempty"`
	Level       EventLevel `json:"level"`
	Message     string     `json:"message"`
	Timestamp   time.Time  `json:"timestamp"`
}
