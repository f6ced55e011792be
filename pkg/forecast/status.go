package forecast

import "strings"

// Status represents the lifecycle status of a managed forecast resource as
// reported by describe calls.
type Status string

// Statuses reported by the service, plus the local DOES_NOT_EXIST marker
// used when a describe finds nothing.
const (
	StatusActive           Status = "ACTIVE"
	StatusCreatePending    Status = "CREATE_PENDING"
	StatusCreateInProgress Status = "CREATE_IN_PROGRESS"
	StatusCreateFailed     Status = "CREATE_FAILED"
	StatusCreateStopped    Status = "CREATE_STOPPED"
	StatusDeletePending    Status = "DELETE_PENDING"
	StatusDeleteInProgress Status = "DELETE_IN_PROGRESS"
	StatusDeleteFailed     Status = "DELETE_FAILED"
	StatusUpdatePending    Status = "UPDATE_PENDING"
	StatusUpdateInProgress Status = "UPDATE_IN_PROGRESS"
	StatusUpdateFailed     Status = "UPDATE_FAILED"
	StatusDoesNotExist     Status = "DOES_NOT_EXIST"
)

// Finalized reports whether the resource reached its terminal success
// status.
func (s Status) Finalized() bool {
	return s == StatusActive
}

// Updating reports whether the resource is still pending or in progress.
func (s Status) Updating() bool {
	return strings.Contains(string(s), "PENDING") || strings.Contains(string(s), "IN_PROGRESS")
}

// Failed reports whether creation, update, or deletion failed or was
// stopped.
func (s Status) Failed() bool {
	return strings.Contains(string(s), "FAILED") || strings.Contains(string(s), "STOPPED")
}

func (s Status) String() string {
	return string(s)
}
