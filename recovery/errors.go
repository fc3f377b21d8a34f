package recovery

import "fmt"

// Error is a stable recovery error carrying a negative code from the
// recovery subsystem's range. Callers match with errors.Is against the
// sentinels below.
type Error struct {
	Code int
	Name string
	Text string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Text)
}

var (
	// ErrNoCheckpoint means a checkpoint start was requested but no valid
	// checkpoint exists.
	ErrNoCheckpoint = &Error{Code: -1001, Name: "ENOCKPT", Text: "no checkpoint available"}

	// ErrMapFailed means the journal region could not be memory-mapped.
	ErrMapFailed = &Error{Code: -1002, Name: "EMAPFAIL", Text: "journal mapping failed"}

	// ErrWorkerFailed means a replay worker failed; the run was cancelled.
	ErrWorkerFailed = &Error{Code: -1003, Name: "EWORKER", Text: "replay worker failed"}

	// ErrPartialUnresolved means one or more partial transactions could not
	// be unwound.
	ErrPartialUnresolved = &Error{Code: -1004, Name: "EPARTIAL", Text: "partial transaction unresolved"}

	// ErrDependencyCycle means the replay dependency graph contains a cycle.
	ErrDependencyCycle = &Error{Code: -1005, Name: "EDEPCYCLE", Text: "dependency cycle in replay order"}

	// ErrProgressTimeout means the run made no progress within the
	// configured window and was cancelled.
	ErrProgressTimeout = &Error{Code: -1006, Name: "EPROGRESS", Text: "recovery progress stalled"}

	// ErrInvalidState rejects a start while another run is active.
	ErrInvalidState = &Error{Code: -1007, Name: "EBADSTATE", Text: "recovery already running"}

	// ErrResourceLimit means a run exceeded a configured resource cap.
	ErrResourceLimit = &Error{Code: -1008, Name: "ERESLIMIT", Text: "recovery resource limit exceeded"}
)
