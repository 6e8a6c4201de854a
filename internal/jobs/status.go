// Package jobs holds the job state model: validation of raw job state and job info
// payloads, status classification, human-readable status lines and batch summaries.
package jobs

// Status is a job status as reported by the execution engine.
type Status string

const (
	StatusCreated      Status = "created"
	StatusEstimating   Status = "estimating"
	StatusQueued       Status = "queued"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
	StatusTerminated   Status = "terminated"
	StatusDoesNotExist Status = "does_not_exist"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusEstimating,
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusError,
	StatusTerminated,
	StatusDoesNotExist,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusEstimating, StatusQueued, StatusRunning,
		StatusCompleted, StatusError, StatusTerminated, StatusDoesNotExist:
		return true
	}
	return false
}

// IsTerminal reports whether no further progress is expected for a job in this status.
// Unknown statuses are not terminal so that callers keep polling.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusError, StatusDoesNotExist:
		return true
	}
	return false
}

// IsQueued reports whether the job has not started running yet.
func IsQueued(s Status) bool {
	return s == StatusCreated || s == StatusEstimating || s == StatusQueued
}

// Bucket is the canonical display category a status collapses into.
type Bucket string

const (
	BucketQueued    Bucket = "queued"
	BucketRunning   Bucket = "running"
	BucketSuccess   Bucket = "success"
	BucketFailed    Bucket = "failed"
	BucketCancelled Bucket = "cancelled"
	BucketNotFound  Bucket = "not found"
)

// Buckets is the fixed display order of buckets.
var Buckets = []Bucket{
	BucketQueued,
	BucketRunning,
	BucketSuccess,
	BucketFailed,
	BucketCancelled,
	BucketNotFound,
}

// BucketOf maps a status to its bucket. Missing or unknown statuses are "not found".
func BucketOf(s Status) Bucket {
	switch s {
	case StatusCreated, StatusEstimating, StatusQueued:
		return BucketQueued
	case StatusRunning:
		return BucketRunning
	case StatusCompleted:
		return BucketSuccess
	case StatusError:
		return BucketFailed
	case StatusTerminated:
		return BucketCancelled
	default:
		return BucketNotFound
	}
}
