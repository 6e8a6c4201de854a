package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobError is the structured error attached to a failed job.
type JobError struct {
	Code    int    `json:"code" mapstructure:"code"`
	Name    string `json:"name" mapstructure:"name"`
	Message string `json:"message,omitempty" mapstructure:"message"`
}

// Record is the last known state of a single job.
// Timestamps are epoch milliseconds.
type Record struct {
	JobID     string    `json:"job_id" mapstructure:"job_id"`
	Status    Status    `json:"status" mapstructure:"status"`
	Created   int64     `json:"created" mapstructure:"created"`
	Queued    *int64    `json:"queued,omitempty" mapstructure:"queued"`
	Running   *int64    `json:"running,omitempty" mapstructure:"running"`
	Finished  *int64    `json:"finished,omitempty" mapstructure:"finished"`
	Updated   *int64    `json:"updated,omitempty" mapstructure:"updated"`
	Error     *JobError `json:"error,omitempty" mapstructure:"error"`
	ChildJobs []string  `json:"child_jobs,omitempty" mapstructure:"child_jobs"`
	BatchID   string    `json:"batch_id,omitempty" mapstructure:"batch_id"`
	BatchJob  bool      `json:"batch_job,omitempty" mapstructure:"batch_job"`
	Result    any       `json:"result,omitempty" mapstructure:"result"`
}

// Valid reports whether the record satisfies the same rules as IsValidJobState.
func (r *Record) Valid() bool {
	return r != nil && r.JobID != "" && r.Status.Valid()
}

// IsBatch reports whether the record is a batch parent.
func (r *Record) IsBatch() bool {
	return r.BatchJob || len(r.ChildJobs) > 0
}

// HasResult reports whether a completed job carries a result payload.
func (r *Record) HasResult() bool {
	if r.Result == nil {
		return false
	}
	switch v := r.Result.(type) {
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case json.RawMessage:
		return len(v) > 0 && string(v) != "null"
	}
	return true
}

// Info is static descriptive metadata about a job.
type Info struct {
	JobID       string           `json:"job_id" mapstructure:"job_id"`
	JobParams   []map[string]any `json:"job_params" mapstructure:"job_params"`
	AppID       string           `json:"app_id,omitempty" mapstructure:"app_id"`
	AppName     string           `json:"app_name,omitempty" mapstructure:"app_name"`
	Description string           `json:"description,omitempty" mapstructure:"description"`
}

// Ptr returns a pointer to the epoch millisecond value of t.
func Ptr(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

// String implements fmt.Stringer for log output.
func (r Record) String() string {
	return fmt.Sprintf("%s(%s)", r.JobID, r.Status)
}
