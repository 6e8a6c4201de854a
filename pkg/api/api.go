// Package api contains the shared message and HTTP payload structs.
// This package is shared between the CLI, the watcher and the responder.
package api

import "encoding/json"

// Topics published by a job viewer.
const (
	TopicRequestJobStatus    = "request-job-status"
	TopicRequestJobUpdate    = "request-job-update"
	TopicRequestJobLog       = "request-job-log"
	TopicRequestLatestJobLog = "request-latest-job-log"
	TopicRequestJobInfo      = "request-job-info"
)

// Topics published by the backend in response, or as push updates.
const (
	TopicJobStatus       = "job-status"
	TopicJobLogs         = "job-logs"
	TopicJobLogDeleted   = "job-log-deleted"
	TopicJobDoesNotExist = "job-does-not-exist"
	TopicJobInfo         = "job-info"
)

// RequestTopics lists every request topic.
var RequestTopics = []string{
	TopicRequestJobStatus,
	TopicRequestJobUpdate,
	TopicRequestJobLog,
	TopicRequestLatestJobLog,
	TopicRequestJobInfo,
}

// UpdateTopics lists every topic a viewer listens on.
var UpdateTopics = []string{
	TopicJobStatus,
	TopicJobLogs,
	TopicJobLogDeleted,
	TopicJobDoesNotExist,
	TopicJobInfo,
}

// JobRequest is the payload of request-job-status, request-job-update and
// request-job-info.
type JobRequest struct {
	JobID string `json:"jobId"`
}

// LogOptions narrows a log request. An empty value asks for the latest lines.
type LogOptions struct {
	FirstLine *int `json:"first_line,omitempty"`
}

// LogRequest is the payload of request-job-log and request-latest-job-log.
// RequestID is echoed on the job-logs answer.
type LogRequest struct {
	JobID     string     `json:"jobId"`
	RequestID string     `json:"requestId,omitempty"`
	Options   LogOptions `json:"options"`
}

// StatusMessage is the payload of job-status. JobState is kept raw so that the
// receiver can validate it before decoding.
type StatusMessage struct {
	JobID    string          `json:"jobId"`
	JobState json.RawMessage `json:"jobState"`
}

// LogLine is a single line of job output.
type LogLine struct {
	Line    string `json:"line"`
	IsError bool   `json:"is_error"`
	LinePos int    `json:"linepos"`
	TS      int64  `json:"ts,omitempty"`
}

// LogPage is a contiguous run of log lines starting at First. MaxLines is the total
// number of lines the job has produced so far.
type LogPage struct {
	First    int       `json:"first"`
	MaxLines int       `json:"max_lines"`
	Lines    []LogLine `json:"lines"`
}

// LogsMessage is the payload of job-logs. RequestID is empty on pushed pages.
type LogsMessage struct {
	JobID     string  `json:"jobId"`
	RequestID string  `json:"requestId,omitempty"`
	Logs      LogPage `json:"logs"`
}

// InfoMessage is the payload of job-info.
type InfoMessage struct {
	JobID   string          `json:"jobId"`
	JobInfo json.RawMessage `json:"jobInfo"`
}

// AppendLogsRequest is the request body for appending job output.
type AppendLogsRequest struct {
	Lines []LogLine `json:"lines"`
}

// AppendLogsResponse reports the total line count after an append.
type AppendLogsResponse struct {
	MaxLines int `json:"max_lines"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
