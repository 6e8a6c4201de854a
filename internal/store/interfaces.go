package store

import (
	"context"
	"database/sql"
	"errors"

	"jobwatch/internal/jobs"
)

var (
	// ErrNotFound is returned when no state is stored for a job.
	ErrNotFound = errors.New("job not found")
	// ErrLogsDeleted is returned when a job's logs were removed.
	ErrLogsDeleted = errors.New("job logs deleted")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JobStore persists job states and job info.
type JobStore interface {
	// GetJobState returns the last stored state, or ErrNotFound.
	GetJobState(ctx context.Context, jobID string) (*jobs.Record, error)

	// ListJobStates returns the stored states among ids, in no particular order.
	// Unknown ids are skipped.
	ListJobStates(ctx context.Context, ids []string) ([]jobs.Record, error)

	// UpsertJobState stores rec, replacing any earlier state.
	UpsertJobState(ctx context.Context, rec jobs.Record) error

	// GetJobInfo returns the stored info, or ErrNotFound.
	GetJobInfo(ctx context.Context, jobID string) (*jobs.Info, error)

	// UpsertJobInfo stores info, replacing any earlier info.
	UpsertJobInfo(ctx context.Context, info jobs.Info) error

	// CountByStatus returns the number of stored jobs per status.
	CountByStatus(ctx context.Context) (map[jobs.Status]int64, error)
}

// LogStore persists job log lines. Every method returns ErrNotFound for jobs
// without a stored state; reads return ErrLogsDeleted once the logs were deleted.
type LogStore interface {
	// GetLogs returns up to limit lines starting at firstLine (0-based).
	GetLogs(ctx context.Context, jobID string, firstLine, limit int) (*LogPage, error)

	// GetLatestLogs returns the last limit lines.
	GetLatestLogs(ctx context.Context, jobID string, limit int) (*LogPage, error)

	// AppendLogs adds lines at the end of the log and returns the new line count.
	// Appending to deleted logs starts a fresh log.
	AppendLogs(ctx context.Context, jobID string, lines []LogLine) (int, error)

	// DeleteLogs removes every line of the job's log.
	DeleteLogs(ctx context.Context, jobID string) error
}
