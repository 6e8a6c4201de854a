package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"jobwatch/internal/jobs"
	"jobwatch/internal/store"

	"github.com/lib/pq"
)

// GetJobState loads the stored record for jobID.
func (s *Store) GetJobState(ctx context.Context, jobID string) (*jobs.Record, error) {
	query := `SELECT state FROM job_states WHERE job_id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job state %s: %w", jobID, err)
	}

	var rec jobs.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job state %s: %w", jobID, err)
	}
	return &rec, nil
}

// ListJobStates loads the stored records among ids.
func (s *Store) ListJobStates(ctx context.Context, ids []string) ([]jobs.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT state FROM job_states WHERE job_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list job states: %w", err)
	}
	defer rows.Close()

	var out []jobs.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec jobs.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode job state: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertJobState stores rec under its job id.
func (s *Store) UpsertJobState(ctx context.Context, rec jobs.Record) error {
	if !rec.Valid() {
		return jobs.ErrInvalidJobState
	}
	query := `
		INSERT INTO job_states (job_id, status, state, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = NOW()
	`
	state, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, rec.JobID, string(rec.Status), state); err != nil {
		return fmt.Errorf("upsert job state %s: %w", rec.JobID, err)
	}
	return nil
}

// GetJobInfo loads the stored info for jobID.
func (s *Store) GetJobInfo(ctx context.Context, jobID string) (*jobs.Info, error) {
	query := `SELECT info FROM job_info WHERE job_id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job info %s: %w", jobID, err)
	}

	var info jobs.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode job info %s: %w", jobID, err)
	}
	return &info, nil
}

// UpsertJobInfo stores info under its job id.
func (s *Store) UpsertJobInfo(ctx context.Context, info jobs.Info) error {
	if !jobs.IsValidJobInfo(info) {
		return jobs.ErrInvalidJobInfo
	}
	query := `
		INSERT INTO job_info (job_id, info, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET info = EXCLUDED.info, updated_at = NOW()
	`
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, info.JobID, raw); err != nil {
		return fmt.Errorf("upsert job info %s: %w", info.JobID, err)
	}
	return nil
}

// CountByStatus counts stored jobs per status.
func (s *Store) CountByStatus(ctx context.Context) (map[jobs.Status]int64, error) {
	query := `SELECT status, COUNT(*) FROM job_states GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[jobs.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[jobs.Status(status)] = n
	}
	return counts, rows.Err()
}
