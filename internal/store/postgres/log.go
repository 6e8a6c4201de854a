package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jobwatch/internal/store"
)

// logStatus returns the line count of a job's log, or ErrNotFound / ErrLogsDeleted.
// With forUpdate the job's state row stays locked until q's transaction ends.
func logStatus(ctx context.Context, q store.DBTransaction, jobID string, forUpdate bool) (int, bool, error) {
	query := `
		SELECT s.logs_deleted, (SELECT COUNT(*) FROM job_logs l WHERE l.job_id = s.job_id)
		FROM job_states s
		WHERE s.job_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE OF s"
	}

	var deleted bool
	var total int
	err := q.QueryRowContext(ctx, query, jobID).Scan(&deleted, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, store.ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("read log status %s: %w", jobID, err)
	}
	return total, deleted, nil
}

// GetLogs returns up to limit lines from firstLine on.
func (s *Store) GetLogs(ctx context.Context, jobID string, firstLine, limit int) (*store.LogPage, error) {
	total, deleted, err := logStatus(ctx, s.db, jobID, false)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, store.ErrLogsDeleted
	}
	if firstLine < 0 {
		firstLine = 0
	}
	return s.readLines(ctx, jobID, firstLine, limit, total)
}

// GetLatestLogs returns the last limit lines.
func (s *Store) GetLatestLogs(ctx context.Context, jobID string, limit int) (*store.LogPage, error) {
	total, deleted, err := logStatus(ctx, s.db, jobID, false)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, store.ErrLogsDeleted
	}
	first := total - limit
	if first < 0 {
		first = 0
	}
	return s.readLines(ctx, jobID, first, limit, total)
}

func (s *Store) readLines(ctx context.Context, jobID string, first, limit, total int) (*store.LogPage, error) {
	query := `
		SELECT line_index, line, is_error, created_at
		FROM job_logs
		WHERE job_id = $1 AND line_index >= $2
		ORDER BY line_index ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, jobID, first, limit)
	if err != nil {
		return nil, fmt.Errorf("read logs %s: %w", jobID, err)
	}
	defer rows.Close()

	page := &store.LogPage{First: first, Total: total}
	for rows.Next() {
		var line store.LogLine
		if err := rows.Scan(&line.Index, &line.Line, &line.IsError, &line.CreatedAt); err != nil {
			return nil, err
		}
		page.Lines = append(page.Lines, line)
	}
	return page, rows.Err()
}

// AppendLogs adds lines after the current end of the log.
func (s *Store) AppendLogs(ctx context.Context, jobID string, lines []store.LogLine) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	total, deleted, err := logStatus(ctx, tx, jobID, true)
	if err != nil {
		return 0, err
	}
	if deleted {
		if _, err := tx.ExecContext(ctx, `UPDATE job_states SET logs_deleted = FALSE WHERE job_id = $1`, jobID); err != nil {
			return 0, fmt.Errorf("restore logs %s: %w", jobID, err)
		}
	}

	query := `INSERT INTO job_logs (job_id, line_index, line, is_error) VALUES ($1, $2, $3, $4)`
	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, query, jobID, total+i, line.Line, line.IsError); err != nil {
			return 0, fmt.Errorf("append log line %d of %s: %w", total+i, jobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total + len(lines), nil
}

// DeleteLogs removes the job's log lines and marks the log deleted.
func (s *Store) DeleteLogs(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE job_states SET logs_deleted = TRUE WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark logs deleted %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_logs WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete logs %s: %w", jobID, err)
	}
	return tx.Commit()
}
