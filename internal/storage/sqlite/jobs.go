package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pickgear/backend/internal/storage/models"
)

// ErrJobConflict is returned by CreateJob when a PENDING or RUNNING job
// already exists. Only one pipeline run may be in flight at a time.
var ErrJobConflict = errors.New("a pipeline job is already pending or running")

// CreateJob inserts a new PENDING job unless one is already active. The
// existence check and the insert run inside a single immediate transaction,
// which takes the write lock up front so two concurrent callers cannot both
// pass the check.
func (s *Store) CreateJob(trigger models.JobTrigger, category string, makers []string) (*models.PipelineJob, error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	var active int
	err = conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pipeline_jobs WHERE status IN ('PENDING', 'RUNNING')`).Scan(&active)
	if err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if active > 0 {
		conn.ExecContext(ctx, "ROLLBACK")
		return nil, ErrJobConflict
	}

	job := &models.PipelineJob{
		ID:          uuid.New().String(),
		Status:      models.JobPending,
		TriggeredBy: trigger,
		Category:    category,
		Makers:      makers,
		CreatedAt:   time.Now(),
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO pipeline_jobs (id, status, triggered_by, category, makers, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), string(job.TriggeredBy), job.Category,
		encodeMakers(job.Makers), job.CreatedAt.UnixNano())
	if err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job, nil
}

// NextPendingJob returns the oldest PENDING job, or nil when the queue is
// empty.
func (s *Store) NextPendingJob() (*models.PipelineJob, error) {
	row := s.db.QueryRow(`
		SELECT id, status, triggered_by, category, makers, created_at, started_at, completed_at
		FROM pipeline_jobs WHERE status = 'PENDING'
		ORDER BY created_at ASC, id ASC LIMIT 1`)
	return scanJobRow(row)
}

// MarkJobRunning transitions PENDING -> RUNNING. The status guard in the
// WHERE clause makes the transition idempotent-safe: a job already claimed or
// finished is left untouched and the call reports no rows.
func (s *Store) MarkJobRunning(jobID string) error {
	res, err := s.db.Exec(`
		UPDATE pipeline_jobs SET status = 'RUNNING', started_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		time.Now().UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return requireRowAffected(res, jobID, "RUNNING")
}

// MarkJobDone transitions RUNNING -> DONE.
func (s *Store) MarkJobDone(jobID string) error {
	res, err := s.db.Exec(`
		UPDATE pipeline_jobs SET status = 'DONE', completed_at = ?
		WHERE id = ? AND status = 'RUNNING'`,
		time.Now().UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return requireRowAffected(res, jobID, "DONE")
}

// MarkJobFailed transitions RUNNING -> FAILED.
func (s *Store) MarkJobFailed(jobID string) error {
	res, err := s.db.Exec(`
		UPDATE pipeline_jobs SET status = 'FAILED', completed_at = ?
		WHERE id = ? AND status = 'RUNNING'`,
		time.Now().UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return requireRowAffected(res, jobID, "FAILED")
}

func requireRowAffected(res sql.Result, jobID, target string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s not in required state for transition to %s", jobID, target)
	}
	return nil
}

// AppendJobLog records one log line for a job. Logs are append-only and
// ordered by their autoincrement id.
func (s *Store) AppendJobLog(jobID, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO pipeline_logs (job_id, message, created_at)
		VALUES (?, ?, ?)`,
		jobID, message, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// JobLogs returns up to limit most recent log lines in chronological order.
// limit <= 0 returns all lines.
func (s *Store) JobLogs(jobID string, limit int) ([]models.PipelineLog, error) {
	query := `
		SELECT id, job_id, message, created_at FROM pipeline_logs
		WHERE job_id = ? ORDER BY id DESC`
	args := []any{jobID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	// Reverse the DESC window back into chronological order.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// JobLogsAfter returns log lines with id greater than afterID, oldest first.
// Used by the websocket stream to poll incrementally.
func (s *Store) JobLogsAfter(jobID string, afterID int64) ([]models.PipelineLog, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, message, created_at FROM pipeline_logs
		WHERE job_id = ? AND id > ? ORDER BY id ASC`, jobID, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]models.PipelineLog, error) {
	var logs []models.PipelineLog
	for rows.Next() {
		var l models.PipelineLog
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.JobID, &l.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job log: %w", err)
		}
		l.CreatedAt = time.Unix(createdAt, 0)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// LatestJob returns the most recently created job regardless of status, or
// nil when no job has ever been created.
func (s *Store) LatestJob() (*models.PipelineJob, error) {
	row := s.db.QueryRow(`
		SELECT id, status, triggered_by, category, makers, created_at, started_at, completed_at
		FROM pipeline_jobs ORDER BY created_at DESC, id DESC LIMIT 1`)
	return scanJobRow(row)
}

// JobByID returns nil without error when the job does not exist.
func (s *Store) JobByID(jobID string) (*models.PipelineJob, error) {
	row := s.db.QueryRow(`
		SELECT id, status, triggered_by, category, makers, created_at, started_at, completed_at
		FROM pipeline_jobs WHERE id = ?`, jobID)
	return scanJobRow(row)
}

// RecentJobs returns up to limit jobs, newest first.
func (s *Store) RecentJobs(limit int) ([]models.PipelineJob, error) {
	rows, err := s.db.Query(`
		SELECT id, status, triggered_by, category, makers, created_at, started_at, completed_at
		FROM pipeline_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.PipelineJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJobRow(row *sql.Row) (*models.PipelineJob, error) {
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func scanJob(scan func(...any) error) (*models.PipelineJob, error) {
	var job models.PipelineJob
	var status, trigger, makers string
	var createdAt int64
	var startedAt, completedAt sql.NullInt64
	err := scan(&job.ID, &status, &trigger, &job.Category, &makers,
		&createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = models.JobStatus(status)
	job.TriggeredBy = models.JobTrigger(trigger)
	job.Makers = decodeMakers(makers)
	job.CreatedAt = time.Unix(0, createdAt)
	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		job.CompletedAt = &t
	}
	return &job, nil
}
