package queue

import (
	"context"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	claimBatch        = 10
	defaultStaleAfter = 10 * time.Minute
)

// SQLQueue stores jobs in the jobs table. A job is claimed by a conditional
// update, so concurrent workers never run the same row twice unless it goes stale.
type SQLQueue struct {
	db         *sqlx.DB
	logger     *zap.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// NewSQLQueue creates a queue over db. Running jobs older than staleAfter are reclaimed.
func NewSQLQueue(db *sqlx.DB, staleAfter time.Duration, logger *zap.Logger) *SQLQueue {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &SQLQueue{
		db:         db,
		logger:     logger,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit inserts a queued row that becomes runnable after job.Delay.
func (q *SQLQueue) Submit(ctx context.Context, job Job) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}
	now := q.now()
	_, err = q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO jobs (id, name, queue, payload, status, attempts, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`),
		uuid.NewString(), job.Name, queueName(job), payload, models.JobQueued, now.Add(job.Delay), now, now)
	if err != nil {
		return fmt.Errorf("submit %s: %w", job.Name, err)
	}

	q.logger.Debug("Job submitted",
		zap.String("job", job.Name),
		zap.String("queue", queueName(job)),
		zap.Duration("delay", job.Delay))
	return nil
}

// Claim picks the oldest runnable job. A candidate lost to another worker is skipped.
func (q *SQLQueue) Claim(ctx context.Context, queues []string) (*models.Job, error) {
	now := q.now()
	staleBefore := now.Add(-q.staleAfter)

	query, args, err := sqlx.In(`
		SELECT id FROM jobs
		WHERE queue IN (?)
		  AND ((status = ? AND run_at <= ?) OR (status = ? AND locked_at < ?))
		ORDER BY run_at
		LIMIT ?`,
		queues, models.JobQueued, now, models.JobRunning, staleBefore, claimBatch)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := q.db.SelectContext(ctx, &ids, q.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select runnable jobs: %w", err)
	}

	for _, id := range ids {
		res, err := q.db.ExecContext(ctx, q.db.Rebind(`
			UPDATE jobs SET status = ?, locked_at = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND ((status = ? AND run_at <= ?) OR (status = ? AND locked_at < ?))`),
			models.JobRunning, now, now, id, models.JobQueued, now, models.JobRunning, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue
		}

		var job models.Job
		err = q.db.GetContext(ctx, &job, q.db.Rebind(`
			SELECT id, name, queue, payload, status, attempts, run_at, locked_at, last_error, created_at, updated_at
			FROM jobs WHERE id = ?`), id)
		if err != nil {
			return nil, fmt.Errorf("load claimed job: %w", err)
		}
		return &job, nil
	}
	return nil, nil
}

// Complete marks a claimed job succeeded.
func (q *SQLQueue) Complete(ctx context.Context, job *models.Job) error {
	return q.finish(ctx, job, models.JobSucceeded, nil)
}

// Fail marks a claimed job failed and records the cause.
func (q *SQLQueue) Fail(ctx context.Context, job *models.Job, cause error) error {
	msg := cause.Error()
	return q.finish(ctx, job, models.JobFailed, &msg)
}

func (q *SQLQueue) finish(ctx context.Context, job *models.Job, status models.JobStatus, lastErr *string) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		UPDATE jobs SET status = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`),
		status, lastErr, q.now(), job.ID)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	job.Status = status
	job.LastError = lastErr
	return nil
}
