package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxFailedJobs caps the failed list.
const maxFailedJobs = 1000

// moveScript moves a member between sorted sets if it is still in the source.
var moveScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

// RedisQueue keeps job bodies in a hash and job ids in two sorted sets per
// queue: ready, scored by run-at, and processing, scored by the claim's
// deadline. Claims past their deadline go back to ready.
type RedisQueue struct {
	client     *redis.Client
	prefix     string
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRedisQueue creates a queue over client with keys under prefix. Claimed
// jobs not finished within staleAfter are delivered again.
func NewRedisQueue(client *redis.Client, prefix string, staleAfter time.Duration, logger *zap.Logger) *RedisQueue {
	if prefix == "" {
		prefix = "jobs"
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &RedisQueue{
		client:     client,
		prefix:     prefix,
		staleAfter: staleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (q *RedisQueue) readyKey(queue string) string {
	return q.prefix + ":" + queue
}

func (q *RedisQueue) processingKey(queue string) string {
	return q.prefix + ":" + queue + ":processing"
}

func (q *RedisQueue) bodiesKey() string {
	return q.prefix + ":bodies"
}

func (q *RedisQueue) failedKey() string {
	return q.prefix + ":failed"
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Submit stores the job body and schedules its id.
func (q *RedisQueue) Submit(ctx context.Context, job Job) error {
	payload, err := encode(job)
	if err != nil {
		return err
	}
	now := q.now()
	row := models.Job{
		ID:        uuid.NewString(),
		Name:      job.Name,
		Queue:     queueName(job),
		Payload:   payload,
		Status:    models.JobQueued,
		RunAt:     now.Add(job.Delay),
		CreatedAt: now,
		UpdatedAt: now,
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.bodiesKey(), row.ID, body)
	pipe.ZAdd(ctx, q.readyKey(row.Queue), redis.Z{
		Score:  float64(row.RunAt.UnixMilli()),
		Member: row.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("submit %s: %w", job.Name, err)
	}

	q.logger.Debug("Job submitted",
		zap.String("job", job.Name),
		zap.String("queue", row.Queue),
		zap.Duration("delay", job.Delay))
	return nil
}

// Claim returns the first due job across queues after putting expired claims
// back on their ready sets.
func (q *RedisQueue) Claim(ctx context.Context, queues []string) (*models.Job, error) {
	now := q.now()
	for _, name := range queues {
		if err := q.reclaim(ctx, name, now); err != nil {
			return nil, err
		}

		ids, err := q.client.ZRangeByScore(ctx, q.readyKey(name), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   score(now),
			Count: claimBatch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("scan queue %s: %w", name, err)
		}

		for _, id := range ids {
			moved, err := moveScript.Run(ctx, q.client,
				[]string{q.readyKey(name), q.processingKey(name)},
				id, score(now.Add(q.staleAfter))).Int()
			if err != nil {
				return nil, fmt.Errorf("claim job: %w", err)
			}
			if moved != 1 {
				continue
			}

			job, err := q.load(ctx, id)
			if err != nil {
				return nil, err
			}
			if job == nil {
				q.logger.Error("Dropping job without a readable body", zap.String("queue", name), zap.String("job_id", id))
				q.client.ZRem(ctx, q.processingKey(name), id)
				continue
			}

			job.Status = models.JobRunning
			job.Attempts++
			job.LockedAt = &now
			job.UpdatedAt = now
			if err := q.save(ctx, job); err != nil {
				return nil, err
			}
			return job, nil
		}
	}
	return nil, nil
}

// reclaim returns claims whose deadline passed to the ready set.
func (q *RedisQueue) reclaim(ctx context.Context, name string, now time.Time) error {
	ids, err := q.client.ZRangeByScore(ctx, q.processingKey(name), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + score(now),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("scan claims %s: %w", name, err)
	}
	for _, id := range ids {
		moved, err := moveScript.Run(ctx, q.client,
			[]string{q.processingKey(name), q.readyKey(name)},
			id, score(now)).Int()
		if err != nil {
			return fmt.Errorf("reclaim job: %w", err)
		}
		if moved == 1 {
			q.logger.Warn("Reclaimed stale job", zap.String("queue", name), zap.String("job_id", id))
		}
	}
	return nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*models.Job, error) {
	body, err := q.client.HGet(ctx, q.bodiesKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job models.Job
	if err := json.Unmarshal(body, &job); err != nil {
		q.logger.Error("Undecodable job body", zap.String("job_id", id), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

func (q *RedisQueue) save(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.HSet(ctx, q.bodiesKey(), job.ID, body).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Complete drops a finished job.
func (q *RedisQueue) Complete(ctx context.Context, job *models.Job) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(job.Queue), job.ID)
	pipe.HDel(ctx, q.bodiesKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	job.Status = models.JobSucceeded
	return nil
}

// Fail drops the job and records it on the capped failed list.
func (q *RedisQueue) Fail(ctx context.Context, job *models.Job, cause error) error {
	msg := cause.Error()
	job.Status = models.JobFailed
	job.LastError = &msg
	job.UpdatedAt = q.now()
	entry, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode failed job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(job.Queue), job.ID)
	pipe.HDel(ctx, q.bodiesKey(), job.ID)
	pipe.LPush(ctx, q.failedKey(), entry)
	pipe.LTrim(ctx, q.failedKey(), 0, maxFailedJobs-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failed job: %w", err)
	}
	return nil
}
