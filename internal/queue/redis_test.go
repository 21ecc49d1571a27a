package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dataset-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "test", time.Minute, zap.NewNop()), client
}

func TestRedisQueue_SubmitAndClaim(t *testing.T) {
	ctx := context.Background()
	q, client := newTestRedisQueue(t)

	require.NoError(t, q.Submit(ctx, Job{Name: "generate_dataset", Args: testArgs{DatasetID: "d1", Attempt: 2}}))

	job, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "generate_dataset", job.Name)
	assert.Equal(t, models.JobRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	var args testArgs
	require.NoError(t, Decode(job, &args))
	assert.Equal(t, testArgs{DatasetID: "d1", Attempt: 2}, args)

	again, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, q.Complete(ctx, job))
	assert.Equal(t, models.JobSucceeded, job.Status)
	assert.Zero(t, client.HLen(ctx, q.bodiesKey()).Val())
	assert.Zero(t, client.ZCard(ctx, q.processingKey(DefaultQueue)).Val())
}

func TestRedisQueue_DelayedJobNotRunnable(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedisQueue(t)

	require.NoError(t, q.Submit(ctx, Job{Name: "later", Delay: time.Hour}))
	job, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Nil(t, job)

	base := time.Now().UTC()
	q.now = func() time.Time { return base.Add(2 * time.Hour) }
	job, err = q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.Name)
}

func TestRedisQueue_QueuesAreSeparate(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedisQueue(t)

	require.NoError(t, q.Submit(ctx, Job{Name: "a", Queue: "datasets"}))
	job, err := q.Claim(ctx, []string{"contents"})
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = q.Claim(ctx, []string{"contents", "datasets"})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "datasets", job.Queue)
}

func TestRedisQueue_UnfinishedClaimIsRedelivered(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedisQueue(t)

	require.NoError(t, q.Submit(ctx, Job{Name: "generate_dataset"}))
	first, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	require.NotNil(t, first)

	// the worker holding the claim went away
	base := time.Now().UTC()
	q.now = func() time.Time { return base.Add(30 * time.Second) }
	job, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Nil(t, job)

	q.now = func() time.Time { return base.Add(2 * time.Minute) }
	job, err = q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)
	assert.Equal(t, 2, job.Attempts)
}

func TestRedisQueue_FailKeepsCappedHistory(t *testing.T) {
	ctx := context.Background()
	q, client := newTestRedisQueue(t)

	for i := 0; i < maxFailedJobs; i++ {
		require.NoError(t, client.RPush(ctx, q.failedKey(), "{}").Err())
	}

	require.NoError(t, q.Submit(ctx, Job{Name: "broken"}))
	job, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job, errors.New("boom")))
	assert.Equal(t, int64(maxFailedJobs), client.LLen(ctx, q.failedKey()).Val())
	assert.Zero(t, client.ZCard(ctx, q.processingKey(DefaultQueue)).Val())

	head, err := client.LIndex(ctx, q.failedKey(), 0).Bytes()
	require.NoError(t, err)
	var failed models.Job
	require.NoError(t, json.Unmarshal(head, &failed))
	assert.Equal(t, job.ID, failed.ID)
	assert.Equal(t, models.JobFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "boom", *failed.LastError)

	// a failed job is not delivered again
	base := time.Now().UTC()
	q.now = func() time.Time { return base.Add(time.Hour) }
	again, err := q.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Nil(t, again)
}
