package service

import (
	"context"
	"testing"
	"time"

	"dataset-service/internal/models"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(t *testing.T, w *queue.Worker) int {
	t.Helper()
	n := 0
	for {
		ran, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		if !ran {
			return n
		}
		n++
	}
}

func TestPipeline_TextToReadyDataset(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	q := queue.NewSQLQueue(store.DB(), time.Minute, zap.NewNop())
	synth := &fakeSynth{}

	contents := NewContentWorker(store, q, nil, nil, zap.NewNop())
	tuner := NewFineTuner(store, q, &fakeResolver{}, nil, nil, FineTuningConfig{}, zap.NewNop())
	orch := NewOrchestrator(store, q, synth, tuner, GenerationConfig{ChunkSize: 10}, RetryConfig{}, "worker-1", zap.NewNop())

	reg := queue.NewRegistry()
	RegisterHandlers(reg, contents, orch, tuner)
	for _, name := range []string{JobProcessContent, JobTranscribeContent, JobGenerateDataset, JobStartFineTuning, JobPollFineTuning} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}
	worker := queue.NewWorker(q, reg, queue.WorkerConfig{Queues: Queues}, zap.NewNop())
	enq := NewEnqueuer(q)

	user := repotest.NewUser(t, store, 10_000)
	c := newContent(t, store, &models.Content{UserID: user.ID, Type: models.ContentText, RawText: strPtr("Our store opens at nine.")})
	ds := newDataset(t, store, user.ID, "Answer as staff", c.ID)

	// generation before the content is processed waits
	require.NoError(t, enq.EnqueueDatasetGeneration(ctx, ds.ID))
	assert.Equal(t, 1, drain(t, worker))
	got, err := store.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetPending, got.Status)

	require.NoError(t, enq.EnqueueContentProcessing(ctx, c.ID))
	assert.Equal(t, 1, drain(t, worker))
	require.NoError(t, enq.EnqueueDatasetGeneration(ctx, ds.ID))
	assert.Equal(t, 1, drain(t, worker))

	got, err = store.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetReady, got.Status)
	assert.Equal(t, 3, got.PairsCount)
	assert.Len(t, synth.calls, 3)
}
