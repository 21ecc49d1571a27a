package service

import (
	"context"
	"fmt"

	"dataset-service/internal/queue"
)

// Enqueuer is the entry point the API layer uses to start pipeline stages.
type Enqueuer struct {
	queue queue.Queue
}

func NewEnqueuer(q queue.Queue) *Enqueuer {
	return &Enqueuer{queue: q}
}

func (e *Enqueuer) EnqueueContentProcessing(ctx context.Context, contentID string) error {
	return e.submit(ctx, JobProcessContent, QueueContents, ContentArgs{ContentID: contentID})
}

func (e *Enqueuer) EnqueueTranscription(ctx context.Context, contentID string) error {
	return e.submit(ctx, JobTranscribeContent, QueueContents, ContentArgs{ContentID: contentID})
}

func (e *Enqueuer) EnqueueDatasetGeneration(ctx context.Context, datasetID string) error {
	return e.submit(ctx, JobGenerateDataset, QueueDatasets, DatasetArgs{DatasetID: datasetID})
}

func (e *Enqueuer) submit(ctx context.Context, name, queueName string, args any) error {
	if err := e.queue.Submit(ctx, queue.Job{Name: name, Queue: queueName, Args: args}); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}
