package service

import (
	"context"

	"dataset-service/internal/models"
	"dataset-service/internal/queue"
)

// Job names.
const (
	JobProcessContent    = "process_content"
	JobTranscribeContent = "transcribe_content"
	JobGenerateDataset   = "generate_dataset"
	JobStartFineTuning   = "start_fine_tuning"
	JobPollFineTuning    = "poll_fine_tuning"
)

// Queue names.
const (
	QueueContents   = "contents"
	QueueDatasets   = "datasets"
	QueueFineTuning = "fine_tuning"
)

// Queues lists every queue the pipeline submits to.
var Queues = []string{QueueContents, QueueDatasets, QueueFineTuning}

type ContentArgs struct {
	ContentID string `json:"content_id"`
}

// DatasetArgs carries two counters: Attempt for not-ready resubmissions and
// Failures for resubmissions after infrastructure errors.
type DatasetArgs struct {
	DatasetID string `json:"dataset_id"`
	Attempt   int    `json:"attempt"`
	Failures  int    `json:"failures,omitempty"`
}

type FineTuningArgs struct {
	FineTuningID string `json:"fine_tuning_id"`
	Attempt      int    `json:"attempt"`
}

// RegisterHandlers binds every pipeline job to its handler.
func RegisterHandlers(reg *queue.Registry, contents *ContentWorker, orchestrator *Orchestrator, fineTuner *FineTuner) {
	reg.Register(JobProcessContent, func(ctx context.Context, job *models.Job) error {
		var args ContentArgs
		if err := queue.Decode(job, &args); err != nil {
			return err
		}
		return contents.Process(ctx, args)
	})
	reg.Register(JobTranscribeContent, func(ctx context.Context, job *models.Job) error {
		var args ContentArgs
		if err := queue.Decode(job, &args); err != nil {
			return err
		}
		return contents.Transcribe(ctx, args)
	})
	reg.Register(JobGenerateDataset, func(ctx context.Context, job *models.Job) error {
		var args DatasetArgs
		if err := queue.Decode(job, &args); err != nil {
			return err
		}
		return orchestrator.Run(ctx, args)
	})
	reg.Register(JobStartFineTuning, func(ctx context.Context, job *models.Job) error {
		var args FineTuningArgs
		if err := queue.Decode(job, &args); err != nil {
			return err
		}
		return fineTuner.Start(ctx, args)
	})
	reg.Register(JobPollFineTuning, func(ctx context.Context, job *models.Job) error {
		var args FineTuningArgs
		if err := queue.Decode(job, &args); err != nil {
			return err
		}
		return fineTuner.Poll(ctx, args)
	})
}
