// Package queue dispatches named units of work with optional delay.
// Delivery is at-least-once; handlers must be idempotent or guarded.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dataset-service/internal/models"
)

// DefaultQueue is used when a job names no queue.
const DefaultQueue = "default"

// Job is a submission request.
type Job struct {
	Name  string
	Args  any
	Queue string
	Delay time.Duration
}

// Queue accepts work for later execution.
type Queue interface {
	Submit(ctx context.Context, job Job) error
}

// Source is a queue backend a worker can drain.
type Source interface {
	Queue
	// Claim returns the next runnable job from queues, or nil when there is none.
	Claim(ctx context.Context, queues []string) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job) error
	Fail(ctx context.Context, job *models.Job, cause error) error
}

// Decode unmarshals a claimed job's payload into v.
func Decode(job *models.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.Name, err)
	}
	return nil
}

func encode(job Job) ([]byte, error) {
	if job.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if job.Args == nil {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(job.Args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", job.Name, err)
	}
	return payload, nil
}

func queueName(job Job) string {
	if job.Queue == "" {
		return DefaultQueue
	}
	return job.Queue
}
