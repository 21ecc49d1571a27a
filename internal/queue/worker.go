package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dataset-service/internal/models"

	"go.uber.org/zap"
)

// Handler runs one claimed job. A returned error marks the job failed;
// retries are explicit resubmissions by the handler.
type Handler func(ctx context.Context, job *models.Job) error

// Registry maps job names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// WorkerConfig controls polling.
type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Queues       []string      `yaml:"queues"`
}

// Worker drains a Source with a fixed number of polling goroutines.
type Worker struct {
	source   Source
	registry *Registry
	logger   *zap.Logger
	cfg      WorkerConfig
}

func NewWorker(source Source, registry *Registry, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{DefaultQueue}
	}
	return &Worker{
		source:   source,
		registry: registry,
		logger:   logger.With(zap.String("component", "JobWorker")),
		cfg:      cfg,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Strings("queues", w.cfg.Queues))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("Worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain everything runnable before sleeping again
			for {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.logger.Warn("Claim failed", zap.Error(err))
				}
				if !ran || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and runs at most one job, reporting whether one ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.source.Claim(ctx, w.cfg.Queues)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int("attempts", job.Attempts))

	h, ok := w.registry.Get(job.Name)
	if !ok {
		log.Warn("No handler registered for job")
		w.fail(ctx, log, job, fmt.Errorf("no handler registered for job %q", job.Name))
		return
	}

	start := time.Now()
	err := w.safeRun(ctx, h, job)
	if err != nil {
		log.Error("Job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		w.fail(ctx, log, job, err)
		return
	}

	if err := w.source.Complete(ctx, job); err != nil {
		log.Error("Failed to mark job complete", zap.Error(err))
		return
	}
	log.Debug("Job completed", zap.Duration("duration", time.Since(start)))
}

func (w *Worker) safeRun(ctx context.Context, h Handler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, job *models.Job, cause error) {
	// record the outcome even when shutdown cancelled the handler
	ctx = context.WithoutCancel(ctx)
	if err := w.source.Fail(ctx, job, cause); err != nil {
		log.Error("Failed to mark job failed", zap.Error(err))
	}
}
