package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dataset-service/internal/crypto"
	"dataset-service/internal/ledger"
	"dataset-service/internal/llm"
	"dataset-service/internal/models"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"

	"go.uber.org/zap"
)

// ProviderResolver builds a provider bound to a user's own API key.
type ProviderResolver interface {
	WithKey(name, apiKey string) (llm.Provider, error)
}

// FineTuner moves FineTuning rows through queued, training and a terminal state.
type FineTuner struct {
	store     *repository.Store
	queue     queue.Queue
	providers ProviderResolver
	keys      *crypto.KeyManager
	ledger    *ledger.Service
	cfg       FineTuningConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewFineTuner(
	store *repository.Store,
	q queue.Queue,
	providers ProviderResolver,
	keys *crypto.KeyManager,
	ledgerService *ledger.Service,
	cfg FineTuningConfig,
	logger *zap.Logger,
) *FineTuner {
	return &FineTuner{
		store:     store,
		queue:     q,
		providers: providers,
		keys:      keys,
		ledger:    ledgerService,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Trigger queues every pending fine-tuning row of a ready dataset. A row
// whose provider has no stored credential is failed; the dataset is unaffected.
func (f *FineTuner) Trigger(ctx context.Context, ds *models.Dataset) error {
	if ds.Status != models.DatasetReady {
		return nil
	}

	for {
		ft, err := f.store.GetPendingFineTuning(ctx, ds.ID)
		if err != nil {
			return err
		}
		if ft == nil {
			return nil
		}

		log := f.logger.With(zap.String("fine_tuning_id", ft.ID), zap.String("dataset_id", ds.ID))

		cred, err := f.store.GetCredential(ctx, ft.UserID, ft.Provider)
		if err != nil {
			return err
		}
		if cred == nil {
			msg := fmt.Sprintf("no credential configured for provider %s", ft.Provider)
			if _, err := f.store.TransitionFineTuning(ctx, ft.ID, models.FineTuningPending, models.FineTuningError, &msg); err != nil {
				return err
			}
			log.Warn("Fine-tuning not started", zap.String("reason", msg))
			continue
		}

		ok, err := f.store.TransitionFineTuning(ctx, ft.ID, models.FineTuningPending, models.FineTuningQueued, nil)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := f.submit(ctx, JobStartFineTuning, FineTuningArgs{FineTuningID: ft.ID}, 0); err != nil {
			// hand the row back to pending so the next trigger picks it up
			if _, rerr := f.store.TransitionFineTuning(context.WithoutCancel(ctx), ft.ID, models.FineTuningQueued, models.FineTuningPending, nil); rerr != nil {
				log.Error("Failed to return fine-tuning to pending", zap.Error(rerr))
			}
			return err
		}
		log.Info("Fine-tuning queued", zap.String("provider", ft.Provider))
	}
}

// Start runs the start_fine_tuning job.
func (f *FineTuner) Start(ctx context.Context, args FineTuningArgs) error {
	log := f.logger.With(zap.String("fine_tuning_id", args.FineTuningID), zap.Int("attempt", args.Attempt))

	ft, err := f.load(ctx, args.FineTuningID)
	if err != nil || ft == nil {
		return err
	}
	if ft.Status != models.FineTuningQueued {
		log.Info("Fine-tuning not queued, skipping", zap.String("status", string(ft.Status)))
		return nil
	}

	ds, err := f.store.GetDataset(ctx, ft.DatasetID)
	if errors.Is(err, repository.ErrNotFound) {
		return f.fail(ctx, ft.ID, "dataset not found")
	}
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	if ds.Status != models.DatasetReady {
		return f.fail(ctx, ft.ID, fmt.Sprintf("dataset is %s, not ready", ds.Status))
	}

	provider, err := f.provider(ctx, ft)
	if err != nil {
		return f.fail(ctx, ft.ID, err.Error())
	}
	defer provider.Close()

	pairs, err := f.store.ListPairs(ctx, ds.ID)
	if err != nil {
		return err
	}
	jsonl, err := BuildTrainingJSONL(ds.TrainingGoal, pairs)
	if err != nil {
		return f.fail(ctx, ft.ID, err.Error())
	}

	job, err := provider.StartFineTuning(ctx, models.FineTuneRequest{
		Model:         ft.Model,
		Suffix:        suffix(ds.ID),
		TrainingJSONL: jsonl,
	})
	if err != nil {
		if errors.Is(err, llm.ErrAuth) || errors.Is(err, llm.ErrUnsupported) {
			return f.fail(ctx, ft.ID, err.Error())
		}
		if args.Attempt+1 >= f.cfg.StartAttempts {
			return f.fail(ctx, ft.ID, fmt.Sprintf("start fine-tuning: %v after %d attempts", err, args.Attempt+1))
		}
		log.Warn("Start fine-tuning failed, retrying", zap.Error(err))
		return f.submit(ctx, JobStartFineTuning, FineTuningArgs{FineTuningID: ft.ID, Attempt: args.Attempt + 1}, f.cfg.StartRetryDelay)
	}

	started := false
	err = f.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetFineTuning(ctx, ft.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.FineTuningQueued {
			return nil
		}

		charged, err := q.HasDatasetConsumption(ctx, ds.ID)
		if err != nil {
			return err
		}
		if !charged {
			if err := f.ledger.ApplyConsumptionTx(ctx, q, ds.UserID, ds.CharacterCount, &ds.ID); err != nil {
				return fmt.Errorf("apply consumption: %w", err)
			}
		}

		now := f.now()
		cur.Status = models.FineTuningTraining
		cur.ProviderJobID = &job.ID
		cur.Progress = job.Progress
		cur.StartedAt = &now
		if err := q.UpdateFineTuning(ctx, cur); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return err
	}

	if !started {
		// cancelled while the provider call was in flight
		log.Info("Fine-tuning changed state during start, cancelling provider job", zap.String("provider_job_id", job.ID))
		if err := provider.CancelFineTuning(context.WithoutCancel(ctx), job.ID); err != nil {
			log.Warn("Provider cancel failed", zap.Error(err))
		}
		return nil
	}

	log.Info("Fine-tuning started",
		zap.String("provider", ft.Provider),
		zap.String("provider_job_id", job.ID),
		zap.Int64("characters", ds.CharacterCount))
	return f.submit(ctx, JobPollFineTuning, FineTuningArgs{FineTuningID: ft.ID}, f.cfg.PollInterval)
}

// Poll runs the poll_fine_tuning job. Attempt counts consecutive status errors.
func (f *FineTuner) Poll(ctx context.Context, args FineTuningArgs) error {
	log := f.logger.With(zap.String("fine_tuning_id", args.FineTuningID))

	ft, err := f.load(ctx, args.FineTuningID)
	if err != nil || ft == nil {
		return err
	}
	if ft.Status != models.FineTuningTraining {
		log.Info("Fine-tuning not training, stop polling", zap.String("status", string(ft.Status)))
		return nil
	}
	if ft.ProviderJobID == nil {
		return f.fail(ctx, ft.ID, "training without a provider job id")
	}

	provider, err := f.provider(ctx, ft)
	if err != nil {
		return f.fail(ctx, ft.ID, err.Error())
	}
	defer provider.Close()

	job, err := provider.GetFineTuningStatus(ctx, *ft.ProviderJobID)
	if err != nil {
		if errors.Is(err, llm.ErrAuth) || errors.Is(err, llm.ErrUnsupported) {
			return f.fail(ctx, ft.ID, err.Error())
		}
		if args.Attempt+1 >= f.cfg.MaxPollErrors {
			return f.fail(ctx, ft.ID, fmt.Sprintf("poll fine-tuning: %v after %d attempts", err, args.Attempt+1))
		}
		log.Warn("Fine-tuning status failed, retrying", zap.Error(err))
		return f.submit(ctx, JobPollFineTuning, FineTuningArgs{FineTuningID: ft.ID, Attempt: args.Attempt + 1}, f.cfg.PollInterval)
	}

	status := rowStatus(job.Status)
	updated := false
	err = f.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetFineTuning(ctx, ft.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.FineTuningTraining {
			return nil
		}

		cur.Status = status
		cur.Progress = job.Progress
		if job.FineTunedModel != "" {
			cur.FineTunedModel = &job.FineTunedModel
		}
		if status.Terminal() {
			now := f.now()
			cur.CompletedAt = &now
			if status == models.FineTuningCompleted {
				cur.Progress = 100
			}
		}
		if status == models.FineTuningError {
			msg := job.Error
			if msg == "" {
				msg = "provider reported failure"
			}
			cur.ErrorMessage = &msg
		}
		if err := q.UpdateFineTuning(ctx, cur); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}

	if status.Terminal() {
		log.Info("Fine-tuning finished", zap.String("status", string(status)))
		return nil
	}
	log.Debug("Fine-tuning in progress", zap.Int("progress", job.Progress))
	return f.submit(ctx, JobPollFineTuning, FineTuningArgs{FineTuningID: ft.ID}, f.cfg.PollInterval)
}

// Cancel marks a fine-tuning cancelled and asks the provider to stop it.
// The provider call is best effort; the row is cancelled either way.
func (f *FineTuner) Cancel(ctx context.Context, id string) error {
	var ft *models.FineTuning
	err := f.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetFineTuning(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("fine-tuning %s is %s: %w", id, cur.Status, ErrInvalidTransition)
		}
		now := f.now()
		cur.Status = models.FineTuningCancelled
		cur.CompletedAt = &now
		if err := q.UpdateFineTuning(ctx, cur); err != nil {
			return err
		}
		ft = cur
		return nil
	})
	if err != nil {
		return err
	}

	log := f.logger.With(zap.String("fine_tuning_id", id))
	log.Info("Fine-tuning cancelled")
	if ft.ProviderJobID == nil {
		return nil
	}

	provider, err := f.provider(ctx, ft)
	if err != nil {
		log.Warn("Provider cancel skipped", zap.Error(err))
		return nil
	}
	defer provider.Close()
	if err := provider.CancelFineTuning(ctx, *ft.ProviderJobID); err != nil {
		log.Warn("Provider cancel failed", zap.Error(err))
	}
	return nil
}

func (f *FineTuner) load(ctx context.Context, id string) (*models.FineTuning, error) {
	ft, err := f.store.GetFineTuning(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		f.logger.Warn("Fine-tuning not found, skipping", zap.String("fine_tuning_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fine-tuning: %w", err)
	}
	return ft, nil
}

// provider opens the user's credential and builds a provider bound to it.
// The caller closes the returned provider.
func (f *FineTuner) provider(ctx context.Context, ft *models.FineTuning) (llm.Provider, error) {
	cred, err := f.store.GetCredential(ctx, ft.UserID, ft.Provider)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("no credential configured for provider %s: %w", ft.Provider, ErrCredentialMissing)
	}
	apiKey, err := f.keys.OpenCredential(ft.UserID, ft.Provider, cred.APIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}
	p, err := f.providers.WithKey(ft.Provider, apiKey)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", ft.Provider, err)
	}
	return p, nil
}

func (f *FineTuner) submit(ctx context.Context, name string, args FineTuningArgs, delay time.Duration) error {
	err := f.queue.Submit(ctx, queue.Job{
		Name:  name,
		Queue: QueueFineTuning,
		Args:  args,
		Delay: delay,
	})
	if err != nil {
		return fmt.Errorf("submit %s: %w", name, err)
	}
	return nil
}

// fail records a terminal error on the row in a fresh transaction.
func (f *FineTuner) fail(ctx context.Context, id, msg string) error {
	f.logger.Warn("Fine-tuning failed", zap.String("fine_tuning_id", id), zap.String("reason", msg))

	ctx = context.WithoutCancel(ctx)
	err := f.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetFineTuning(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return nil
		}
		now := f.now()
		cur.Status = models.FineTuningError
		cur.ErrorMessage = &msg
		cur.CompletedAt = &now
		return q.UpdateFineTuning(ctx, cur)
	})
	if err != nil {
		return fmt.Errorf("record fine-tuning error: %w", err)
	}
	return nil
}

func rowStatus(s models.ProviderJobStatus) models.FineTuningStatus {
	switch s {
	case models.ProviderJobSucceeded:
		return models.FineTuningCompleted
	case models.ProviderJobFailed:
		return models.FineTuningError
	case models.ProviderJobCancelled:
		return models.FineTuningCancelled
	default:
		return models.FineTuningTraining
	}
}

func suffix(datasetID string) string {
	if len(datasetID) > 8 {
		datasetID = datasetID[:8]
	}
	return "ds-" + datasetID
}
