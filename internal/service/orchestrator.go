package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dataset-service/internal/chunker"
	"dataset-service/internal/models"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"

	"go.uber.org/zap"
)

// sourceSeparator joins the text of consecutive contents in the aggregate.
const sourceSeparator = "\n\n---\n\n"

// PairSynthesizer turns one chunk into QA pairs.
type PairSynthesizer interface {
	Synthesize(ctx context.Context, chunk, trainingGoal string) ([]models.QAPair, error)
}

// Trigger activates downstream work once a dataset is ready.
type Trigger interface {
	Trigger(ctx context.Context, dataset *models.Dataset) error
}

// Orchestrator runs generate_dataset: it waits for the dataset's contents,
// synthesizes pairs chunk by chunk and persists the result once.
type Orchestrator struct {
	store    *repository.Store
	queue    queue.Queue
	synth    PairSynthesizer
	trigger  Trigger
	cfg      GenerationConfig
	retry    RetryConfig
	workerID string
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. workerID identifies this process in dataset leases.
func NewOrchestrator(
	store *repository.Store,
	q queue.Queue,
	synth PairSynthesizer,
	trigger Trigger,
	cfg GenerationConfig,
	retry RetryConfig,
	workerID string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		queue:    q,
		synth:    synth,
		trigger:  trigger,
		cfg:      cfg.withDefaults(),
		retry:    retry.withDefaults(),
		workerID: workerID,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one attempt for a dataset. A nil return means the attempt
// reached an outcome: a terminal write, a scheduled retry or a skip.
func (o *Orchestrator) Run(ctx context.Context, args DatasetArgs) error {
	log := o.logger.With(zap.String("dataset_id", args.DatasetID), zap.Int("attempt", args.Attempt))

	ds, err := o.store.GetDataset(ctx, args.DatasetID)
	if errors.Is(err, repository.ErrNotFound) {
		return o.notReady(ctx, log, args, o.retry.MissingDatasetAttempts, o.retry.MissingDatasetDelay, false,
			fmt.Errorf("dataset %s not found: %w", args.DatasetID, ErrNotYetReady))
	}
	if err != nil {
		return o.retryLater(ctx, log, args, true, fmt.Errorf("load dataset: %w", err))
	}

	switch ds.Status {
	case models.DatasetReady:
		// a fine-tuning row may have been added after generation finished
		log.Info("Dataset already ready")
		return o.activate(ctx, log, args, ds)
	case models.DatasetError:
		log.Info("Dataset already failed, skipping")
		return nil
	}

	ids, err := o.store.ListLinkedContentIDs(ctx, ds.ID)
	if err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}
	if len(ids) == 0 {
		return o.fail(ctx, ds.ID, "no contents linked", ErrDataIntegrity)
	}

	contents, err := o.store.ListContents(ctx, ids)
	if err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}
	if pending := countPending(contents); pending > 0 {
		return o.notReady(ctx, log, args, o.retry.PendingContentsAttempts, o.retry.PendingContentsDelay, true,
			fmt.Errorf("%d of %d contents still processing: %w", pending, len(contents), ErrNotYetReady))
	}

	now := o.now()
	claimed, err := o.store.ClaimDataset(ctx, ds.ID, o.workerID, now, now.Add(o.cfg.LeaseDuration))
	if err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}
	if !claimed {
		log.Info("Dataset leased by another worker, resubmitting")
		return o.resubmit(ctx, args, o.retry.LeaseBusyDelay)
	}

	if err := o.store.MarkDatasetProcessing(ctx, ds.ID); err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}

	text := aggregate(contents)
	if text == "" {
		return o.fail(ctx, ds.ID, "no extractable text", ErrDataIntegrity)
	}

	chunks := chunker.Split(text, o.cfg.ChunkSize)
	log.Info("Generating dataset",
		zap.Int("contents", len(contents)),
		zap.Int64("characters", chunker.Count(text)),
		zap.Int("chunks", len(chunks)))

	pairs, err := o.synthesize(ctx, log, ds, chunks)
	if errors.Is(err, errLeaseLost) {
		log.Warn("Dataset lease taken over, abandoning attempt")
		return nil
	}
	if err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}
	if len(pairs) == 0 {
		return o.fail(ctx, ds.ID, "no pairs generated", ErrDataIntegrity)
	}

	persisted, err := o.persist(ctx, ds, pairs)
	if err != nil {
		return o.retryLater(ctx, log, args, true, err)
	}
	if !persisted {
		log.Info("Dataset finished elsewhere, discarding generated pairs")
		return nil
	}

	ds, err = o.store.GetDataset(ctx, ds.ID)
	if err != nil {
		return o.retryLater(ctx, log, args, false, fmt.Errorf("reload dataset: %w", err))
	}
	log.Info("Dataset ready",
		zap.Int("pairs_count", ds.PairsCount),
		zap.Int64("character_count", ds.CharacterCount))

	return o.activate(ctx, log, args, ds)
}

// activate runs the trigger for a ready dataset. A failed trigger resubmits the
// job, whose next run only repeats the trigger.
func (o *Orchestrator) activate(ctx context.Context, log *zap.Logger, args DatasetArgs, ds *models.Dataset) error {
	if err := o.trigger.Trigger(ctx, ds); err != nil {
		return o.retryLater(ctx, log, args, false, fmt.Errorf("trigger: %w", err))
	}
	return nil
}

// synthesize runs chunks strictly in order. A provider error on one chunk
// counts as zero pairs for that chunk.
func (o *Orchestrator) synthesize(ctx context.Context, log *zap.Logger, ds *models.Dataset, chunks []string) ([]models.DatasetPair, error) {
	var out []models.DatasetPair
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, o.cfg.InterChunkDelay); err != nil {
				return nil, err
			}
			if err := o.renewLease(ctx, ds.ID); err != nil {
				return nil, err
			}
		}

		pairs, err := o.synth.Synthesize(ctx, chunk, ds.TrainingGoal)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Chunk synthesis failed, continuing", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		for _, p := range pairs {
			out = append(out, models.DatasetPair{
				DatasetID:        ds.ID,
				Question:         p.Question,
				Answer:           p.Answer,
				SourceChunkIndex: i,
			})
		}
		log.Debug("Chunk synthesized", zap.Int("chunk", i), zap.Int("pairs", len(pairs)))
	}
	return out, nil
}

var errLeaseLost = errors.New("dataset lease lost")

func (o *Orchestrator) renewLease(ctx context.Context, datasetID string) error {
	now := o.now()
	ok, err := o.store.ClaimDataset(ctx, datasetID, o.workerID, now, now.Add(o.cfg.LeaseDuration))
	if err != nil {
		return err
	}
	if !ok {
		return errLeaseLost
	}
	return nil
}

// persist writes pairs and the ready state in one transaction. It reports
// false when the dataset was already finished or the lease moved on.
func (o *Orchestrator) persist(ctx context.Context, ds *models.Dataset, pairs []models.DatasetPair) (bool, error) {
	persisted := false
	err := o.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetDatasetForUpdate(ctx, ds.ID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return nil
		}
		if cur.ClaimedBy != nil && *cur.ClaimedBy != o.workerID {
			return nil
		}

		if err := q.InsertPairs(ctx, pairs); err != nil {
			return err
		}
		if err := q.CompleteDataset(ctx, ds.ID, len(pairs), CharacterCount(cur.TrainingGoal, pairs), o.now()); err != nil {
			return err
		}
		persisted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("persist dataset: %w", err)
	}
	return persisted, nil
}

// CharacterCount is the billed size of a dataset: every question and answer
// plus the training goal once per pair, since it is repeated in each example.
func CharacterCount(trainingGoal string, pairs []models.DatasetPair) int64 {
	var n int64
	for _, p := range pairs {
		n += chunker.Count(p.Question) + chunker.Count(p.Answer)
	}
	return n + chunker.Count(trainingGoal)*int64(len(pairs))
}

func countPending(contents []models.Content) int {
	n := 0
	for _, c := range contents {
		if !c.Status.Terminal() {
			n++
		}
	}
	return n
}

// aggregate joins the stored text of completed contents in id order. Failed
// and empty contents are skipped.
func aggregate(contents []models.Content) string {
	sorted := make([]models.Content, len(contents))
	copy(sorted, contents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		if c.Status != models.ContentCompleted || c.ExtractedText == nil {
			continue
		}
		if *c.ExtractedText != "" {
			parts = append(parts, *c.ExtractedText)
		}
	}
	return strings.Join(parts, sourceSeparator)
}

// notReady resubmits with attempt+1 or, once the budget is spent, gives up.
// record is false when there is no dataset row to write the outcome to.
func (o *Orchestrator) notReady(ctx context.Context, log *zap.Logger, args DatasetArgs, budget int, delay time.Duration, record bool, cause error) error {
	if args.Attempt+1 >= budget {
		msg := fmt.Sprintf("%v after %d attempts", cause, args.Attempt+1)
		if !record {
			log.Error("Giving up on dataset", zap.String("reason", msg))
			return fmt.Errorf("%s: %w", msg, ErrExhaustedRetries)
		}
		return o.fail(ctx, args.DatasetID, msg, ErrExhaustedRetries)
	}

	log.Info("Dataset not ready, retrying", zap.String("reason", cause.Error()), zap.Duration("delay", delay))
	next := args
	next.Attempt++
	return o.resubmit(ctx, next, delay)
}

// retryLater resubmits after an infrastructure error, releasing the lease
// first. Failures are counted apart from not-ready attempts. Once the budget
// is spent the dataset is failed, or, when record is false, the job is.
func (o *Orchestrator) retryLater(ctx context.Context, log *zap.Logger, args DatasetArgs, record bool, cause error) error {
	if ctx.Err() != nil {
		return o.interrupted(ctx, log, args)
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.store.ReleaseDataset(ctx, args.DatasetID, o.workerID); err != nil {
		log.Warn("Failed to release dataset lease", zap.Error(err))
	}

	if args.Failures+1 >= o.retry.TransientAttempts {
		msg := fmt.Sprintf("%v after %d failed attempts", cause, args.Failures+1)
		if !record {
			log.Error("Giving up on dataset", zap.String("reason", msg))
			return fmt.Errorf("%s: %w", msg, ErrExhaustedRetries)
		}
		return o.fail(ctx, args.DatasetID, msg, ErrExhaustedRetries)
	}

	log.Warn("Dataset attempt failed, retrying",
		zap.Error(cause),
		zap.Int("failures", args.Failures+1),
		zap.Duration("delay", o.retry.TransientDelay))
	next := args
	next.Failures++
	return o.resubmit(ctx, next, o.retry.TransientDelay)
}

// interrupted hands the dataset back to the queue when shutdown cancels an attempt.
func (o *Orchestrator) interrupted(ctx context.Context, log *zap.Logger, args DatasetArgs) error {
	ctx = context.WithoutCancel(ctx)
	log.Warn("Generation interrupted, resubmitting")
	if err := o.store.ReleaseDataset(ctx, args.DatasetID, o.workerID); err != nil {
		log.Error("Failed to release dataset lease", zap.Error(err))
	}
	return o.resubmit(ctx, args, o.retry.LeaseBusyDelay)
}

func (o *Orchestrator) resubmit(ctx context.Context, args DatasetArgs, delay time.Duration) error {
	err := o.queue.Submit(ctx, queue.Job{
		Name:  JobGenerateDataset,
		Queue: QueueDatasets,
		Args:  args,
		Delay: delay,
	})
	if err != nil {
		return fmt.Errorf("resubmit dataset %s: %w", args.DatasetID, err)
	}
	return nil
}

// fail writes a terminal error in a fresh transaction. A dataset that already
// reached a terminal state keeps it.
func (o *Orchestrator) fail(ctx context.Context, datasetID, msg string, kind error) error {
	o.logger.Warn("Dataset failed",
		zap.String("dataset_id", datasetID),
		zap.String("reason", msg),
		zap.NamedError("kind", kind))

	ctx = context.WithoutCancel(ctx)
	err := o.store.WithTx(ctx, func(q *repository.Queries) error {
		cur, err := q.GetDatasetForUpdate(ctx, datasetID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return nil
		}
		return q.FailDataset(ctx, datasetID, msg)
	})
	if err != nil {
		return fmt.Errorf("record dataset error: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
