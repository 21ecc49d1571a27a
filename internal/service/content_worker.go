package service

import (
	"context"
	"errors"
	"fmt"

	"dataset-service/internal/blob"
	"dataset-service/internal/chunker"
	"dataset-service/internal/extract"
	"dataset-service/internal/models"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"
	"dataset-service/internal/transcribe"

	"go.uber.org/zap"
)

// ContentWorker extracts text from a content source and records its character count.
type ContentWorker struct {
	store       *repository.Store
	queue       queue.Queue
	blobs       blob.Store
	transcriber transcribe.Transcriber
	logger      *zap.Logger
}

// NewContentWorker creates the worker. transcriber may be nil, in which case
// video contents fail with a clear message.
func NewContentWorker(
	store *repository.Store,
	q queue.Queue,
	blobs blob.Store,
	transcriber transcribe.Transcriber,
	logger *zap.Logger,
) *ContentWorker {
	return &ContentWorker{
		store:       store,
		queue:       q,
		blobs:       blobs,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Process runs the process_content job.
func (w *ContentWorker) Process(ctx context.Context, args ContentArgs) error {
	log := w.logger.With(zap.String("content_id", args.ContentID))

	c, err := w.store.GetContent(ctx, args.ContentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Content not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if c.Status.Terminal() || c.Status == models.ContentAwaitingTranscription {
		log.Info("Content already handled", zap.String("status", string(c.Status)))
		return nil
	}

	if err := w.store.SetContentStatus(ctx, c.ID, models.ContentProcessing, nil); err != nil {
		return err
	}

	var text string
	switch c.Type {
	case models.ContentText:
		if c.RawText == nil {
			return w.fail(ctx, c.ID, "no text provided")
		}
		text = extract.Text(*c.RawText)
	case models.ContentWebpage:
		if c.RawText == nil {
			return w.fail(ctx, c.ID, "no page content provided")
		}
		text, err = extract.HTMLString(*c.RawText)
		if err != nil {
			return w.fail(ctx, c.ID, err.Error())
		}
	case models.ContentDocument:
		text, err = w.document(ctx, c)
		if err != nil {
			return w.fail(ctx, c.ID, err.Error())
		}
	case models.ContentVideo:
		return w.awaitTranscription(ctx, c)
	default:
		return w.fail(ctx, c.ID, fmt.Sprintf("unsupported content type %q", c.Type))
	}

	return w.complete(ctx, c.ID, text)
}

// Transcribe runs the transcribe_content job.
func (w *ContentWorker) Transcribe(ctx context.Context, args ContentArgs) error {
	log := w.logger.With(zap.String("content_id", args.ContentID))

	c, err := w.store.GetContent(ctx, args.ContentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Content not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if c.Status.Terminal() {
		log.Info("Content already handled", zap.String("status", string(c.Status)))
		return nil
	}
	if w.transcriber == nil {
		return w.fail(ctx, c.ID, "transcription is not configured")
	}
	if c.SourceURI == "" {
		return w.fail(ctx, c.ID, "no media source")
	}

	text, err := w.transcriber.Transcribe(ctx, c.SourceURI, c.MimeType)
	if err != nil {
		log.Error("Transcription failed", zap.Error(err))
		return w.fail(ctx, c.ID, fmt.Sprintf("transcription failed: %v", err))
	}
	return w.complete(ctx, c.ID, extract.Text(text))
}

func (w *ContentWorker) document(ctx context.Context, c *models.Content) (string, error) {
	if c.SourceURI == "" {
		return "", fmt.Errorf("no document source")
	}
	if w.blobs == nil {
		return "", fmt.Errorf("document storage is not configured")
	}
	obj, err := w.blobs.Get(ctx, c.SourceURI)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	contentType := c.MimeType
	if contentType == "" {
		contentType = obj.ContentType
	}
	return extract.Document(obj.Data, contentType, obj.Name)
}

func (w *ContentWorker) awaitTranscription(ctx context.Context, c *models.Content) error {
	if err := w.store.SetContentStatus(ctx, c.ID, models.ContentAwaitingTranscription, nil); err != nil {
		return err
	}
	err := w.queue.Submit(ctx, queue.Job{
		Name:  JobTranscribeContent,
		Queue: QueueContents,
		Args:  ContentArgs{ContentID: c.ID},
	})
	if err != nil {
		return w.fail(ctx, c.ID, fmt.Sprintf("enqueue transcription: %v", err))
	}
	w.logger.Info("Content awaiting transcription", zap.String("content_id", c.ID))
	return nil
}

func (w *ContentWorker) complete(ctx context.Context, id, text string) error {
	if text == "" {
		return w.fail(ctx, id, "no text extracted")
	}
	count := chunker.Count(text)
	if err := w.store.CompleteContent(ctx, id, text, count); err != nil {
		return err
	}
	w.logger.Info("Content processed", zap.String("content_id", id), zap.Int64("character_count", count))
	return nil
}

// fail records a terminal error in a fresh transaction.
func (w *ContentWorker) fail(ctx context.Context, id, msg string) error {
	w.logger.Warn("Content processing failed", zap.String("content_id", id), zap.String("reason", msg))
	ctx = context.WithoutCancel(ctx)
	err := w.store.WithTx(ctx, func(q *repository.Queries) error {
		return q.SetContentStatus(ctx, id, models.ContentError, &msg)
	})
	if err != nil {
		return fmt.Errorf("record content error: %w", err)
	}
	return nil
}
