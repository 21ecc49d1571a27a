package repository

import (
	"context"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const contentColumns = `id, user_id, type, status, source_uri, mime_type, raw_text, extracted_text,
	character_count, error_message, created_at, updated_at`

// CreateContent inserts a content row. ID and timestamps are filled when empty.
func (r *Queries) CreateContent(ctx context.Context, c *models.Content) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ContentPending
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := r.exec(ctx, `
		INSERT INTO contents (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Type, c.Status, c.SourceURI, c.MimeType, c.RawText, c.ExtractedText,
		c.CharacterCount, c.ErrorMessage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// GetContent returns a content row by id or ErrNotFound.
func (r *Queries) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var c models.Content
	if err := r.get(ctx, &c, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContents returns the rows for ids in unspecified order.
func (r *Queries) ListContents(ctx context.Context, ids []string) ([]models.Content, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+contentColumns+` FROM contents WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var out []models.Content
	if err := r.sel(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	return out, nil
}

// ListContentsByStatus returns up to limit contents in status, oldest first.
func (r *Queries) ListContentsByStatus(ctx context.Context, status models.ContentStatus, limit int) ([]models.Content, error) {
	var out []models.Content
	err := r.sel(ctx, &out,
		`SELECT `+contentColumns+` FROM contents WHERE status = ? ORDER BY created_at LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list contents by status: %w", err)
	}
	return out, nil
}

// SetContentStatus moves a content row to status and records errMsg (nil clears it).
func (r *Queries) SetContentStatus(ctx context.Context, id string, status models.ContentStatus, errMsg *string) error {
	n, err := r.exec(ctx,
		`UPDATE contents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteContent stores the extracted text and marks the content completed.
func (r *Queries) CompleteContent(ctx context.Context, id, text string, characterCount int64) error {
	n, err := r.exec(ctx, `
		UPDATE contents
		SET status = ?, extracted_text = ?, character_count = ?, error_message = NULL, updated_at = ?
		WHERE id = ?`,
		models.ContentCompleted, text, characterCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete content: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
