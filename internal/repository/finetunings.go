package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
)

const fineTuningColumns = `id, user_id, dataset_id, status, provider, model, provider_job_id,
	fine_tuned_model, progress, error_message, started_at, completed_at, created_at, updated_at`

// CreateFineTuning inserts a fine-tuning row, pending unless a status is set.
func (r *Queries) CreateFineTuning(ctx context.Context, ft *models.FineTuning) error {
	if ft.ID == "" {
		ft.ID = uuid.NewString()
	}
	if ft.Status == "" {
		ft.Status = models.FineTuningPending
	}
	now := time.Now().UTC()
	ft.CreatedAt, ft.UpdatedAt = now, now

	_, err := r.exec(ctx, `
		INSERT INTO fine_tunings (`+fineTuningColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ft.ID, ft.UserID, ft.DatasetID, ft.Status, ft.Provider, ft.Model, ft.ProviderJobID,
		ft.FineTunedModel, ft.Progress, ft.ErrorMessage, ft.StartedAt, ft.CompletedAt, ft.CreatedAt, ft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert fine-tuning: %w", err)
	}
	return nil
}

// GetFineTuning returns a fine-tuning row by id or ErrNotFound.
func (r *Queries) GetFineTuning(ctx context.Context, id string) (*models.FineTuning, error) {
	var ft models.FineTuning
	if err := r.get(ctx, &ft, `SELECT `+fineTuningColumns+` FROM fine_tunings WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &ft, nil
}

// GetPendingFineTuning returns the oldest pending fine-tuning for a dataset,
// or nil when there is none.
func (r *Queries) GetPendingFineTuning(ctx context.Context, datasetID string) (*models.FineTuning, error) {
	var ft models.FineTuning
	err := r.get(ctx, &ft, `
		SELECT `+fineTuningColumns+` FROM fine_tunings
		WHERE dataset_id = ? AND status = ?
		ORDER BY created_at LIMIT 1`, datasetID, models.FineTuningPending)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending fine-tuning: %w", err)
	}
	return &ft, nil
}

// UpdateFineTuning writes the mutable fields of ft back to its row.
func (r *Queries) UpdateFineTuning(ctx context.Context, ft *models.FineTuning) error {
	ft.UpdatedAt = time.Now().UTC()
	n, err := r.exec(ctx, `
		UPDATE fine_tunings
		SET status = ?, provider_job_id = ?, fine_tuned_model = ?, progress = ?, error_message = ?,
		    started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		ft.Status, ft.ProviderJobID, ft.FineTunedModel, ft.Progress, ft.ErrorMessage,
		ft.StartedAt, ft.CompletedAt, ft.UpdatedAt, ft.ID)
	if err != nil {
		return fmt.Errorf("update fine-tuning: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionFineTuning moves a row from one status to another, reporting
// whether the row was still in from.
func (r *Queries) TransitionFineTuning(ctx context.Context, id string, from, to models.FineTuningStatus, errMsg *string) (bool, error) {
	n, err := r.exec(ctx, `
		UPDATE fine_tunings SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, errMsg, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("transition fine-tuning: %w", err)
	}
	return n == 1, nil
}
