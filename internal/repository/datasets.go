package repository

import (
	"context"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const datasetColumns = `id, user_id, name, training_goal, status, pairs_count, character_count,
	error_message, claimed_by, claimed_until, completed_at, created_at, updated_at`

// CreateDataset inserts a dataset row in pending state.
func (r *Queries) CreateDataset(ctx context.Context, d *models.Dataset) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DatasetPending
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	_, err := r.exec(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Name, d.TrainingGoal, d.Status, d.PairsCount, d.CharacterCount,
		d.ErrorMessage, d.ClaimedBy, d.ClaimedUntil, d.CompletedAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

// GetDataset returns a dataset row by id or ErrNotFound.
func (r *Queries) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var d models.Dataset
	if err := r.get(ctx, &d, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDatasetForUpdate reads the dataset and locks its row for the rest of the transaction.
func (r *Queries) GetDatasetForUpdate(ctx context.Context, id string) (*models.Dataset, error) {
	var d models.Dataset
	if err := r.get(ctx, &d, r.forUpdate(`SELECT `+datasetColumns+` FROM datasets WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &d, nil
}

// LinkContent associates a content with a dataset. Re-linking is a no-op.
func (r *Queries) LinkContent(ctx context.Context, datasetID, contentID string) error {
	_, err := r.exec(ctx, `
		INSERT INTO content_datasets (content_id, dataset_id) VALUES (?, ?)
		ON CONFLICT (content_id, dataset_id) DO NOTHING`, contentID, datasetID)
	if err != nil {
		return fmt.Errorf("link content: %w", err)
	}
	return nil
}

// ListLinkedContentIDs returns the ids of every content linked to the dataset.
func (r *Queries) ListLinkedContentIDs(ctx context.Context, datasetID string) ([]string, error) {
	var ids []string
	err := r.sel(ctx, &ids,
		`SELECT content_id FROM content_datasets WHERE dataset_id = ? ORDER BY content_id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list linked contents: %w", err)
	}
	return ids, nil
}

// MarkDatasetProcessing sets status=processing unless it already is.
func (r *Queries) MarkDatasetProcessing(ctx context.Context, id string) error {
	_, err := r.exec(ctx,
		`UPDATE datasets SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		models.DatasetProcessing, time.Now().UTC(), id, models.DatasetProcessing)
	if err != nil {
		return fmt.Errorf("mark dataset processing: %w", err)
	}
	return nil
}

// ClaimDataset takes the generation lease for holder until the given time.
// It succeeds when the lease is free, expired, or already held by holder.
func (r *Queries) ClaimDataset(ctx context.Context, id, holder string, now, until time.Time) (bool, error) {
	n, err := r.exec(ctx, `
		UPDATE datasets SET claimed_by = ?, claimed_until = ?, updated_at = ?
		WHERE id = ? AND (claimed_by IS NULL OR claimed_by = ? OR claimed_until IS NULL OR claimed_until < ?)`,
		holder, until, now, id, holder, now)
	if err != nil {
		return false, fmt.Errorf("claim dataset: %w", err)
	}
	return n == 1, nil
}

// ReleaseDataset drops holder's lease. A lease held by someone else is left alone.
func (r *Queries) ReleaseDataset(ctx context.Context, id, holder string) error {
	_, err := r.exec(ctx, `
		UPDATE datasets SET claimed_by = NULL, claimed_until = NULL, updated_at = ?
		WHERE id = ? AND claimed_by = ?`, time.Now().UTC(), id, holder)
	if err != nil {
		return fmt.Errorf("release dataset: %w", err)
	}
	return nil
}

// CompleteDataset records the counts, marks the dataset ready and releases any lease.
func (r *Queries) CompleteDataset(ctx context.Context, id string, pairsCount int, characterCount int64, completedAt time.Time) error {
	n, err := r.exec(ctx, `
		UPDATE datasets
		SET status = ?, pairs_count = ?, character_count = ?, completed_at = ?, error_message = NULL,
		    claimed_by = NULL, claimed_until = NULL, updated_at = ?
		WHERE id = ?`,
		models.DatasetReady, pairsCount, characterCount, completedAt, completedAt, id)
	if err != nil {
		return fmt.Errorf("complete dataset: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailDataset marks the dataset as error with msg and releases any lease.
func (r *Queries) FailDataset(ctx context.Context, id, msg string) error {
	n, err := r.exec(ctx, `
		UPDATE datasets
		SET status = ?, error_message = ?, claimed_by = NULL, claimed_until = NULL, updated_at = ?
		WHERE id = ?`,
		models.DatasetError, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("fail dataset: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPairs writes pairs for a dataset in one batch.
func (r *Queries) InsertPairs(ctx context.Context, pairs []models.DatasetPair) error {
	if len(pairs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range pairs {
		if pairs[i].ID == "" {
			pairs[i].ID = uuid.NewString()
		}
		pairs[i].CreatedAt = now
	}

	const batchSize = 200
	for start := 0; start < len(pairs); start += batchSize {
		end := min(start+batchSize, len(pairs))
		_, err := sqlx.NamedExecContext(ctx, r.q, `
			INSERT INTO dataset_pairs (id, dataset_id, question, answer, source_chunk_index, created_at)
			VALUES (:id, :dataset_id, :question, :answer, :source_chunk_index, :created_at)`, pairs[start:end])
		if err != nil {
			return fmt.Errorf("insert pairs: %w", err)
		}
	}
	return nil
}

// ListPairs returns a dataset's pairs in chunk order.
func (r *Queries) ListPairs(ctx context.Context, datasetID string) ([]models.DatasetPair, error) {
	var out []models.DatasetPair
	err := r.sel(ctx, &out, `
		SELECT id, dataset_id, question, answer, source_chunk_index, created_at
		FROM dataset_pairs WHERE dataset_id = ?
		ORDER BY source_chunk_index, created_at, id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	return out, nil
}

// CountPairs returns the number of persisted pairs for a dataset.
func (r *Queries) CountPairs(ctx context.Context, datasetID string) (int, error) {
	var n int
	if err := r.get(ctx, &n, `SELECT COUNT(*) FROM dataset_pairs WHERE dataset_id = ?`, datasetID); err != nil {
		return 0, fmt.Errorf("count pairs: %w", err)
	}
	return n, nil
}
