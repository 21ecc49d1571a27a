package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
)

const userColumns = `id, free_characters_remaining, total_characters_used, has_received_free_credits,
	created_at, updated_at`

// CreateUser inserts a quota row for a new account.
func (r *Queries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.FreeCharactersRemaining, u.TotalCharactersUsed, u.HasReceivedFreeCredits, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns the user's quota state or ErrNotFound.
func (r *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserForUpdate reads the user and locks the row for the rest of the transaction.
func (r *Queries) GetUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.get(ctx, &u, r.forUpdate(`SELECT `+userColumns+` FROM users WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserQuota writes the quota fields of u.
func (r *Queries) UpdateUserQuota(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	n, err := r.exec(ctx, `
		UPDATE users
		SET free_characters_remaining = ?, total_characters_used = ?, has_received_free_credits = ?, updated_at = ?
		WHERE id = ?`,
		u.FreeCharactersRemaining, u.TotalCharactersUsed, u.HasReceivedFreeCredits, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user quota: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertTransaction appends a ledger row. Rows are never updated.
func (r *Queries) InsertTransaction(ctx context.Context, t *models.CharacterTransaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	_, err := r.exec(ctx, `
		INSERT INTO character_transactions
			(id, user_id, amount, price_per_character_micros, total_price_micros, dataset_id, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount, t.PricePerCharacterMicros, t.TotalPriceMicros, t.DatasetID, t.Reference, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert character transaction: %w", err)
	}
	return nil
}

// ListTransactions returns a user's ledger, oldest first.
func (r *Queries) ListTransactions(ctx context.Context, userID string) ([]models.CharacterTransaction, error) {
	var out []models.CharacterTransaction
	err := r.sel(ctx, &out, `
		SELECT id, user_id, amount, price_per_character_micros, total_price_micros, dataset_id, reference, created_at
		FROM character_transactions WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list character transactions: %w", err)
	}
	return out, nil
}

// SumTransactions returns the signed sum of a user's ledger amounts.
func (r *Queries) SumTransactions(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.get(ctx, &sum,
		`SELECT COALESCE(SUM(amount), 0) FROM character_transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sum character transactions: %w", err)
	}
	return sum, nil
}

// HasDatasetConsumption reports whether consumption was already recorded for a dataset.
func (r *Queries) HasDatasetConsumption(ctx context.Context, datasetID string) (bool, error) {
	var n int
	err := r.get(ctx, &n,
		`SELECT COUNT(*) FROM character_transactions WHERE dataset_id = ? AND amount < 0`, datasetID)
	if err != nil {
		return false, fmt.Errorf("check dataset consumption: %w", err)
	}
	return n > 0, nil
}

// HasReference reports whether a ledger row with the given external reference exists.
func (r *Queries) HasReference(ctx context.Context, reference string) (bool, error) {
	var id string
	err := r.get(ctx, &id, `SELECT id FROM character_transactions WHERE reference = ?`, reference)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check transaction reference: %w", err)
	}
	return true, nil
}
