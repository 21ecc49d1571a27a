package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"github.com/google/uuid"
)

// UpsertCredential stores the sealed key for (user, provider), replacing any previous one.
func (r *Queries) UpsertCredential(ctx context.Context, c *models.ProviderCredential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.exec(ctx, `
		INSERT INTO provider_credentials (id, user_id, provider, api_key_encrypted, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET api_key_encrypted = excluded.api_key_encrypted`,
		c.ID, c.UserID, c.Provider, c.APIKeyEncrypted, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential returns the user's credential for provider, or nil when none exists.
func (r *Queries) GetCredential(ctx context.Context, userID, provider string) (*models.ProviderCredential, error) {
	var c models.ProviderCredential
	err := r.get(ctx, &c, `
		SELECT id, user_id, provider, api_key_encrypted, created_at
		FROM provider_credentials WHERE user_id = ? AND provider = ?`, userID, provider)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}
