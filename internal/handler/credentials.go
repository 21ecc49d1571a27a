package handler

import (
	"net/http"

	"dataset-service/internal/crypto"
	"dataset-service/internal/models"
	"dataset-service/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CredentialHandler stores users' provider API keys sealed.
type CredentialHandler struct {
	store     *repository.Store
	keys      *crypto.KeyManager
	providers ProviderLookup
	logger    *zap.Logger
}

func NewCredentialHandler(store *repository.Store, keys *crypto.KeyManager, providers ProviderLookup, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		store:     store,
		keys:      keys,
		providers: providers,
		logger:    logger,
	}
}

type PutCredentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// Put handles PUT /api/v1/users/:id/credentials/:provider
// The key is validated against the provider before it is stored.
func (h *CredentialHandler) Put(c *gin.Context) {
	var req PutCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.keys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential storage is not configured"})
		return
	}

	ctx := c.Request.Context()
	userID, providerName := c.Param("id"), c.Param("provider")

	provider, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok, err := provider.ValidateCredential(ctx, req.APIKey)
	if err != nil {
		h.logger.Warn("Credential validation failed", zap.String("provider", providerName), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not validate credential"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "credential rejected by provider"})
		return
	}

	sealed, err := h.keys.SealCredential(userID, providerName, req.APIKey)
	if err != nil {
		respondError(c, h.logger, "Failed to seal credential", err)
		return
	}
	err = h.store.UpsertCredential(ctx, &models.ProviderCredential{
		UserID:          userID,
		Provider:        providerName,
		APIKeyEncrypted: sealed,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to store credential", err)
		return
	}

	h.logger.Info("Credential stored", zap.String("user_id", userID), zap.String("provider", providerName))
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "provider": providerName, "stored": true})
}
