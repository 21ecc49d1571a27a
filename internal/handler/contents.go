package handler

import (
	"context"
	"net/http"

	"dataset-service/internal/models"
	"dataset-service/internal/repository"
	"dataset-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContentHandler registers contents and starts their processing.
type ContentHandler struct {
	store    *repository.Store
	enqueuer *service.Enqueuer
	logger   *zap.Logger
}

func NewContentHandler(store *repository.Store, enqueuer *service.Enqueuer, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// CreateContentRequest registers a source. Process enqueues it right away.
type CreateContentRequest struct {
	UserID    string             `json:"user_id" binding:"required"`
	Type      models.ContentType `json:"type" binding:"required,oneof=document text video webpage"`
	SourceURI string             `json:"source_uri"`
	MimeType  string             `json:"mime_type"`
	RawText   *string            `json:"raw_text"`
	Process   bool               `json:"process"`
}

// Create handles POST /api/v1/contents
func (h *ContentHandler) Create(c *gin.Context) {
	var req CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := &models.Content{
		UserID:    req.UserID,
		Type:      req.Type,
		SourceURI: req.SourceURI,
		MimeType:  req.MimeType,
		RawText:   req.RawText,
	}
	if err := h.store.CreateContent(c.Request.Context(), content); err != nil {
		respondError(c, h.logger, "Failed to create content", err)
		return
	}
	if req.Process {
		if err := h.enqueuer.EnqueueContentProcessing(c.Request.Context(), content.ID); err != nil {
			respondError(c, h.logger, "Failed to enqueue content", err)
			return
		}
	}

	c.JSON(http.StatusCreated, content)
}

// Get handles GET /api/v1/contents/:id
func (h *ContentHandler) Get(c *gin.Context) {
	content, err := h.store.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to fetch content", err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// Process handles POST /api/v1/contents/:id/process
func (h *ContentHandler) Process(c *gin.Context) {
	h.enqueue(c, h.enqueuer.EnqueueContentProcessing)
}

// Transcribe handles POST /api/v1/contents/:id/transcribe
func (h *ContentHandler) Transcribe(c *gin.Context) {
	h.enqueue(c, h.enqueuer.EnqueueTranscription)
}

func (h *ContentHandler) enqueue(c *gin.Context, fn func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if _, err := h.store.GetContent(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to fetch content", err)
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to enqueue content", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"content_id": id, "status": "enqueued"})
}
