package handler

import (
	"net/http"

	"dataset-service/internal/repository"
	"dataset-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FineTuningHandler struct {
	store  *repository.Store
	tuner  *service.FineTuner
	logger *zap.Logger
}

func NewFineTuningHandler(store *repository.Store, tuner *service.FineTuner, logger *zap.Logger) *FineTuningHandler {
	return &FineTuningHandler{
		store:  store,
		tuner:  tuner,
		logger: logger,
	}
}

// Get handles GET /api/v1/fine-tunings/:id
func (h *FineTuningHandler) Get(c *gin.Context) {
	ft, err := h.store.GetFineTuning(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to fetch fine-tuning", err)
		return
	}
	c.JSON(http.StatusOK, ft)
}

// Cancel handles POST /api/v1/fine-tunings/:id/cancel
func (h *FineTuningHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.tuner.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to cancel fine-tuning", err)
		return
	}
	ft, err := h.store.GetFineTuning(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to fetch fine-tuning", err)
		return
	}
	c.JSON(http.StatusOK, ft)
}
