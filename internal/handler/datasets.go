package handler

import (
	"fmt"
	"net/http"

	"dataset-service/internal/models"
	"dataset-service/internal/repository"
	"dataset-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DatasetHandler creates datasets, starts generation and serves results.
type DatasetHandler struct {
	store    *repository.Store
	enqueuer *service.Enqueuer
	logger   *zap.Logger
}

func NewDatasetHandler(store *repository.Store, enqueuer *service.Enqueuer, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// FineTuningRequest asks for a training run once the dataset is ready.
type FineTuningRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
}

// CreateDatasetRequest is the body of POST /api/v1/datasets.
type CreateDatasetRequest struct {
	UserID       string             `json:"user_id" binding:"required"`
	Name         string             `json:"name" binding:"required"`
	TrainingGoal string             `json:"training_goal"`
	ContentIDs   []string           `json:"content_ids" binding:"required,min=1"`
	FineTuning   *FineTuningRequest `json:"fine_tuning"`
	Generate     bool               `json:"generate"`
}

type datasetResponse struct {
	*models.Dataset
	FineTuningID string `json:"fine_tuning_id,omitempty"`
}

// Create handles POST /api/v1/datasets
func (h *DatasetHandler) Create(c *gin.Context) {
	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	resp := datasetResponse{Dataset: &models.Dataset{
		UserID:       req.UserID,
		Name:         req.Name,
		TrainingGoal: req.TrainingGoal,
	}}

	var missing []string
	err := h.store.WithTx(ctx, func(q *repository.Queries) error {
		found, err := q.ListContents(ctx, req.ContentIDs)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(found))
		for _, content := range found {
			known[content.ID] = true
		}
		for _, id := range req.ContentIDs {
			if !known[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil
		}

		if err := q.CreateDataset(ctx, resp.Dataset); err != nil {
			return err
		}
		for _, id := range req.ContentIDs {
			if err := q.LinkContent(ctx, resp.Dataset.ID, id); err != nil {
				return err
			}
		}
		if req.FineTuning != nil {
			ft := &models.FineTuning{
				UserID:    req.UserID,
				DatasetID: resp.Dataset.ID,
				Provider:  req.FineTuning.Provider,
				Model:     req.FineTuning.Model,
			}
			if err := q.CreateFineTuning(ctx, ft); err != nil {
				return err
			}
			resp.FineTuningID = ft.ID
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create dataset", err)
		return
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown content ids", "content_ids": missing})
		return
	}

	if req.Generate {
		if err := h.enqueuer.EnqueueDatasetGeneration(ctx, resp.Dataset.ID); err != nil {
			respondError(c, h.logger, "Failed to enqueue dataset", err)
			return
		}
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /api/v1/datasets/:id
func (h *DatasetHandler) Get(c *gin.Context) {
	ds, err := h.store.GetDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to fetch dataset", err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// Generate handles POST /api/v1/datasets/:id/generate
func (h *DatasetHandler) Generate(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.GetDataset(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to fetch dataset", err)
		return
	}
	if err := h.enqueuer.EnqueueDatasetGeneration(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to enqueue dataset", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"dataset_id": id, "status": "enqueued"})
}

// Export handles GET /api/v1/datasets/:id/export and streams chat-format JSONL.
func (h *DatasetHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	ds, err := h.store.GetDataset(ctx, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to fetch dataset", err)
		return
	}
	if ds.Status != models.DatasetReady {
		c.JSON(http.StatusConflict, gin.H{"error": "dataset is not ready", "status": ds.Status})
		return
	}

	pairs, err := h.store.ListPairs(ctx, ds.ID)
	if err != nil {
		respondError(c, h.logger, "Failed to fetch pairs", err)
		return
	}
	body, err := service.BuildTrainingJSONL(ds.TrainingGoal, pairs)
	if err != nil {
		respondError(c, h.logger, "Failed to export dataset", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="dataset-%s.jsonl"`, ds.ID))
	c.Data(http.StatusOK, "application/x-ndjson", body)
}
