// Package handler exposes the pipeline over a small internal HTTP API.
package handler

import (
	"errors"
	"net/http"

	"dataset-service/internal/crypto"
	"dataset-service/internal/ledger"
	"dataset-service/internal/llm"
	"dataset-service/internal/middleware"
	"dataset-service/internal/payment"
	"dataset-service/internal/repository"
	"dataset-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProviderLookup returns a configured provider by name.
type ProviderLookup interface {
	Get(name string) (llm.Provider, error)
}

// Deps is everything the handlers need.
type Deps struct {
	Store      *repository.Store
	Enqueuer   *service.Enqueuer
	FineTuner  *service.FineTuner
	Ledger     *ledger.Service
	Billing    *payment.Billing
	Keys       *crypto.KeyManager
	Providers  ProviderLookup
	AuthSecret []byte
	Logger     *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))

	router.GET("/health", func(c *gin.Context) {
		if err := d.Store.DB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	contents := NewContentHandler(d.Store, d.Enqueuer, d.Logger)
	datasets := NewDatasetHandler(d.Store, d.Enqueuer, d.Logger)
	billing := NewBillingHandler(d.Ledger, d.Billing, d.Logger)
	fineTunings := NewFineTuningHandler(d.Store, d.FineTuner, d.Logger)
	credentials := NewCredentialHandler(d.Store, d.Keys, d.Providers, d.Logger)

	api := router.Group("/api/v1")
	api.Use(middleware.ServiceAuth(d.AuthSecret, d.Logger))
	{
		api.POST("/contents", contents.Create)
		api.GET("/contents/:id", contents.Get)
		api.POST("/contents/:id/process", contents.Process)
		api.POST("/contents/:id/transcribe", contents.Transcribe)

		api.POST("/datasets", datasets.Create)
		api.GET("/datasets/:id", datasets.Get)
		api.POST("/datasets/:id/generate", datasets.Generate)
		api.GET("/datasets/:id/export", datasets.Export)

		api.POST("/users", billing.OpenAccount)
		api.GET("/users/:id/balance", billing.Balance)
		api.GET("/users/:id/quote", billing.Quote)
		api.POST("/users/:id/checkout", billing.Checkout)
		api.PUT("/users/:id/credentials/:provider", credentials.Put)

		api.POST("/billing/settlements", billing.Settle)

		api.GET("/fine-tunings/:id", fineTunings.Get)
		api.POST("/fine-tunings/:id/cancel", fineTunings.Cancel)
	}

	return router
}

// respondError maps domain errors onto status codes and logs the rest.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNegativeAmount), errors.Is(err, payment.ErrInvalidSettlement):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
