package groq

import (
	"context"

	"dataset-service/internal/apierr"
	"dataset-service/internal/models"
	"dataset-service/internal/openai"

	"go.uber.org/zap"
)

const (
	baseURL      = "https://api.groq.com/openai/v1"
	defaultModel = "llama-3.3-70b-versatile"
)

// Client wraps the Groq OpenAI-compatible API. Groq hosts inference only, so
// the fine-tuning lifecycle is unsupported.
type Client struct {
	*openai.Client
}

// NewClient creates a new Groq client.
func NewClient(cfg openai.Config, logger *zap.Logger) (*Client, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModel
	}
	inner, err := openai.NewCompatible("groq", baseURL, cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner}, nil
}

func (c *Client) StartFineTuning(ctx context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("groq", "start fine-tuning")
}

func (c *Client) GetFineTuningStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("groq", "fine-tuning status")
}

func (c *Client) CancelFineTuning(ctx context.Context, jobID string) error {
	return apierr.Unsupported("groq", "cancel fine-tuning")
}
