package openrouter

import (
	"context"

	"dataset-service/internal/apierr"
	"dataset-service/internal/models"
	"dataset-service/internal/openai"

	"go.uber.org/zap"
)

const (
	baseURL      = "https://openrouter.ai/api/v1"
	defaultModel = "meta-llama/llama-3.3-70b-instruct"
)

// Client represents an OpenRouter API client.
type Client struct {
	*openai.Client
}

// NewClient creates a new OpenRouter client.
func NewClient(cfg openai.Config, logger *zap.Logger) (*Client, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	headers := map[string]string{
		"HTTP-Referer": "https://github.com/dataset-service",
		"X-Title":      "Dataset Service",
	}
	inner, err := openai.NewCompatible("openrouter", baseURL, cfg, headers, logger)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner}, nil
}

// OpenRouter routes to many upstream vendors and exposes no training API.

func (c *Client) StartFineTuning(ctx context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("openrouter", "start fine-tuning")
}

func (c *Client) GetFineTuningStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("openrouter", "fine-tuning status")
}

func (c *Client) CancelFineTuning(ctx context.Context, jobID string) error {
	return apierr.Unsupported("openrouter", "cancel fine-tuning")
}
