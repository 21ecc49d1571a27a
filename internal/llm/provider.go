package llm

import (
	"context"
	"time"

	"dataset-service/internal/apierr"
	"dataset-service/internal/models"
	"dataset-service/internal/qa"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOpenAI     ProviderType = "openai"
)

// Re-exported so callers need not import apierr.
var (
	ErrAuth        = apierr.ErrAuth
	ErrUnsupported = apierr.ErrUnsupported
	ErrRateLimited = apierr.ErrRateLimited
)

// ProviderConfig holds configuration for a single provider instance
type ProviderConfig struct {
	Type       ProviderType  `yaml:"type"`
	APIKey     string        `yaml:"api_key"`
	ModelName  string        `yaml:"model_name"`
	BaseURL    string        `yaml:"base_url"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Rate limiting per provider
	RequestsPerMinute int       `yaml:"requests_per_minute"`
	Limits            qa.Limits `yaml:"limits"`
}

// Provider is the capability set every language-model vendor exposes.
// Variants without a training API return ErrUnsupported from the lifecycle methods.
type Provider interface {
	Name() string
	ValidateCredential(ctx context.Context, apiKey string) (bool, error)
	GenerateCompletion(ctx context.Context, prompt, model, system string) (string, error)
	GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error)
	StartFineTuning(ctx context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error)
	GetFineTuningStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error)
	CancelFineTuning(ctx context.Context, jobID string) error
	Close() error
}
