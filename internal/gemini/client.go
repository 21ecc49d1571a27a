package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dataset-service/internal/apierr"
	"dataset-service/internal/models"
	"dataset-service/internal/qa"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.0-flash"

// Client wraps the Gemini API client
type Client struct {
	client     *genai.Client
	logger     *zap.Logger
	modelName  string
	maxRetries int
	retryDelay time.Duration
	limits     qa.Limits
}

// Config for Gemini client
type Config struct {
	APIKey     string
	ModelName  string
	MaxRetries int
	RetryDelay time.Duration
	Limits     qa.Limits
}

// NewClient creates a new Gemini client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("Gemini client initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &Client{
		client:     client,
		logger:     logger,
		modelName:  cfg.ModelName,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limits:     cfg.Limits.Normalize(),
	}, nil
}

// Name returns the provider variant name.
func (c *Client) Name() string {
	return "gemini"
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

// ValidateCredential lists models with the given key. An empty key checks the
// client's own key.
func (c *Client) ValidateCredential(ctx context.Context, apiKey string) (bool, error) {
	client := c.client
	if apiKey != "" {
		tmp, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return false, fmt.Errorf("failed to create gemini client: %w", err)
		}
		defer tmp.Close()
		client = tmp
	}

	_, err := client.ListModels(ctx).Next()
	if err == nil || errors.Is(err, iterator.Done) {
		return true, nil
	}
	if isAuthError(err) {
		return false, nil
	}
	return false, err
}

// GenerateCompletion runs a single-turn generation with an optional system instruction.
func (c *Client) GenerateCompletion(ctx context.Context, prompt, model, system string) (string, error) {
	if model == "" {
		model = c.modelName
	}

	gm := c.client.GenerativeModel(model)
	if system != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	gm.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.4),
		TopP:            genai.Ptr[float32](0.9),
		MaxOutputTokens: genai.Ptr[int32](8192),
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying Gemini request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if isAuthError(err) {
				return "", fmt.Errorf("gemini API error: %v: %w", err, apierr.ErrAuth)
			}
			lastErr = fmt.Errorf("gemini API error: %w", err)
			c.logger.Error("Gemini API error", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		text := responseText(resp)
		if text == "" {
			lastErr = fmt.Errorf("empty response from gemini")
			c.logger.Error("Empty response from Gemini", zap.Int("attempt", attempt+1))
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// GenerateQAPairs prompts for QA pairs over one chunk and parses the reply.
func (c *Client) GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error) {
	return qa.FromCompletion(ctx, c.GenerateCompletion, chunk, model, trainingGoal, c.limits)
}

// Tuned models are not exposed through this API key flow.

func (c *Client) StartFineTuning(ctx context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("gemini", "start fine-tuning")
}

func (c *Client) GetFineTuningStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error) {
	return nil, apierr.Unsupported("gemini", "fine-tuning status")
}

func (c *Client) CancelFineTuning(ctx context.Context, jobID string) error {
	return apierr.Unsupported("gemini", "cancel fine-tuning")
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func isAuthError(err error) bool {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		switch ae.HTTPCode() {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return strings.Contains(strings.ToUpper(ae.Error()), "API_KEY") || ae.HTTPCode() != http.StatusBadRequest
		}
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusUnauthorized || ge.Code == http.StatusForbidden
	}
	return false
}
