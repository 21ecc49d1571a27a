package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"dataset-service/internal/apierr"
	"dataset-service/internal/models"
	"dataset-service/internal/qa"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public OpenAI endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini-2024-07-18"
)

// Config for an OpenAI-compatible client.
type Config struct {
	APIKey     string
	ModelName  string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
	Limits     qa.Limits
}

// Client talks to an OpenAI-compatible chat completions API. The fine-tuning
// lifecycle is only meaningful against OpenAI itself.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	modelName  string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
	limits     qa.Limits
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type fileResponse struct {
	ID string `json:"id"`
}

type fineTuneRequest struct {
	TrainingFile string `json:"training_file"`
	Model        string `json:"model"`
	Suffix       string `json:"suffix,omitempty"`
}

type fineTuneResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	FineTunedModel *string `json:"fine_tuned_model"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a client for api.openai.com.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModel
	}
	if cfg.Limits.Max == 0 {
		cfg.Limits.Max = 20
	}
	return NewCompatible("openai", DefaultBaseURL, cfg, nil, logger)
}

// NewCompatible creates a client for any endpoint that speaks the OpenAI chat
// completions protocol. Extra headers are sent on every request.
func NewCompatible(name, defaultBaseURL string, cfg Config, headers map[string]string, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("provider", name),
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &Client{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		modelName:  cfg.ModelName,
		headers:    headers,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limits:     cfg.Limits.Normalize(),
	}, nil
}

// Name returns the provider variant name.
func (c *Client) Name() string {
	return c.name
}

// ValidateCredential checks a key by listing models with it.
// An empty key validates the client's own key.
func (c *Client) ValidateCredential(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		apiKey = c.apiKey
	}
	err := c.doJSON(ctx, apiKey, http.MethodGet, "/models", nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apierr.ErrAuth) {
		return false, nil
	}
	return false, err
}

// GenerateCompletion sends a single system+user exchange and returns the reply text.
func (c *Client) GenerateCompletion(ctx context.Context, prompt, model, system string) (string, error) {
	if model == "" {
		model = c.modelName
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.completeOnce(ctx, prompt, model, system)
		if err == nil {
			return text, nil
		}
		lastErr = err

		c.logger.Warn("Completion attempt failed",
			zap.String("provider", c.name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !apierr.Retryable(err) {
			return "", err
		}
		if attempt < c.maxRetries {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, prompt, model, system string) (string, error) {
	reqBody := chatRequest{
		Model:       model,
		Temperature: 0.4,
	}
	if system != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: system})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: prompt})

	var resp chatResponse
	if err := c.doJSON(ctx, c.apiKey, http.MethodPost, "/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s API error: %s", c.name, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in %s response", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQAPairs prompts for QA pairs over one chunk and parses the reply.
func (c *Client) GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error) {
	return qa.FromCompletion(ctx, c.GenerateCompletion, chunk, model, trainingGoal, c.limits)
}

// StartFineTuning uploads the JSONL training file and creates a fine-tuning job.
func (c *Client) StartFineTuning(ctx context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error) {
	if len(req.TrainingJSONL) == 0 {
		return nil, fmt.Errorf("training file is empty")
	}
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	fileID, err := c.uploadTrainingFile(ctx, req.TrainingJSONL)
	if err != nil {
		return nil, fmt.Errorf("upload training file: %w", err)
	}

	var resp fineTuneResponse
	body := fineTuneRequest{TrainingFile: fileID, Model: model, Suffix: req.Suffix}
	if err := c.doJSON(ctx, c.apiKey, http.MethodPost, "/fine_tuning/jobs", body, &resp); err != nil {
		return nil, fmt.Errorf("create fine-tuning job: %w", err)
	}

	c.logger.Info("Fine-tuning job created",
		zap.String("provider", c.name),
		zap.String("provider_job_id", resp.ID),
		zap.String("model", model))

	return toJob(resp), nil
}

// GetFineTuningStatus fetches a job and normalizes its status.
func (c *Client) GetFineTuningStatus(ctx context.Context, jobID string) (*models.FineTuneJob, error) {
	var resp fineTuneResponse
	if err := c.doJSON(ctx, c.apiKey, http.MethodGet, "/fine_tuning/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return toJob(resp), nil
}

// CancelFineTuning asks the provider to stop a running job.
func (c *Client) CancelFineTuning(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, c.apiKey, http.MethodPost, "/fine_tuning/jobs/"+jobID+"/cancel", nil, nil)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) uploadTrainingFile(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "fine-tune"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", "training.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp fileResponse
	if err := c.do(req, c.apiKey, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) doJSON(ctx context.Context, apiKey, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, apiKey, out)
}

func (c *Client) do(req *http.Request, apiKey string, out any) error {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s API request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Provider API error",
			zap.String("provider", c.name),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)))
		return apierr.New(c.name, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", c.name, err)
	}
	return nil
}

func toJob(resp fineTuneResponse) *models.FineTuneJob {
	status := normalizeStatus(resp.Status)
	job := &models.FineTuneJob{
		ID:       resp.ID,
		Status:   status,
		Progress: progressFor(status),
	}
	if resp.FineTunedModel != nil {
		job.FineTunedModel = *resp.FineTunedModel
	}
	if resp.Error != nil {
		job.Error = resp.Error.Message
	}
	return job
}

func normalizeStatus(s string) models.ProviderJobStatus {
	switch s {
	case "validating_files", "queued", "pending":
		return models.ProviderJobQueued
	case "succeeded":
		return models.ProviderJobSucceeded
	case "failed":
		return models.ProviderJobFailed
	case "cancelled":
		return models.ProviderJobCancelled
	default:
		return models.ProviderJobRunning
	}
}

func progressFor(s models.ProviderJobStatus) int {
	switch s {
	case models.ProviderJobQueued:
		return 0
	case models.ProviderJobRunning:
		return 50
	default:
		return 100
	}
}
