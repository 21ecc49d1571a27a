// Package payment talks to the external checkout service and applies the
// settlements it reports back.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config for the checkout service.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Currency   string        `yaml:"currency"`
	SuccessURL string        `yaml:"success_url"`
	CancelURL  string        `yaml:"cancel_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Client is a client for the checkout service API
type Client struct {
	baseURL    string
	apiKey     string
	currency   string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

// CheckoutRequest is the body of a create-checkout call
type CheckoutRequest struct {
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	SuccessURL  string            `json:"success_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

// CheckoutResponse is the created checkout session
type CheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewClient creates a new checkout service client
func NewClient(cfg Config) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		currency:   cfg.Currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CreateCheckout opens a checkout for amountMinor and returns the redirect URL.
// metadata is echoed back unchanged in the settlement event.
func (c *Client) CreateCheckout(ctx context.Context, amountMinor int64, metadata map[string]string) (string, error) {
	if amountMinor <= 0 {
		return "", fmt.Errorf("checkout amount must be positive, got %d", amountMinor)
	}

	reqBody := CheckoutRequest{
		AmountMinor: amountMinor,
		Currency:    c.currency,
		Description: "Dataset generation credits",
		SuccessURL:  c.successURL,
		CancelURL:   c.cancelURL,
		Metadata:    metadata,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("checkout service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result CheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("checkout service returned no redirect url")
	}

	return result.URL, nil
}
