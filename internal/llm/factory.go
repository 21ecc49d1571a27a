package llm

import (
	"fmt"
	"strings"

	"dataset-service/internal/gemini"
	"dataset-service/internal/groq"
	"dataset-service/internal/openai"
	"dataset-service/internal/openrouter"

	"go.uber.org/zap"
)

// defaultRequestsPerMinute is conservative enough for free tiers.
const defaultRequestsPerMinute = 8

// NewProvider builds the variant named by cfg.Type, wrapped with its rate limit.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	compat := openai.Config{
		APIKey:     cfg.APIKey,
		ModelName:  cfg.ModelName,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Limits:     cfg.Limits,
	}

	switch ProviderType(strings.ToLower(string(cfg.Type))) {
	case ProviderGemini:
		provider, err = gemini.NewClient(gemini.Config{
			APIKey:     cfg.APIKey,
			ModelName:  cfg.ModelName,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Limits:     cfg.Limits,
		}, logger)
	case ProviderGroq:
		provider, err = groq.NewClient(compat, logger)
	case ProviderOpenRouter:
		provider, err = openrouter.NewClient(compat, logger)
	case ProviderOpenAI:
		provider, err = openai.NewClient(compat, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Type, err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm == 0 {
		rpm = defaultRequestsPerMinute
	}

	logger.Info("Provider initialized",
		zap.String("type", string(cfg.Type)),
		zap.String("model", cfg.ModelName),
		zap.Int("rate_limit", rpm))

	return NewRateLimited(provider, rpm), nil
}

// Registry resolves providers by name from a fixed configuration set.
type Registry struct {
	providers map[string]Provider
	configs   map[string]ProviderConfig
	logger    *zap.Logger
}

// NewRegistry builds one provider per config entry. A failing entry is logged and skipped.
func NewRegistry(cfgs []ProviderConfig, logger *zap.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(cfgs)),
		configs:   make(map[string]ProviderConfig, len(cfgs)),
		logger:    logger,
	}
	for i, cfg := range cfgs {
		name := strings.ToLower(string(cfg.Type))
		r.configs[name] = cfg
		p, err := NewProvider(cfg, logger)
		if err != nil {
			logger.Error("Failed to create provider",
				zap.String("type", string(cfg.Type)),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		r.providers[name] = p
	}
	return r
}

// Register adds or replaces a provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.providers[strings.ToLower(name)] = p
}

// Get returns the configured provider for name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return p, nil
}

// WithKey builds a fresh provider for name that authenticates with apiKey,
// keeping the rest of the configured settings. Callers must Close it.
func (r *Registry) WithKey(name, apiKey string) (Provider, error) {
	cfg, ok := r.configs[strings.ToLower(name)]
	if !ok {
		cfg = ProviderConfig{Type: ProviderType(strings.ToLower(name))}
	}
	cfg.APIKey = apiKey
	return NewProvider(cfg, r.logger)
}

// Names lists the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Close closes all providers
func (r *Registry) Close() error {
	var lastErr error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			r.logger.Error("Failed to close provider", zap.String("name", name), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}
