package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dataset-service/internal/models"

	"go.uber.org/zap"
)

// MultiProvider generates QA pairs with the current provider and falls back
// to the next one on failure.
type MultiProvider struct {
	providers    []Provider
	currentIndex int
	mu           sync.RWMutex
	logger       *zap.Logger
	failureCount map[int]int
	maxFailures  int
}

// NewMultiProvider creates a fallback chain. maxFailures is the number of
// consecutive failures before switching away from a provider.
func NewMultiProvider(providers []Provider, maxFailures int, logger *zap.Logger) (*MultiProvider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &MultiProvider{
		providers:    providers,
		logger:       logger,
		failureCount: make(map[int]int),
		maxFailures:  maxFailures,
	}, nil
}

func (c *MultiProvider) current() (Provider, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[c.currentIndex], c.currentIndex
}

func (c *MultiProvider) switchFrom(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// another goroutine may already have moved on
	if c.currentIndex != index {
		return
	}
	c.currentIndex = (c.currentIndex + 1) % len(c.providers)

	c.logger.Info("Switching provider",
		zap.Int("from_index", index),
		zap.Int("to_index", c.currentIndex),
		zap.Int("total_providers", len(c.providers)))
}

func (c *MultiProvider) recordFailure(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount[index]++
	if c.failureCount[index] >= c.maxFailures {
		c.logger.Warn("Provider reached max failures",
			zap.Int("provider_index", index),
			zap.Int("failures", c.failureCount[index]))
		c.failureCount[index] = 0
		return true
	}
	return false
}

func (c *MultiProvider) resetFailures(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount[index] = 0
}

// GenerateQAPairs tries each provider at most once, starting with the current one.
// An empty model means each provider's configured default.
func (c *MultiProvider) GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error) {
	var lastErr error
	for attempt := 0; attempt < len(c.providers); attempt++ {
		provider, index := c.current()

		pairs, err := provider.GenerateQAPairs(ctx, chunk, model, trainingGoal)
		if err == nil {
			c.resetFailures(index)
			return pairs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.Error("Provider failed",
			zap.String("provider", provider.Name()),
			zap.Int("provider_index", index),
			zap.Error(err))

		if c.recordFailure(index) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuth) {
			c.switchFrom(index)
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Close closes all providers
func (c *MultiProvider) Close() error {
	var lastErr error
	for i, p := range c.providers {
		if err := p.Close(); err != nil {
			c.logger.Error("Failed to close provider", zap.Int("index", i), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}
