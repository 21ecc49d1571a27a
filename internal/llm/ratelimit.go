package llm

import (
	"context"
	"fmt"
	"time"

	"dataset-service/internal/models"

	"golang.org/x/time/rate"
)

// RateLimited wraps a provider with a per-minute token bucket. Only the
// generation calls are limited.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerMinute calls with a burst of one minute's quota.
func NewRateLimited(p Provider, requestsPerMinute int) *RateLimited {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(every), requestsPerMinute),
	}
}

func (p *RateLimited) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return nil
}

func (p *RateLimited) GenerateCompletion(ctx context.Context, prompt, model, system string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	return p.Provider.GenerateCompletion(ctx, prompt, model, system)
}

func (p *RateLimited) GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.Provider.GenerateQAPairs(ctx, chunk, model, trainingGoal)
}
