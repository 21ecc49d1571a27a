package qa

import (
	"context"
	"fmt"

	"dataset-service/internal/models"

	"go.uber.org/zap"
)

// Generator is the slice of a provider the synthesizer needs.
type Generator interface {
	GenerateQAPairs(ctx context.Context, chunk, model, trainingGoal string) ([]models.QAPair, error)
}

// CompleteFunc matches a provider's GenerateCompletion.
type CompleteFunc func(ctx context.Context, prompt, model, system string) (string, error)

// FromCompletion implements GenerateQAPairs on top of a plain completion call.
// Providers without a structured QA endpoint delegate to it.
func FromCompletion(ctx context.Context, complete CompleteFunc, chunk, model, trainingGoal string, limits Limits) ([]models.QAPair, error) {
	text, err := complete(ctx, BuildPrompt(chunk, trainingGoal, limits), model, SystemInstruction)
	if err != nil {
		return nil, err
	}
	return ParsePairs(text), nil
}

// Synthesizer turns one chunk into at most Limits.Max pairs using a provider.
type Synthesizer struct {
	generator Generator
	model     string
	limits    Limits
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer bound to one provider and model.
func NewSynthesizer(generator Generator, model string, limits Limits, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		model:     model,
		limits:    limits.Normalize(),
		logger:    logger,
	}
}

// Synthesize generates pairs for a chunk. A provider error is returned to the
// caller; an unparsable response is an empty, successful result.
func (s *Synthesizer) Synthesize(ctx context.Context, chunk, trainingGoal string) ([]models.QAPair, error) {
	pairs, err := s.generator.GenerateQAPairs(ctx, chunk, s.model, trainingGoal)
	if err != nil {
		return nil, fmt.Errorf("generate qa pairs: %w", err)
	}

	if len(pairs) > s.limits.Max {
		s.logger.Debug("Truncating provider output",
			zap.Int("received", len(pairs)),
			zap.Int("max_pairs", s.limits.Max))
		pairs = pairs[:s.limits.Max]
	}
	if len(pairs) > 0 && len(pairs) < s.limits.Min {
		s.logger.Warn("Provider returned fewer pairs than requested",
			zap.Int("received", len(pairs)),
			zap.Int("min_pairs", s.limits.Min))
	}
	return pairs, nil
}
