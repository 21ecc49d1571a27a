package ledger

import (
	"context"
	"errors"
	"fmt"

	"dataset-service/internal/models"
	"dataset-service/internal/repository"

	"go.uber.org/zap"
)

var ErrNegativeAmount = errors.New("character amount must not be negative")

// Service applies consumption and credits. Every mutation commits the quota
// change and its ledger rows together.
type Service struct {
	Pricing
	store  *repository.Store
	logger *zap.Logger
}

func NewService(store *repository.Store, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		Pricing: NewPricing(cfg),
		store:   store,
		logger:  logger,
	}
}

// OpenAccount creates a user holding the configured free quota.
func (s *Service) OpenAccount(ctx context.Context, userID string) (*models.User, error) {
	u := &models.User{ID: userID, FreeCharactersRemaining: s.cfg.FreeQuota}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("Account opened", zap.String("user_id", u.ID), zap.Int64("free_characters", u.FreeCharactersRemaining))
	return u, nil
}

// Quote loads the user and evaluates the cost of n characters.
func (s *Service) Quote(ctx context.Context, userID string, n int64) (CostEvaluation, error) {
	if n < 0 {
		return CostEvaluation{}, ErrNegativeAmount
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return CostEvaluation{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return s.EvaluateCost(user, n), nil
}

// ApplyConsumption spends n characters, free quota first.
func (s *Service) ApplyConsumption(ctx context.Context, userID string, n int64, datasetID *string) error {
	return s.store.WithTx(ctx, func(q *repository.Queries) error {
		return s.ApplyConsumptionTx(ctx, q, userID, n, datasetID)
	})
}

// ApplyConsumptionTx is ApplyConsumption inside a caller's transaction.
func (s *Service) ApplyConsumptionTx(ctx context.Context, q *repository.Queries, userID string, n int64, datasetID *string) error {
	if n < 0 {
		return ErrNegativeAmount
	}
	user, err := q.GetUserForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	freeUsed := min(user.FreeCharactersRemaining, n)
	paid := n - freeUsed
	user.FreeCharactersRemaining -= freeUsed
	user.TotalCharactersUsed += n
	if err := q.UpdateUserQuota(ctx, user); err != nil {
		return err
	}

	if freeUsed > 0 {
		if err := q.InsertTransaction(ctx, &models.CharacterTransaction{
			UserID:    userID,
			Amount:    -freeUsed,
			DatasetID: datasetID,
		}); err != nil {
			return err
		}
	}
	if paid > 0 {
		if err := q.InsertTransaction(ctx, &models.CharacterTransaction{
			UserID:                  userID,
			Amount:                  -paid,
			PricePerCharacterMicros: s.cfg.PricePerUnitMicros,
			TotalPriceMicros:        int64(s.CalculatePrice(paid)),
			DatasetID:               datasetID,
		}); err != nil {
			return err
		}
	}

	s.logger.Info("Applied character consumption",
		zap.String("user_id", userID),
		zap.Int64("characters", n),
		zap.Int64("free_used", freeUsed),
		zap.Int64("paid", paid))
	return nil
}

// AddCredits grants n characters. A non-nil reference makes the grant
// idempotent: a second call with the same reference is a no-op returning false.
func (s *Service) AddCredits(ctx context.Context, userID string, n int64, reference *string) (bool, error) {
	if n < 0 {
		return false, ErrNegativeAmount
	}

	applied := false
	err := s.store.WithTx(ctx, func(q *repository.Queries) error {
		if reference != nil {
			seen, err := q.HasReference(ctx, *reference)
			if err != nil {
				return err
			}
			if seen {
				return nil
			}
		}

		user, err := q.GetUserForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", userID, err)
		}
		user.FreeCharactersRemaining += n
		if err := q.UpdateUserQuota(ctx, user); err != nil {
			return err
		}
		if err := q.InsertTransaction(ctx, &models.CharacterTransaction{
			UserID:                  userID,
			Amount:                  n,
			PricePerCharacterMicros: s.cfg.PricePerUnitMicros,
			TotalPriceMicros:        int64(s.CalculatePrice(n)),
			Reference:               reference,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.logger.Info("Added character credits", zap.String("user_id", userID), zap.Int64("characters", n))
	}
	return applied, nil
}

// MarkFreeCreditsReceived sets the one-time free quota flag.
func (s *Service) MarkFreeCreditsReceived(ctx context.Context, userID string) error {
	return s.store.WithTx(ctx, func(q *repository.Queries) error {
		user, err := q.GetUserForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", userID, err)
		}
		if user.HasReceivedFreeCredits {
			return nil
		}
		user.HasReceivedFreeCredits = true
		return q.UpdateUserQuota(ctx, user)
	})
}

// Balance is a user's quota state next to the ledger totals.
type Balance struct {
	FreeCharactersRemaining int64 `json:"free_characters_remaining"`
	TotalCharactersUsed     int64 `json:"total_characters_used"`
	LedgerSum               int64 `json:"ledger_sum"`
}

// Balance reads the quota state and sums the ledger.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Balance{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	sum, err := s.store.SumTransactions(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		FreeCharactersRemaining: user.FreeCharactersRemaining,
		TotalCharactersUsed:     user.TotalCharactersUsed,
		LedgerSum:               sum,
	}, nil
}
