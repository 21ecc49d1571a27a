package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"dataset-service/internal/ledger"

	"go.uber.org/zap"
)

// Metadata keys carried through the checkout and back in the settlement.
const (
	MetaUserID     = "user_id"
	MetaCharacters = "characters"
)

var ErrInvalidSettlement = errors.New("invalid settlement")

// Checkouter opens a payment session.
type Checkouter interface {
	CreateCheckout(ctx context.Context, amountMinor int64, metadata map[string]string) (string, error)
}

// Settlement is the "payment succeeded" event relayed by the payment collaborator.
type Settlement struct {
	EventID  string            `json:"event_id" binding:"required"`
	Metadata map[string]string `json:"metadata" binding:"required"`
}

// CheckoutResult is a quote plus, when payment is needed, where to pay.
type CheckoutResult struct {
	ledger.CostEvaluation
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// Billing connects cost quotes to checkouts and settlements to credits.
type Billing struct {
	checkout Checkouter
	ledger   *ledger.Service
	logger   *zap.Logger
}

func NewBilling(checkout Checkouter, ledgerService *ledger.Service, logger *zap.Logger) *Billing {
	return &Billing{
		checkout: checkout,
		ledger:   ledgerService,
		logger:   logger,
	}
}

// Checkout quotes n characters for the user. A free quote is accepted on the
// spot; a paid one opens a checkout for the billable characters.
func (b *Billing) Checkout(ctx context.Context, userID string, n int64) (*CheckoutResult, error) {
	eval, err := b.ledger.Quote(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	result := &CheckoutResult{CostEvaluation: eval}

	if !eval.NeedsPayment {
		if eval.MarkFreeCredits {
			if err := b.ledger.MarkFreeCreditsReceived(ctx, userID); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	url, err := b.checkout.CreateCheckout(ctx, eval.AmountMinor, map[string]string{
		MetaUserID:     userID,
		MetaCharacters: strconv.FormatInt(eval.Billable, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	result.CheckoutURL = url

	b.logger.Info("Checkout created",
		zap.String("user_id", userID),
		zap.Int64("billable", eval.Billable),
		zap.Int64("amount_minor", eval.AmountMinor))
	return result, nil
}

// ApplySettlement credits the paid characters. Replaying an event is a no-op
// reported as false.
func (b *Billing) ApplySettlement(ctx context.Context, s Settlement) (bool, error) {
	if s.EventID == "" {
		return false, fmt.Errorf("missing event id: %w", ErrInvalidSettlement)
	}
	userID := s.Metadata[MetaUserID]
	if userID == "" {
		return false, fmt.Errorf("missing %s: %w", MetaUserID, ErrInvalidSettlement)
	}
	n, err := strconv.ParseInt(s.Metadata[MetaCharacters], 10, 64)
	if err != nil || n <= 0 {
		return false, fmt.Errorf("bad %s %q: %w", MetaCharacters, s.Metadata[MetaCharacters], ErrInvalidSettlement)
	}

	ref := "settlement:" + s.EventID
	applied, err := b.ledger.AddCredits(ctx, userID, n, &ref)
	if err != nil {
		return false, err
	}
	if !applied {
		b.logger.Info("Settlement already applied", zap.String("event_id", s.EventID))
	}
	return applied, nil
}
