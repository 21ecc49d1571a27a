// Package ledger meters character usage against the free quota and paid credits.
// Money is held as integer micro-units (1e-6 of the major currency unit).
package ledger

import (
	"fmt"

	"dataset-service/internal/models"
)

const (
	MicrosPerMajor = 1_000_000
	MicrosPerMinor = 10_000
)

// Reasons returned by EvaluateCost.
const (
	ReasonFirstFreeQuota   = "first_free_quota"
	ReasonAlreadyUsedQuota = "already_used_quota"
	ReasonLowAmount        = "low_amount"
	ReasonPaymentRequired  = "payment_required"
)

// Config holds the pricing constants.
type Config struct {
	FreeQuota          int64 `yaml:"free_quota"`
	PricePerUnitMicros int64 `yaml:"price_per_unit_micros"`
	MinPayableMinor    int64 `yaml:"min_payable_minor"`
}

// DefaultConfig is 10 000 free characters, 0.000365 per character and a 0.60 minimum charge.
var DefaultConfig = Config{
	FreeQuota:          10_000,
	PricePerUnitMicros: 365,
	MinPayableMinor:    60,
}

// Money is an exact amount in micro-units.
type Money int64

// Minor truncates to minor currency units (cents).
func (m Money) Minor() int64 {
	return int64(m) / MicrosPerMinor
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/MicrosPerMajor, v%MicrosPerMajor)
}

// CostEvaluation is the outcome of EvaluateCost.
type CostEvaluation struct {
	NeedsPayment bool   `json:"needs_payment"`
	Reason       string `json:"reason"`
	Characters   int64  `json:"characters"`
	Billable     int64  `json:"billable"`
	Amount       Money  `json:"amount_micros"`
	AmountMinor  int64  `json:"amount_minor"`
	// MarkFreeCredits tells the caller to set has_received_free_credits once the
	// free quote is accepted.
	MarkFreeCredits bool `json:"mark_free_credits"`
}

// Pricing evaluates costs with fixed constants.
type Pricing struct {
	cfg Config
}

func NewPricing(cfg Config) Pricing {
	if cfg.FreeQuota == 0 && cfg.PricePerUnitMicros == 0 && cfg.MinPayableMinor == 0 {
		cfg = DefaultConfig
	}
	return Pricing{cfg: cfg}
}

func (p Pricing) Config() Config {
	return p.cfg
}

// CalculatePrice is linear in n with no intermediate rounding.
func (p Pricing) CalculatePrice(n int64) Money {
	return Money(n * p.cfg.PricePerUnitMicros)
}

// EvaluateCost decides whether processing n characters needs payment.
func (p Pricing) EvaluateCost(user *models.User, n int64) CostEvaluation {
	eval := CostEvaluation{Characters: n}

	if n <= p.cfg.FreeQuota {
		if user.HasReceivedFreeCredits {
			eval.Reason = ReasonAlreadyUsedQuota
		} else {
			eval.Reason = ReasonFirstFreeQuota
			eval.MarkFreeCredits = true
		}
		return eval
	}

	eval.Billable = n - p.cfg.FreeQuota
	eval.Amount = p.CalculatePrice(eval.Billable)
	eval.AmountMinor = eval.Amount.Minor()
	if eval.AmountMinor < p.cfg.MinPayableMinor {
		eval.Reason = ReasonLowAmount
		return eval
	}

	eval.NeedsPayment = true
	eval.Reason = ReasonPaymentRequired
	return eval
}
