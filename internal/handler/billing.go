package handler

import (
	"net/http"
	"strconv"

	"dataset-service/internal/ledger"
	"dataset-service/internal/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BillingHandler serves quotes, checkouts, balances and settlements.
type BillingHandler struct {
	ledger  *ledger.Service
	billing *payment.Billing
	logger  *zap.Logger
}

func NewBillingHandler(ledgerService *ledger.Service, billing *payment.Billing, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		ledger:  ledgerService,
		billing: billing,
		logger:  logger,
	}
}

type OpenAccountRequest struct {
	UserID string `json:"user_id"`
}

// OpenAccount handles POST /api/v1/users
func (h *BillingHandler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.ledger.OpenAccount(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, h.logger, "Failed to open account", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Balance handles GET /api/v1/users/:id/balance
func (h *BillingHandler) Balance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to fetch balance", err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Quote handles GET /api/v1/users/:id/quote?characters=N
func (h *BillingHandler) Quote(c *gin.Context) {
	n, err := strconv.ParseInt(c.Query("characters"), 10, 64)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid characters"})
		return
	}
	eval, err := h.ledger.Quote(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		respondError(c, h.logger, "Failed to quote", err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

type CheckoutRequest struct {
	Characters int64 `json:"characters" binding:"required,min=1"`
}

// Checkout handles POST /api/v1/users/:id/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.billing.Checkout(c.Request.Context(), c.Param("id"), req.Characters)
	if err != nil {
		respondError(c, h.logger, "Failed to create checkout", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Settle handles POST /api/v1/billing/settlements
func (h *BillingHandler) Settle(c *gin.Context) {
	var s payment.Settlement
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, err := h.billing.ApplySettlement(c.Request.Context(), s)
	if err != nil {
		respondError(c, h.logger, "Failed to apply settlement", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": s.EventID, "applied": applied})
}
