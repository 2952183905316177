package risk

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/metrics"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/validation"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	maxIPLength        = 64
)

// AnalyzeRequest is the intake body for POST /api/analyze.
type AnalyzeRequest struct {
	Amount   decimal.Decimal  `json:"amount"`
	Currency Currency         `json:"currency" binding:"required"`
	Merchant string           `json:"merchant"`
	CardType CardType         `json:"cardType" binding:"required,oneof=credit debit prepaid"`
	Location string           `json:"location"`
	UserID   string           `json:"userId" binding:"required"`
	Network  *NetworkMetadata `json:"network,omitempty"`
}

// Validate rejects missing or oversized free-form fields before they are
// sanitized, so long values are refused rather than silently truncated.
func (r *AnalyzeRequest) Validate() validation.ValidationErrors {
	checks := []func() *validation.ValidationError{
		validation.Required("merchant", r.Merchant),
		validation.MaxLength("merchant", r.Merchant, validation.MaxStringLength),
		validation.Required("location", r.Location),
		validation.MaxLength("location", r.Location, validation.MaxStringLength),
		validation.MaxLength("userId", r.UserID, validation.MaxStringLength),
	}
	if r.Network != nil {
		checks = append(checks,
			validation.MaxLength("network.ipAddress", r.Network.IPAddress, maxIPLength),
			validation.MaxLength("network.userAgent", r.Network.UserAgent, validation.MaxStringLength),
			validation.MaxLength("network.deviceId", r.Network.DeviceID, validation.MaxStringLength),
		)
	}
	return validation.Validate(checks...)
}

// Transaction converts the request into a sanitized Transaction.
func (r *AnalyzeRequest) Transaction() *Transaction {
	tx := &Transaction{
		Amount:   r.Amount,
		Currency: Currency(validation.SanitizeString(string(r.Currency), 3)),
		Merchant: validation.SanitizeString(r.Merchant, validation.MaxStringLength),
		CardType: r.CardType,
		Location: validation.SanitizeString(r.Location, validation.MaxStringLength),
		UserID:   validation.SanitizeString(r.UserID, validation.MaxStringLength),
	}
	if r.Network != nil {
		tx.Network = &NetworkMetadata{
			IPAddress: validation.SanitizeString(r.Network.IPAddress, maxIPLength),
			UserAgent: validation.SanitizeString(r.Network.UserAgent, validation.MaxStringLength),
			DeviceID:  validation.SanitizeString(r.Network.DeviceID, validation.MaxStringLength),
		}
	}
	return tx
}

// ValidateTransaction applies intake rules to a sanitized transaction.
func ValidateTransaction(tx *Transaction) validation.ValidationErrors {
	return validation.Validate(
		validation.PositiveAmount("amount", tx.Amount),
		validation.OneOf("currency", tx.Currency, SupportedCurrencies),
		validation.MinLength("merchant", tx.Merchant, 2),
		validation.OneOf("cardType", tx.CardType, []CardType{CardCredit, CardDebit, CardPrepaid}),
		validation.MinLength("location", tx.Location, 2),
		validation.UserID("userId", tx.UserID),
	)
}

// Handler provides HTTP endpoints for the risk engine.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new risk handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up the risk API routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyze", h.Analyze)
	r.GET("/history/:userId", validation.UserIDParamMiddleware(), h.History)
	r.GET("/profile/:userId", validation.UserIDParamMiddleware(), h.Profile)
	r.GET("/stats", h.Stats)
	r.GET("/transactions/recent", h.Recent)
	r.GET("/patterns", h.Patterns)
}

// Analyze handles POST /api/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RejectedTransactionsTotal.WithLabelValues("invalid_body").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	errs := req.Validate()
	tx := req.Transaction()
	if len(errs) == 0 {
		errs = ValidateTransaction(tx)
	}
	if len(errs) > 0 {
		metrics.RejectedTransactionsTotal.WithLabelValues("validation").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	c.JSON(http.StatusOK, h.engine.Analyze(c.Request.Context(), tx))
}

// History handles GET /api/history/:userId
func (h *Handler) History(c *gin.Context) {
	userID := c.Param("userId")
	records, err := h.engine.HistoryFor(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":       userID,
		"transactions": records,
		"count":        len(records),
	})
}

// Profile handles GET /api/profile/:userId
func (h *Handler) Profile(c *gin.Context) {
	profile, err := h.engine.ProfileFor(c.Request.Context(), c.Param("userId"))
	if errors.Is(err, ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "profile_not_found",
			"message": "No risk profile exists for this user",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Stats handles GET /api/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute statistics",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Recent handles GET /api/transactions/recent?limit=N
func (h *Handler) Recent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.engine.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": records,
		"count":        len(records),
	})
}

// Patterns handles GET /api/patterns
func (h *Handler) Patterns(c *gin.Context) {
	patterns := h.engine.Patterns()
	c.JSON(http.StatusOK, gin.H{
		"patterns": patterns,
		"count":    len(patterns),
	})
}
