// Package risk implements real-time transaction risk scoring with per-user
// risk profiles.
//
// Every transaction passes through the same pipeline: heuristic pre-analysis
// over the user's history, enrichment by an external intelligence oracle,
// normalization into a canonical RiskAnalysis, and persistence into the
// profile store, fraud-pattern cache and transaction ledger. When the oracle
// is unavailable or replies with something unusable, a deterministic rule
// scorer substitutes for it, so a verdict always exists.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProfileNotFound   = errors.New("user risk profile not found")
	ErrOracleUnavailable = errors.New("intelligence oracle unavailable")
	ErrInvalidReply      = errors.New("invalid oracle reply")
	ErrOracleDisabled    = errors.New("intelligence oracle disabled")
)

// Status is the verdict on a transaction.
type Status string

const (
	StatusApproved Status = "Approved"
	StatusFlagged  Status = "Flagged"
	StatusDenied   Status = "Denied"
)

// Valid reports whether s is one of the three verdict values.
func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusFlagged, StatusDenied:
		return true
	}
	return false
}

// AlertLevel grades how urgently a verdict needs attention.
type AlertLevel string

const (
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// Valid reports whether a is a known alert level.
func (a AlertLevel) Valid() bool {
	switch a {
	case AlertLow, AlertMedium, AlertHigh, AlertCritical:
		return true
	}
	return false
}

// RiskLevel summarizes a user's historical riskiness.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Currency is an ISO 4217 code accepted at intake.
type Currency string

// SupportedCurrencies lists the currencies accepted at intake.
var SupportedCurrencies = []Currency{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "INR"}

// CardType is the payment instrument class.
type CardType string

const (
	CardCredit  CardType = "credit"
	CardDebit   CardType = "debit"
	CardPrepaid CardType = "prepaid"
)

// Risk factor names. A RiskAnalysis always carries exactly these seven keys.
const (
	FactorLocationAnomaly = "LocationAnomaly"
	FactorAmountDeviation = "AmountDeviation"
	FactorMerchantRisk    = "MerchantRisk"
	FactorTimePattern     = "TimePattern"
	FactorCardUsage       = "CardUsage"
	FactorUserBehavior    = "UserBehavior"
	FactorVelocityCheck   = "VelocityCheck"
)

// FactorNames is the canonical, ordered set of risk factor keys.
var FactorNames = []string{
	FactorLocationAnomaly,
	FactorAmountDeviation,
	FactorMerchantRisk,
	FactorTimePattern,
	FactorCardUsage,
	FactorUserBehavior,
	FactorVelocityCheck,
}

// Score thresholds shared by the rule scorer, profiles and pattern cache.
const (
	SuspiciousThreshold = 70.0 // riskScore above this counts as suspicious
	PatternThreshold    = 80.0 // riskScore above this feeds the pattern cache
	FlagThreshold       = 40.0
	CriticalThreshold   = 90.0

	// SchemaVersion marks the shape of RiskAnalysis documents.
	SchemaVersion = "2.0"
)

// NetworkMetadata is optional request-origin information.
type NetworkMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Transaction is an immutable payment event submitted for scoring.
type Transaction struct {
	Amount    decimal.Decimal  `json:"amount"`
	Currency  Currency         `json:"currency"`
	Merchant  string           `json:"merchant"`
	CardType  CardType         `json:"cardType"`
	Location  string           `json:"location"`
	UserID    string           `json:"userId"`
	Timestamp time.Time        `json:"timestamp"`
	Network   *NetworkMetadata `json:"network,omitempty"`
}

// AmountFloat returns the amount as a float64 for scoring math.
func (t *Transaction) AmountFloat() float64 {
	f, _ := t.Amount.Float64()
	return f
}

// PreAnalysisRisk holds the heuristic signals computed before enrichment.
type PreAnalysisRisk struct {
	AmountAnomaly   float64 `json:"amountAnomaly"`
	LocationAnomaly float64 `json:"locationAnomaly"`
	TimeAnomaly     float64 `json:"timeAnomaly"`
	VelocityRisk    float64 `json:"velocityRisk"`
	MerchantRisk    float64 `json:"merchantRisk"`
}

// RiskFactors maps factor name to a score in [0,100].
type RiskFactors map[string]float64

// RiskAnalysis is the canonical verdict for one transaction.
type RiskAnalysis struct {
	RiskScore       float64          `json:"riskScore"`
	Status          Status           `json:"status"`
	Confidence      float64          `json:"confidence"`
	RiskFactors     RiskFactors      `json:"riskFactors"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations"`
	AlertLevel      AlertLevel       `json:"alertLevel"`
	TransactionID   string           `json:"transactionId"`
	Timestamp       time.Time        `json:"timestamp"`
	ProcessingTime  int64            `json:"processingTime"` // milliseconds
	Fallback        bool             `json:"fallback"`
	PreAnalysisRisk *PreAnalysisRisk `json:"preAnalysisRisk,omitempty"`
	SchemaVersion   string           `json:"schemaVersion"`
}

// Clone returns a deep copy.
func (a *RiskAnalysis) Clone() *RiskAnalysis {
	if a == nil {
		return nil
	}
	c := *a
	c.RiskFactors = make(RiskFactors, len(a.RiskFactors))
	for k, v := range a.RiskFactors {
		c.RiskFactors[k] = v
	}
	if a.Recommendations != nil {
		c.Recommendations = append(make([]string, 0, len(a.Recommendations)), a.Recommendations...)
	}
	if a.PreAnalysisRisk != nil {
		pre := *a.PreAnalysisRisk
		c.PreAnalysisRisk = &pre
	}
	return &c
}

// UserRiskProfile is the evolving risk summary of one user.
type UserRiskProfile struct {
	UserID                   string    `json:"userId"`
	RiskLevel                RiskLevel `json:"riskLevel"`
	TotalTransactions        int       `json:"totalTransactions"`
	SuspiciousTransactions   int       `json:"suspiciousTransactions"`
	RecentSuspiciousActivity bool      `json:"recentSuspiciousActivity"`
	CreatedAt                time.Time `json:"createdAt"`
	LastUpdated              time.Time `json:"lastUpdated"`
}

// FraudPatternEntry aggregates high-risk verdicts sharing one transaction shape.
type FraudPatternEntry struct {
	Key      string    `json:"key"`
	Count    int       `json:"count"`
	AvgRisk  float64   `json:"avgRisk"`
	LastSeen time.Time `json:"lastSeen"`
}

// LedgerRecord pairs a transaction with its verdict.
type LedgerRecord struct {
	Transaction *Transaction  `json:"transaction"`
	Analysis    *RiskAnalysis `json:"analysis"`
}

// LedgerStats is an aggregate snapshot of the ledger.
type LedgerStats struct {
	TotalTransactions int                `json:"totalTransactions"`
	StatusCounts      map[Status]int     `json:"statusCounts"`
	AlertCounts       map[AlertLevel]int `json:"alertCounts"`
	AverageRiskScore  float64            `json:"averageRiskScore"`
	UniqueUsers       int                `json:"uniqueUsers"`
	FallbackCount     int                `json:"fallbackCount"`
}

// Stats is the engine-wide statistics snapshot.
type Stats struct {
	LedgerStats
	FraudPatterns int `json:"fraudPatterns"`
	UserProfiles  int `json:"userProfiles"`
}

// ProfileStore owns user risk profiles. Only RecordOutcome mutates a profile.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*UserRiskProfile, error)
	GetOrCreate(ctx context.Context, userID string) (*UserRiskProfile, error)
	RecordOutcome(ctx context.Context, userID string, riskScore float64) (*UserRiskProfile, error)
	Count() int
}

// PatternCache accumulates recurring high-risk transaction shapes.
type PatternCache interface {
	Record(ctx context.Context, tx *Transaction, riskScore float64) error
	Keys() []string
	List() []*FraudPatternEntry
	Size() int
}

// Ledger is the bounded record of processed transactions.
type Ledger interface {
	Append(ctx context.Context, rec *LedgerRecord) error
	HistoryFor(ctx context.Context, userID string) ([]*LedgerRecord, error)
	Recent(ctx context.Context, limit int) ([]*LedgerRecord, error)
	Stats(ctx context.Context) (LedgerStats, error)
}

// AuditSink receives every persisted record for external audit. Best effort.
type AuditSink interface {
	Record(ctx context.Context, rec *LedgerRecord) error
}

// EventEmitter publishes persisted verdicts to live subscribers.
type EventEmitter interface {
	EmitVerdict(rec *LedgerRecord)
}

// Clock supplies the current time. Time-dependent rules read it instead of
// calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Clone returns a copy that shares nothing with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Network != nil {
		n := *t.Network
		c.Network = &n
	}
	return &c
}
