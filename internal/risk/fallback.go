package risk

import (
	"math"
	"time"
)

// Rule scorer constants. The factor values are fixed heuristics and do not
// track the adjustments that produce the score.
const (
	fallbackBase       = 20.0
	fallbackConfidence = 75.0

	largeAmount    = 5000.0
	mediumAmount   = 1000.0
	largeAmountAdj = 30.0
	midAmountAdj   = 15.0
	offHoursAdj    = 20.0
	riskyMerchAdj  = 40.0

	fallbackLocationAnomaly = 30.0
	fallbackCardUsage       = 25.0
	fallbackUserBehavior    = 30.0
	fallbackVelocityCheck   = 20.0
)

// highRiskMerchantTerms is the narrower list the rule scorer penalizes.
var highRiskMerchantTerms = []string{"casino", "betting", "crypto"}

var fallbackRecommendations = []string{
	"AI analysis unavailable: route to manual review if the amount is material",
	"Verify the cardholder through a secondary channel before settlement",
	"Re-score the transaction once the intelligence service recovers",
}

// fallbackRule adjusts the base score for one transaction property.
type fallbackRule func(tx *Transaction, hour int) float64

var fallbackRules = []fallbackRule{
	// Amount
	func(tx *Transaction, _ int) float64 {
		amount := tx.AmountFloat()
		switch {
		case amount > largeAmount:
			return largeAmountAdj
		case amount > mediumAmount:
			return midAmountAdj
		}
		return 0
	},
	// Off-hours
	func(_ *Transaction, hour int) float64 {
		if isFallbackOffHours(hour) {
			return offHoursAdj
		}
		return 0
	},
	// Merchant category
	func(tx *Transaction, _ int) float64 {
		if containsAny(tx.Merchant, highRiskMerchantTerms) {
			return riskyMerchAdj
		}
		return 0
	},
}

// FallbackScore produces a deterministic verdict from the transaction and the
// hour of now. It is a pure function of amount, merchant and hour.
func FallbackScore(tx *Transaction, now time.Time) *RiskAnalysis {
	hour := now.Hour()

	score := fallbackBase
	for _, rule := range fallbackRules {
		score += rule(tx, hour)
	}
	score = math.Min(score, 100)

	status, alert := StatusApproved, AlertLow
	switch {
	case score > SuspiciousThreshold:
		status, alert = StatusDenied, AlertHigh
	case score > FlagThreshold:
		status, alert = StatusFlagged, AlertMedium
	}

	return &RiskAnalysis{
		RiskScore:       score,
		Status:          status,
		Confidence:      fallbackConfidence,
		RiskFactors:     fallbackFactors(tx, hour),
		Summary:         "Rule-based assessment (AI analysis unavailable)",
		Recommendations: append([]string(nil), fallbackRecommendations...),
		AlertLevel:      alert,
		Fallback:        true,
	}
}

func fallbackFactors(tx *Transaction, hour int) RiskFactors {
	amountDeviation := 20.0
	if tx.AmountFloat() > mediumAmount {
		amountDeviation = 60
	}
	timePattern := 10.0
	if isFallbackOffHours(hour) {
		timePattern = 70
	}
	merchant := normalMerchantScore
	if containsAny(tx.Merchant, highRiskMerchantTerms) {
		merchant = riskyMerchantScore
	}
	return RiskFactors{
		FactorLocationAnomaly: fallbackLocationAnomaly,
		FactorAmountDeviation: amountDeviation,
		FactorMerchantRisk:    merchant,
		FactorTimePattern:     timePattern,
		FactorCardUsage:       fallbackCardUsage,
		FactorUserBehavior:    fallbackUserBehavior,
		FactorVelocityCheck:   fallbackVelocityCheck,
	}
}

func isFallbackOffHours(hour int) bool {
	return hour < 6 || hour > 22
}
