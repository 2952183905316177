package risk

import (
	"math"
	"time"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/idgen"
)

// Enhance turns a raw verdict from either scorer into the canonical
// RiskAnalysis: it stamps identity and timing, completes and clamps the
// factor map, derives a missing alert level and attaches the pre-analysis
// snapshot. raw is not modified.
func Enhance(raw *RiskAnalysis, pre PreAnalysisRisk, now, started time.Time) *RiskAnalysis {
	out := raw.Clone()

	out.RiskScore = clamp(out.RiskScore)
	out.Confidence = clamp(out.Confidence)
	out.RiskFactors = CompleteFactors(raw.RiskFactors)
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	if !out.AlertLevel.Valid() {
		out.AlertLevel = AlertLevelFor(out.RiskScore)
	}

	snapshot := pre
	out.PreAnalysisRisk = &snapshot
	out.TransactionID = idgen.TransactionID(now)
	out.Timestamp = now
	out.ProcessingTime = now.Sub(started).Milliseconds()
	if out.ProcessingTime < 0 {
		out.ProcessingTime = 0
	}
	out.SchemaVersion = SchemaVersion
	return out
}

// CompleteFactors returns a map holding exactly the seven named factors.
// Missing factors are 0, unknown keys are dropped and values are clamped.
func CompleteFactors(partial map[string]float64) RiskFactors {
	out := make(RiskFactors, len(FactorNames))
	for _, name := range FactorNames {
		out[name] = clamp(partial[name])
	}
	return out
}

// AlertLevelFor maps a risk score onto an alert level.
func AlertLevelFor(score float64) AlertLevel {
	switch {
	case score > CriticalThreshold:
		return AlertCritical
	case score > SuspiciousThreshold:
		return AlertHigh
	case score > FlagThreshold:
		return AlertMedium
	default:
		return AlertLow
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
