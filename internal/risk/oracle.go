package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Oracle is the external intelligence boundary. Any transport, timeout,
// parse or shape problem is reported as an error; callers do not distinguish
// causes.
type Oracle interface {
	Enrich(ctx context.Context, req *EnrichmentRequest) (*EnrichmentReply, error)
}

// NetworkEnricher resolves origin context for a transaction's IP address.
type NetworkEnricher interface {
	Lookup(ip string) (*GeoContext, error)
}

// HistorySummary condenses a user's prior transactions for the oracle.
type HistorySummary struct {
	Count        int      `json:"count"`
	MeanAmount   float64  `json:"meanAmount"`
	TopLocations []string `json:"topLocations"`
	TopMerchants []string `json:"topMerchants"`
}

// ProfileSummary is the profile view handed to the oracle.
type ProfileSummary struct {
	RiskLevel                RiskLevel `json:"riskLevel"`
	RecentSuspiciousActivity bool      `json:"recentSuspiciousActivity"`
	TotalTransactions        int       `json:"totalTransactions"`
	SuspiciousTransactions   int       `json:"suspiciousTransactions"`
}

// GeoContext is IP-derived origin information.
type GeoContext struct {
	IPAddress    string `json:"ipAddress"`
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
	City         string `json:"city,omitempty"`
	ASN          uint   `json:"asn,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// EnrichmentRequest is everything the oracle sees about a transaction.
type EnrichmentRequest struct {
	Transaction      *Transaction    `json:"transaction"`
	HistorySummary   HistorySummary  `json:"historySummary"`
	PreAnalysisRisk  PreAnalysisRisk `json:"preAnalysisRisk"`
	ProfileSummary   ProfileSummary  `json:"profileSummary"`
	KnownPatternKeys []string        `json:"knownPatternKeys"`
	Network          *GeoContext     `json:"network,omitempty"`
}

// EnrichmentReply is the oracle's structured answer. Pointer fields
// distinguish "absent" from zero.
type EnrichmentReply struct {
	RiskScore       *float64           `json:"riskScore"`
	Status          Status             `json:"status"`
	Confidence      *float64           `json:"confidence,omitempty"`
	Summary         string             `json:"summary"`
	RiskFactors     map[string]float64 `json:"riskFactors,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	AlertLevel      AlertLevel         `json:"alertLevel,omitempty"`
}

const (
	topMerchantCount = 3

	// DefaultOracleConfidence applies when the oracle omits confidence.
	DefaultOracleConfidence = 50.0
)

// OracleAdapter builds enrichment requests and validates oracle replies.
// It makes exactly one attempt per transaction.
type OracleAdapter struct {
	oracle Oracle
	geo    NetworkEnricher
}

// NewOracleAdapter creates an adapter around oracle. geo may be nil.
func NewOracleAdapter(oracle Oracle, geo NetworkEnricher) *OracleAdapter {
	return &OracleAdapter{oracle: oracle, geo: geo}
}

// BuildRequest assembles the enrichment request from the scoring context.
func (a *OracleAdapter) BuildRequest(tx *Transaction, history []*Transaction, profile *UserRiskProfile, pre PreAnalysisRisk, patternKeys []string) *EnrichmentRequest {
	keys := append([]string(nil), patternKeys...)
	sort.Strings(keys)

	req := &EnrichmentRequest{
		Transaction:      tx,
		HistorySummary:   SummarizeHistory(history),
		PreAnalysisRisk:  pre,
		KnownPatternKeys: keys,
	}
	if profile != nil {
		req.ProfileSummary = ProfileSummary{
			RiskLevel:                profile.RiskLevel,
			RecentSuspiciousActivity: profile.RecentSuspiciousActivity,
			TotalTransactions:        profile.TotalTransactions,
			SuspiciousTransactions:   profile.SuspiciousTransactions,
		}
	}
	if a.geo != nil && tx.Network != nil && tx.Network.IPAddress != "" {
		// Geo context is optional evidence; a failed lookup just omits it.
		if geo, err := a.geo.Lookup(tx.Network.IPAddress); err == nil {
			req.Network = geo
		}
	}
	return req
}

// Attempt invokes the oracle once and converts an acceptable reply into a raw
// verdict. Every failure wraps ErrOracleUnavailable or ErrInvalidReply.
func (a *OracleAdapter) Attempt(ctx context.Context, req *EnrichmentRequest) (*RiskAnalysis, error) {
	if a == nil || a.oracle == nil {
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, ErrOracleDisabled)
	}
	reply, err := a.oracle.Enrich(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidReply) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if err := ValidateReply(reply); err != nil {
		return nil, err
	}

	analysis := &RiskAnalysis{
		RiskScore:       *reply.RiskScore,
		Status:          reply.Status,
		Confidence:      DefaultOracleConfidence,
		RiskFactors:     make(RiskFactors, len(reply.RiskFactors)),
		Summary:         reply.Summary,
		Recommendations: append([]string(nil), reply.Recommendations...),
		AlertLevel:      reply.AlertLevel,
	}
	if reply.Confidence != nil {
		analysis.Confidence = *reply.Confidence
	}
	for k, v := range reply.RiskFactors {
		analysis.RiskFactors[k] = v
	}
	return analysis, nil
}

// ValidateReply accepts a reply only if riskScore is a number in [0,100] and
// status is a known verdict. Out-of-range confidence or known factor values
// make the whole reply invalid rather than being repaired. Unknown factors are
// dropped later and not checked.
func ValidateReply(reply *EnrichmentReply) error {
	if reply == nil {
		return fmt.Errorf("%w: empty reply", ErrInvalidReply)
	}
	if reply.RiskScore == nil {
		return fmt.Errorf("%w: missing riskScore", ErrInvalidReply)
	}
	if !inRange(*reply.RiskScore) {
		return fmt.Errorf("%w: riskScore %v outside [0,100]", ErrInvalidReply, *reply.RiskScore)
	}
	if !reply.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidReply, reply.Status)
	}
	if reply.Confidence != nil && !inRange(*reply.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,100]", ErrInvalidReply, *reply.Confidence)
	}
	for _, name := range FactorNames {
		if v, ok := reply.RiskFactors[name]; ok && !inRange(v) {
			return fmt.Errorf("%w: factor %s=%v outside [0,100]", ErrInvalidReply, name, v)
		}
	}
	return nil
}

// SummarizeHistory computes count, mean amount and the top locations and
// merchants of a user's history.
func SummarizeHistory(history []*Transaction) HistorySummary {
	locations := make([]string, len(history))
	merchants := make([]string, len(history))
	for i, h := range history {
		locations[i] = h.Location
		merchants[i] = h.Merchant
	}
	return HistorySummary{
		Count:        len(history),
		MeanAmount:   round2(meanAmount(history)),
		TopLocations: topN(locations, topLocationCount),
		TopMerchants: topN(merchants, topMerchantCount),
	}
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}
