package risk

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	velocityWindow = time.Hour

	amountAnomalyWeight  = 50.0
	locationAnomalyScore = 60.0
	velocityPerTxn       = 25.0
	offHoursTimeScore    = 40.0
	riskyMerchantScore   = 80.0
	normalMerchantScore  = 20.0

	topLocationCount = 3
)

// riskyMerchantTerms are matched case-insensitively as substrings of the
// merchant name during pre-analysis.
var riskyMerchantTerms = []string{"casino", "betting", "crypto", "atm", "wire transfer"}

// PreAnalyze derives heuristic risk signals for tx from the user's prior
// transactions. history must not contain tx itself. now is the analysis time;
// the time-of-day signal uses it rather than the transaction timestamp.
func PreAnalyze(tx *Transaction, history []*Transaction, now time.Time) PreAnalysisRisk {
	return PreAnalysisRisk{
		AmountAnomaly:   amountAnomaly(tx, history),
		LocationAnomaly: locationAnomaly(tx, history),
		TimeAnomaly:     timeAnomaly(now),
		VelocityRisk:    velocityRisk(history, now),
		MerchantRisk:    merchantRisk(tx.Merchant),
	}
}

// amountAnomaly: 50 × relative deviation from the historical mean, capped at 100.
func amountAnomaly(tx *Transaction, history []*Transaction) float64 {
	mean := meanAmount(history)
	if mean <= 0 {
		return 0
	}
	deviation := math.Abs(tx.AmountFloat()-mean) / mean
	return round2(math.Min(amountAnomalyWeight*deviation, 100))
}

// locationAnomaly: 0 for one of the user's three most frequent locations, else 60.
func locationAnomaly(tx *Transaction, history []*Transaction) float64 {
	if len(history) == 0 {
		return 0
	}
	locations := make([]string, len(history))
	for i, h := range history {
		locations[i] = h.Location
	}
	for _, loc := range topN(locations, topLocationCount) {
		if loc == tx.Location {
			return 0
		}
	}
	return locationAnomalyScore
}

// velocityRisk: 25 per prior transaction inside the trailing hour, capped at 100.
func velocityRisk(history []*Transaction, now time.Time) float64 {
	cutoff := now.Add(-velocityWindow)
	count := 0
	for _, h := range history {
		if h.Timestamp.After(cutoff) && !h.Timestamp.After(now) {
			count++
		}
	}
	return math.Min(velocityPerTxn*float64(count), 100)
}

func timeAnomaly(now time.Time) float64 {
	hour := now.Hour()
	if hour < 6 || hour > 23 {
		return offHoursTimeScore
	}
	return 0
}

func merchantRisk(merchant string) float64 {
	if containsAny(merchant, riskyMerchantTerms) {
		return riskyMerchantScore
	}
	return normalMerchantScore
}

// containsAny reports whether s contains any of terms, ignoring case.
func containsAny(s string, terms []string) bool {
	lower := strings.ToLower(s)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func meanAmount(history []*Transaction) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += h.AmountFloat()
	}
	return sum / float64(len(history))
}

// topN returns the n most frequent values, most frequent first. Ties keep
// first-seen order.
func topN(values []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
