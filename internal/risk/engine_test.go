package risk_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/ledger"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/patterns"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/profile"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

type stubOracle struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, req *risk.EnrichmentRequest) (*risk.EnrichmentReply, error)
	requests []*risk.EnrichmentRequest
}

func (s *stubOracle) Enrich(ctx context.Context, req *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.fn(ctx, req)
}

func failingOracle() *stubOracle {
	return &stubOracle{fn: func(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		return nil, errors.New("oracle down")
	}}
}

func scoringOracle(score float64, status risk.Status) *stubOracle {
	return &stubOracle{fn: func(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		return &risk.EnrichmentReply{RiskScore: &score, Status: status, Summary: "scored"}, nil
	}}
}

type recordingSink struct {
	mu      sync.Mutex
	records []*risk.LedgerRecord
	done    chan struct{}
}

func (r *recordingSink) Record(_ context.Context, rec *risk.LedgerRecord) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingSink) EmitVerdict(rec *risk.LedgerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func at(hour int) risk.Clock {
	t := time.Date(2024, 6, 3, hour, 0, 0, 0, time.UTC)
	return risk.ClockFunc(func() time.Time { return t })
}

func newEngine(oracle risk.Oracle, clock risk.Clock) *risk.Engine {
	return risk.NewEngine(
		profile.NewMemoryStore().WithClock(clock),
		patterns.NewMemoryCache().WithClock(clock),
		ledger.New(ledger.DefaultCapacity),
		oracle,
	).WithClock(clock)
}

func transaction(userID, amount, merchant, location string) *risk.Transaction {
	return &risk.Transaction{
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Merchant: merchant,
		CardType: risk.CardCredit,
		Location: location,
		UserID:   userID,
	}
}

func TestAnalyze_FallbackMidAmountDaytime(t *testing.T) {
	e := newEngine(failingOracle(), at(14))

	got := e.Analyze(context.Background(), transaction("u1", "2500", "Best Buy", "Austin"))

	assert.True(t, got.Fallback)
	assert.Equal(t, risk.StatusApproved, got.Status)
	assert.Equal(t, 35.0, got.RiskScore)
	assert.Len(t, got.RiskFactors, 7)
	assert.Equal(t, risk.SchemaVersion, got.SchemaVersion)
	require.NotNil(t, got.PreAnalysisRisk)
}

func TestAnalyze_FallbackCasinoAtNight(t *testing.T) {
	e := newEngine(failingOracle(), at(2))

	got := e.Analyze(context.Background(), transaction("u1", "6000", "Casino Royale", "Las Vegas"))

	assert.True(t, got.Fallback)
	assert.Equal(t, 100.0, got.RiskScore)
	assert.Equal(t, risk.StatusDenied, got.Status)
	assert.Equal(t, risk.AlertHigh, got.AlertLevel)
	assert.Equal(t, 80.0, got.PreAnalysisRisk.MerchantRisk)
	assert.Equal(t, 40.0, got.PreAnalysisRisk.TimeAnomaly)

	// 100 > 80 feeds the pattern cache.
	require.Len(t, e.Patterns(), 1)
	assert.Equal(t, "Casino Royale_Las Vegas_6000", e.Patterns()[0].Key)
}

func TestAnalyze_NilOracleUsesFallback(t *testing.T) {
	e := newEngine(nil, at(14))
	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))
	assert.True(t, got.Fallback)
	assert.Equal(t, 20.0, got.RiskScore)
}

func TestAnalyze_InvalidReplyFallsBack(t *testing.T) {
	oracle := &stubOracle{fn: func(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		score := 250.0
		return &risk.EnrichmentReply{RiskScore: &score, Status: risk.StatusApproved}, nil
	}}
	e := newEngine(oracle, at(14))

	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))
	assert.True(t, got.Fallback)
	assert.Equal(t, 20.0, got.RiskScore)
}

func TestAnalyze_OracleTimeoutFallsBack(t *testing.T) {
	oracle := &stubOracle{fn: func(ctx context.Context, _ *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := newEngine(oracle, at(14)).WithOracleTimeout(20 * time.Millisecond)

	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))
	assert.True(t, got.Fallback)
}

func TestAnalyze_AcceptsOracleVerdict(t *testing.T) {
	e := newEngine(scoringOracle(55, risk.StatusFlagged), at(14))

	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))

	assert.False(t, got.Fallback)
	assert.Equal(t, 55.0, got.RiskScore)
	assert.Equal(t, risk.StatusFlagged, got.Status)
	assert.Equal(t, risk.AlertMedium, got.AlertLevel)
	assert.Equal(t, risk.DefaultOracleConfidence, got.Confidence)
	assert.Equal(t, "scored", got.Summary)
	assert.Len(t, got.RiskFactors, 7)
	assert.NotNil(t, got.Recommendations)
}

func TestAnalyze_UnknownFactorKeepsOracleVerdict(t *testing.T) {
	score := 10.0
	oracle := &stubOracle{fn: func(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		return &risk.EnrichmentReply{
			RiskScore:   &score,
			Status:      risk.StatusApproved,
			RiskFactors: map[string]float64{"DeviceFingerprint": 250, risk.FactorCardUsage: 15},
		}, nil
	}}
	e := newEngine(oracle, at(14))

	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))

	assert.False(t, got.Fallback)
	assert.Equal(t, 10.0, got.RiskScore)
	assert.Len(t, got.RiskFactors, 7)
	assert.NotContains(t, got.RiskFactors, "DeviceFingerprint")
	assert.Equal(t, 15.0, got.RiskFactors[risk.FactorCardUsage])
}

func TestAnalyze_HistoryExcludesCurrentTransaction(t *testing.T) {
	oracle := scoringOracle(10, risk.StatusApproved)
	e := newEngine(oracle, at(14))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e.Analyze(ctx, transaction("u1", "100", "Bakery", "Paris"))
	}

	require.Len(t, oracle.requests, 3)
	for i, req := range oracle.requests {
		assert.Equal(t, i, req.HistorySummary.Count)
	}
	assert.Equal(t, 0, oracle.requests[0].ProfileSummary.TotalTransactions)
	assert.Equal(t, 2, oracle.requests[2].ProfileSummary.TotalTransactions)
}

func TestAnalyze_ProfileBecomesHighRisk(t *testing.T) {
	var n int
	oracle := &stubOracle{fn: func(context.Context, *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
		n++
		score := 15.0
		if n <= 4 {
			score = 85
		}
		return &risk.EnrichmentReply{RiskScore: &score, Status: risk.StatusApproved}, nil
	}}
	e := newEngine(oracle, at(14))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		e.Analyze(ctx, transaction("u1", "100", "Bakery", "Paris"))
	}

	p, err := e.ProfileFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.TotalTransactions)
	assert.Equal(t, 4, p.SuspiciousTransactions)
	assert.Equal(t, risk.RiskLevelHigh, p.RiskLevel)
	assert.True(t, p.RecentSuspiciousActivity)

	history, err := e.HistoryFor(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 10)
}

func TestAnalyze_UnknownProfile(t *testing.T) {
	e := newEngine(nil, at(14))
	_, err := e.ProfileFor(context.Background(), "ghost")
	assert.ErrorIs(t, err, risk.ErrProfileNotFound)
}

func TestAnalyze_DoesNotMutateInput(t *testing.T) {
	e := newEngine(nil, at(14))
	tx := transaction("u1", "10", "Bakery", "Paris")

	e.Analyze(context.Background(), tx)
	assert.True(t, tx.Timestamp.IsZero())

	history, err := e.HistoryFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Transaction.Timestamp.IsZero())
}

func TestAnalyze_NotifiesSinks(t *testing.T) {
	audit := &recordingSink{done: make(chan struct{}, 1)}
	events := &recordingSink{}
	e := newEngine(nil, at(14)).WithAuditSink(audit).WithEvents(events)

	got := e.Analyze(context.Background(), transaction("u1", "10", "Bakery", "Paris"))

	select {
	case <-audit.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit sink never received the record")
	}
	audit.mu.Lock()
	require.Len(t, audit.records, 1)
	assert.Equal(t, got.TransactionID, audit.records[0].Analysis.TransactionID)
	audit.mu.Unlock()

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.records, 1)
	assert.Equal(t, got.TransactionID, events.records[0].Analysis.TransactionID)
}

func TestAnalyze_ConcurrentUsers(t *testing.T) {
	e := newEngine(scoringOracle(75, risk.StatusDenied), at(14))
	ctx := context.Background()

	const users, perUser = 5, 20
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u int) {
				defer wg.Done()
				got := e.Analyze(ctx, transaction(fmt.Sprintf("user-%d", u), "100", "Bakery", "Paris"))
				assert.GreaterOrEqual(t, got.RiskScore, 0.0)
				assert.LessOrEqual(t, got.RiskScore, 100.0)
			}(u)
		}
	}
	wg.Wait()

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, users*perUser, stats.TotalTransactions)
	assert.Equal(t, users, stats.UniqueUsers)
	assert.Equal(t, users, stats.UserProfiles)
	assert.Equal(t, users*perUser, stats.StatusCounts[risk.StatusDenied])
	assert.Equal(t, 0, stats.FraudPatterns)

	for u := 0; u < users; u++ {
		p, err := e.ProfileFor(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		assert.Equal(t, perUser, p.TotalTransactions)
		assert.Equal(t, perUser, p.SuspiciousTransactions)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	e := newEngine(nil, at(14))
	ctx := context.Background()

	first := e.Analyze(ctx, transaction("u1", "10", "Bakery", "Paris"))
	second := e.Analyze(ctx, transaction("u2", "10", "Bakery", "Paris"))

	recent, err := e.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.TransactionID, recent[0].Analysis.TransactionID)
	assert.Equal(t, first.TransactionID, recent[1].Analysis.TransactionID)
}
