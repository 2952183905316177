package risk

import (
	"context"
	"errors"
	"time"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/logging"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/syncutil"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/traces"
)

// state names the stages a transaction moves through inside Analyze.
type state string

const (
	stateReceived        state = "received"
	statePreAnalyzed     state = "pre_analyzed"
	stateOracleAttempted state = "oracle_attempted"
	stateOracleAccepted  state = "oracle_accepted"
	stateFallbackApplied state = "fallback_applied"
	stateEnhanced        state = "enhanced"
	statePersisted       state = "persisted"
)

const (
	sourceOracle   = "oracle"
	sourceFallback = "fallback"

	auditTimeout = 10 * time.Second
)

// Engine is the single entry point for scoring. It composes pre-analysis,
// oracle enrichment with rule-based fallback, verdict normalization and
// persistence into the profile store, pattern cache and ledger.
type Engine struct {
	profiles ProfileStore
	patterns PatternCache
	ledger   Ledger
	adapter  *OracleAdapter
	oracle   Oracle
	geo      NetworkEnricher
	clock    Clock
	audit    AuditSink
	events   EventEmitter

	oracleTimeout time.Duration

	// Serializes analysis per user so each transaction is scored against
	// history that excludes itself and includes every earlier arrival.
	userLocks syncutil.ShardedMutex
}

// NewEngine creates a risk engine. oracle may be nil, in which case every
// transaction is scored by the rule-based fallback.
func NewEngine(profiles ProfileStore, patterns PatternCache, ledger Ledger, oracle Oracle) *Engine {
	return &Engine{
		profiles: profiles,
		patterns: patterns,
		ledger:   ledger,
		oracle:   oracle,
		adapter:  NewOracleAdapter(oracle, nil),
		clock:    SystemClock,
	}
}

// WithClock overrides the wall clock.
func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

// WithNetworkEnricher attaches IP geo context to oracle requests.
func (e *Engine) WithNetworkEnricher(geo NetworkEnricher) *Engine {
	e.geo = geo
	e.adapter = NewOracleAdapter(e.oracle, geo)
	return e
}

// WithOracleTimeout bounds a single oracle attempt.
func (e *Engine) WithOracleTimeout(d time.Duration) *Engine {
	e.oracleTimeout = d
	return e
}

// WithAuditSink mirrors every persisted record to sink.
func (e *Engine) WithAuditSink(sink AuditSink) *Engine {
	e.audit = sink
	return e
}

// WithEvents publishes every persisted record to emitter.
func (e *Engine) WithEvents(emitter EventEmitter) *Engine {
	e.events = emitter
	return e
}

// Analyze scores tx and records the outcome. It never fails for a
// structurally valid transaction: oracle problems are absorbed by the
// rule-based fallback and store problems are logged.
func (e *Engine) Analyze(ctx context.Context, tx *Transaction) *RiskAnalysis {
	started := e.clock.Now()
	tx = tx.Clone()
	tx.Timestamp = started

	ctx, span := traces.StartSpan(ctx, "risk.analyze", traces.UserID(tx.UserID), traces.Merchant(tx.Merchant))
	defer span.End()

	ctx = logging.WithTransaction(ctx, "", tx.UserID)
	log := logging.L(ctx)
	e.step(ctx, stateReceived)

	unlock := e.userLocks.Lock(tx.UserID)
	defer unlock()

	history := e.historyTransactions(ctx, tx.UserID)
	profile, err := e.profiles.GetOrCreate(ctx, tx.UserID)
	if err != nil {
		log.Warn("profile lookup failed, scoring without profile", "error", err)
		profile = nil
	}

	now := e.clock.Now()
	pre := PreAnalyze(tx, history, now)
	e.step(ctx, statePreAnalyzed)

	req := e.adapter.BuildRequest(tx, history, profile, pre, e.patterns.Keys())
	raw, source := e.score(ctx, req, tx, now)

	analysis := Enhance(raw, pre, e.clock.Now(), started)
	e.step(ctx, stateEnhanced)

	e.persist(ctx, tx, analysis)
	e.step(ctx, statePersisted)

	span.SetAttributes(
		traces.TransactionID(analysis.TransactionID),
		traces.RiskScore(analysis.RiskScore),
		traces.Verdict(string(analysis.Status)),
		traces.Fallback(analysis.Fallback),
	)
	verdictsTotal.WithLabelValues(string(analysis.Status), source).Inc()
	analysisDuration.Observe(time.Since(started).Seconds())

	logging.L(logging.WithTransaction(ctx, analysis.TransactionID, tx.UserID)).Info("transaction analyzed",
		"risk_score", analysis.RiskScore,
		"status", analysis.Status,
		"fallback", analysis.Fallback,
	)
	return analysis.Clone()
}

// score tries the oracle once and substitutes the rule scorer on any failure.
func (e *Engine) score(ctx context.Context, req *EnrichmentRequest, tx *Transaction, now time.Time) (*RiskAnalysis, string) {
	oracleCtx, span := traces.StartSpan(ctx, "risk.oracle")
	if e.oracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(oracleCtx, e.oracleTimeout)
		defer cancel()
	}

	raw, err := e.adapter.Attempt(oracleCtx, req)
	span.End()
	e.step(ctx, stateOracleAttempted)

	if err == nil {
		oracleRequestsTotal.WithLabelValues("accepted").Inc()
		e.step(ctx, stateOracleAccepted)
		return raw, sourceOracle
	}

	traces.Fail(span, err)
	result := "unavailable"
	switch {
	case errors.Is(err, ErrInvalidReply):
		result = "invalid"
	case errors.Is(err, ErrOracleDisabled):
		result = "disabled"
	}
	oracleRequestsTotal.WithLabelValues(result).Inc()
	if result != "disabled" {
		logging.L(ctx).Warn("oracle enrichment failed, applying rule-based fallback",
			"reason", result,
			"error", err,
		)
	}

	e.step(ctx, stateFallbackApplied)
	return FallbackScore(tx, now), sourceFallback
}

// persist applies the verdict to every store. Each store owns its own
// locking; the caller holds the user's lock.
func (e *Engine) persist(ctx context.Context, tx *Transaction, analysis *RiskAnalysis) {
	ctx = logging.WithTransaction(ctx, analysis.TransactionID, tx.UserID)
	log := logging.L(ctx)

	if _, err := e.profiles.RecordOutcome(ctx, tx.UserID, analysis.RiskScore); err != nil {
		log.Error("failed to update user profile", "error", err)
	}
	if err := e.patterns.Record(ctx, tx, analysis.RiskScore); err != nil {
		log.Error("failed to record fraud pattern", "error", err)
	}

	rec := &LedgerRecord{Transaction: tx, Analysis: analysis.Clone()}
	if err := e.ledger.Append(ctx, rec); err != nil {
		log.Error("failed to append ledger record", "error", err)
	}

	fraudPatternsGauge.Set(float64(e.patterns.Size()))
	userProfilesGauge.Set(float64(e.profiles.Count()))

	if e.events != nil {
		e.events.EmitVerdict(rec)
	}

	// Audit delivery is best effort and must not hold the user's lock.
	if e.audit != nil {
		go func() {
			auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
			defer cancel()
			if err := e.audit.Record(auditCtx, rec); err != nil {
				auditErrorsTotal.Inc()
				log.Warn("audit sink rejected record", "error", err)
			}
		}()
	}
}

func (e *Engine) historyTransactions(ctx context.Context, userID string) []*Transaction {
	records, err := e.ledger.HistoryFor(ctx, userID)
	if err != nil {
		logging.L(ctx).Warn("history lookup failed, scoring without history", "error", err)
		return nil
	}
	history := make([]*Transaction, 0, len(records))
	for _, r := range records {
		history = append(history, r.Transaction)
	}
	return history
}

func (e *Engine) step(ctx context.Context, s state) {
	logging.L(ctx).Debug("risk analysis state", "state", string(s))
}

// HistoryFor returns the user's ledger records in arrival order.
func (e *Engine) HistoryFor(ctx context.Context, userID string) ([]*LedgerRecord, error) {
	return e.ledger.HistoryFor(ctx, userID)
}

// ProfileFor returns the user's profile or ErrProfileNotFound.
func (e *Engine) ProfileFor(ctx context.Context, userID string) (*UserRiskProfile, error) {
	return e.profiles.Get(ctx, userID)
}

// Recent returns up to limit records, newest first.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*LedgerRecord, error) {
	return e.ledger.Recent(ctx, limit)
}

// Patterns returns the fraud pattern cache contents.
func (e *Engine) Patterns() []*FraudPatternEntry {
	return e.patterns.List()
}

// Stats aggregates ledger statistics with pattern and profile counts.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	ls, err := e.ledger.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		LedgerStats:   ls,
		FraudPatterns: e.patterns.Size(),
		UserProfiles:  e.profiles.Count(),
	}, nil
}
