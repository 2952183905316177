// Package ledger is the bounded record of scored transactions.
//
// The ledger keeps the most recent records in arrival order. When it is full,
// each append evicts the oldest record, so readers always see a contiguous
// suffix of the arrival sequence.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

// DefaultCapacity is the number of records retained.
const DefaultCapacity = 1000

var ErrInvalidRecord = errors.New("ledger record must carry a transaction and an analysis")

// Ledger is a fixed-capacity ring buffer of records.
type Ledger struct {
	mu    sync.RWMutex
	ring  []*risk.LedgerRecord
	head  int // index of the oldest record
	count int
}

// New creates a ledger retaining up to capacity records. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{ring: make([]*risk.LedgerRecord, capacity)}
}

// Capacity returns the maximum number of retained records.
func (l *Ledger) Capacity() int { return len(l.ring) }

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Append adds rec as the newest record, evicting the oldest when full.
func (l *Ledger) Append(ctx context.Context, rec *risk.LedgerRecord) error {
	defer observeOp("append")()
	if rec == nil || rec.Transaction == nil || rec.Analysis == nil {
		return ErrInvalidRecord
	}
	stored := copyRecord(rec)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.ring) {
		l.ring[(l.head+l.count)%len(l.ring)] = stored
		l.count++
	} else {
		l.ring[l.head] = stored
		l.head = (l.head + 1) % len(l.ring)
		evictionsTotal.Inc()
	}
	recordsGauge.Set(float64(l.count))
	return nil
}

// HistoryFor returns the user's records, oldest first.
func (l *Ledger) HistoryFor(ctx context.Context, userID string) ([]*risk.LedgerRecord, error) {
	defer observeOp("history")()
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*risk.LedgerRecord
	l.each(func(r *risk.LedgerRecord) bool {
		if r.Transaction.UserID == userID {
			out = append(out, copyRecord(r))
		}
		return true
	})
	return out, nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns every record.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*risk.LedgerRecord, error) {
	defer observeOp("recent")()
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	out := make([]*risk.LedgerRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.head + l.count - 1 - i) % len(l.ring)
		out = append(out, copyRecord(l.ring[idx]))
	}
	return out, nil
}

// Stats scans the ledger and aggregates counts.
func (l *Ledger) Stats(ctx context.Context) (risk.LedgerStats, error) {
	defer observeOp("stats")()
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := risk.LedgerStats{
		StatusCounts: map[risk.Status]int{
			risk.StatusApproved: 0,
			risk.StatusFlagged:  0,
			risk.StatusDenied:   0,
		},
		AlertCounts: make(map[risk.AlertLevel]int),
	}
	users := make(map[string]struct{})
	var sum float64
	l.each(func(r *risk.LedgerRecord) bool {
		stats.TotalTransactions++
		stats.StatusCounts[r.Analysis.Status]++
		stats.AlertCounts[r.Analysis.AlertLevel]++
		if r.Analysis.Fallback {
			stats.FallbackCount++
		}
		sum += r.Analysis.RiskScore
		users[r.Transaction.UserID] = struct{}{}
		return true
	})
	if stats.TotalTransactions > 0 {
		stats.AverageRiskScore = sum / float64(stats.TotalTransactions)
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}

// each visits records oldest first until fn returns false. Callers hold mu.
func (l *Ledger) each(fn func(*risk.LedgerRecord) bool) {
	for i := 0; i < l.count; i++ {
		if !fn(l.ring[(l.head+i)%len(l.ring)]) {
			return
		}
	}
}

func copyRecord(r *risk.LedgerRecord) *risk.LedgerRecord {
	return &risk.LedgerRecord{
		Transaction: r.Transaction.Clone(),
		Analysis:    r.Analysis.Clone(),
	}
}

var _ risk.Ledger = (*Ledger)(nil)
