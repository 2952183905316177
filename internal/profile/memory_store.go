// Package profile holds per-user risk profiles.
package profile

import (
	"context"
	"sync"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

// Ratio thresholds of suspicious to total transactions.
const (
	highRiskRatio   = 0.3
	mediumRiskRatio = 0.1
)

// MemoryStore keeps user risk profiles in memory.
// TODO: bound the map with an LRU once profile retention is decided; it grows with every distinct user.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*risk.UserRiskProfile
	clock    risk.Clock
}

// NewMemoryStore creates an empty profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*risk.UserRiskProfile),
		clock:    risk.SystemClock,
	}
}

// WithClock overrides the clock used for createdAt and lastUpdated.
func (s *MemoryStore) WithClock(c risk.Clock) *MemoryStore {
	s.clock = c
	return s
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*risk.UserRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, risk.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*risk.UserRiskProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.getOrCreateLocked(userID)
	return &cp, nil
}

// RecordOutcome is the only mutation path for a profile.
func (s *MemoryStore) RecordOutcome(ctx context.Context, userID string, riskScore float64) (*risk.UserRiskProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreateLocked(userID)
	p.TotalTransactions++
	if riskScore > risk.SuspiciousThreshold {
		p.SuspiciousTransactions++
		p.RecentSuspiciousActivity = true
	}
	p.RiskLevel = LevelFor(p.SuspiciousTransactions, p.TotalTransactions)
	p.LastUpdated = s.clock.Now()

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func (s *MemoryStore) getOrCreateLocked(userID string) *risk.UserRiskProfile {
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	now := s.clock.Now()
	p := &risk.UserRiskProfile{
		UserID:      userID,
		RiskLevel:   risk.RiskLevelLow,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.profiles[userID] = p
	return p
}

// LevelFor grades a user by the share of suspicious transactions.
func LevelFor(suspicious, total int) risk.RiskLevel {
	if total == 0 {
		return risk.RiskLevelLow
	}
	ratio := float64(suspicious) / float64(total)
	switch {
	case ratio > highRiskRatio:
		return risk.RiskLevelHigh
	case ratio > mediumRiskRatio:
		return risk.RiskLevelMedium
	default:
		return risk.RiskLevelLow
	}
}

// Compile-time check.
var _ risk.ProfileStore = (*MemoryStore)(nil)
