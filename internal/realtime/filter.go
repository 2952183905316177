package realtime

import (
	"fmt"
	"slices"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/validation"
)

// Subscription narrows a client's feed. The zero value receives every
// verdict. Clients send one as a JSON text frame at any time to replace
// their current filter.
type Subscription struct {
	EventTypes   []EventType   `json:"eventTypes,omitempty"`
	UserIDs      []string      `json:"userIds,omitempty"`
	Statuses     []risk.Status `json:"statuses,omitempty"`
	MinRiskScore float64       `json:"minRiskScore,omitempty"`
	// Replay asks for up to this many recent matching verdicts, capped at
	// the hub's backlog, delivered oldest first right after the ack.
	Replay int `json:"replay,omitempty"`
}

var feedTypes = []EventType{EventVerdict, EventHighRisk}

// Validate rejects filters that could never match.
func (s Subscription) Validate() error {
	var checks []func() *validation.ValidationError
	for _, et := range s.EventTypes {
		checks = append(checks, validation.OneOf("eventTypes", et, feedTypes))
	}
	for _, st := range s.Statuses {
		checks = append(checks, validation.OneOf("statuses", st, []risk.Status{
			risk.StatusApproved, risk.StatusFlagged, risk.StatusDenied,
		}))
	}
	for _, id := range s.UserIDs {
		checks = append(checks, validation.UserID("userIds", id))
	}
	checks = append(checks, func() *validation.ValidationError {
		if s.MinRiskScore < 0 || s.MinRiskScore > 100 {
			return &validation.ValidationError{Field: "minRiskScore", Message: fmt.Sprintf("must be within 0-100, got %g", s.MinRiskScore)}
		}
		if s.Replay < 0 {
			return &validation.ValidationError{Field: "replay", Message: "must not be negative"}
		}
		return nil
	})

	if errs := validation.Validate(checks...); len(errs) > 0 {
		return errs
	}
	return nil
}

// Matches reports whether ev passes the filter.
func (s Subscription) Matches(ev *Event) bool {
	if len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, ev.Type) {
		return false
	}
	v := ev.Verdict
	if v == nil {
		return true
	}
	if len(s.UserIDs) > 0 && !slices.Contains(s.UserIDs, v.UserID) {
		return false
	}
	if len(s.Statuses) > 0 && !slices.Contains(s.Statuses, v.Status) {
		return false
	}
	return v.RiskScore >= s.MinRiskScore
}
