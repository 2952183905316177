package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/circuitbreaker"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

const breakerKey = "oracle"

var ErrCircuitOpen = errors.New("oracle circuit open")

// Guard stops calling a failing oracle for a cooldown period. While the
// circuit is open every call fails immediately.
type Guard struct {
	next    risk.Oracle
	breaker *circuitbreaker.Breaker
}

// NewGuard wraps next with a breaker that opens after threshold consecutive
// failures and probes again after cooldown.
func NewGuard(next risk.Oracle, threshold int, cooldown time.Duration) *Guard {
	return &Guard{next: next, breaker: circuitbreaker.New(threshold, cooldown)}
}

// OnStateChange registers fn to run after the breaker changes state.
func (g *Guard) OnStateChange(fn func(from, to circuitbreaker.State)) {
	g.breaker.OnTransition(func(_ string, from, to circuitbreaker.State) { fn(from, to) })
}

// State reports the breaker state.
func (g *Guard) State() circuitbreaker.State {
	return g.breaker.State(breakerKey)
}

func (g *Guard) Enrich(ctx context.Context, req *risk.EnrichmentRequest) (*risk.EnrichmentReply, error) {
	var reply *risk.EnrichmentReply
	err := g.breaker.Execute(breakerKey, func() error {
		var err error
		if reply, err = g.next.Enrich(ctx, req); err != nil {
			return err
		}
		return risk.ValidateReply(reply)
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return nil, ErrCircuitOpen
	case err != nil:
		return nil, fmt.Errorf("guarded oracle: %w", err)
	}
	return reply, nil
}
