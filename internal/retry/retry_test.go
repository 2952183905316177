package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = errors.New("connection reset by peer")

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errConnReset
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errConnReset
	})
	assert.ErrorIs(t, err, errConnReset)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	uniqueViolation := errors.New("duplicate key value violates unique constraint")
	var calls int
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(uniqueViolation)
	})
	assert.Same(t, uniqueViolation, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonPositiveAttemptsCallsOnce(t *testing.T) {
	for _, n := range []int{0, -2} {
		var calls int
		_ = Do(context.Background(), n, time.Millisecond, func() error {
			calls++
			return errConnReset
		})
		assert.Equal(t, 1, calls, "attempts=%d", n)
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, 100*time.Millisecond, func() error {
		calls.Add(1)
		return errConnReset
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestPolicy_OnRetryReportsFailedAttempts(t *testing.T) {
	var seen []int
	p := Policy{
		Attempts:  4,
		BaseDelay: time.Millisecond,
		OnRetry: func(attempt int, err error) {
			assert.ErrorIs(t, err, errConnReset)
			seen = append(seen, attempt)
		},
	}

	err := p.Do(context.Background(), func() error { return errConnReset })
	assert.ErrorIs(t, err, errConnReset)
	// No hook after the final attempt since nothing is retried.
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestPolicy_MaxDelayCapsBackoff(t *testing.T) {
	p := Policy{Attempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond}

	start := time.Now()
	_ = p.Do(context.Background(), func() error { return errConnReset })
	elapsed := time.Since(start)

	// Uncapped doubling would wait 10+20+40+80ms.
	assert.Less(t, elapsed, 120*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 4*7500*time.Microsecond)
}

func TestJitterStaysWithinQuarter(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := jitter(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	wrapped := Permanent(errConnReset)
	assert.ErrorIs(t, wrapped, errConnReset)
	var pe *PermanentError
	assert.ErrorAs(t, wrapped, &pe)
	assert.Equal(t, errConnReset.Error(), wrapped.Error())
}
