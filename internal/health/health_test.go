package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAll_EmptyIsHealthy(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestCheckAll_ReportsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("oracle", func(context.Context) Status {
		time.Sleep(10 * time.Millisecond)
		return Status{Healthy: true, Detail: "closed"}
	})
	r.Register("audit", Ping(func(context.Context) error { return nil }))

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "oracle", statuses[0].Name)
	assert.Equal(t, "closed", statuses[0].Detail)
	assert.Equal(t, "audit", statuses[1].Name)
}

func TestCheckAll_OneFailureDegrades(t *testing.T) {
	r := NewRegistry()
	r.Register("oracle", func(context.Context) Status { return Status{Healthy: false, Detail: "open"} })
	r.Register("audit", Ping(func(context.Context) error { return nil }))

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.False(t, statuses[0].Healthy)
	assert.True(t, statuses[1].Healthy)
}

func TestPing_CarriesError(t *testing.T) {
	r := NewRegistry()
	r.Register("audit", Ping(func(context.Context) error { return errors.New("dial tcp: connection refused") }))

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "dial tcp: connection refused", statuses[0].Detail)
}

func TestCheckAll_TimeoutIsUnhealthy(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	r.Register("audit", func(ctx context.Context) Status {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Status{Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "check timed out", statuses[0].Detail)
	assert.Equal(t, "audit", statuses[0].Name)
}

func TestCheckAll_PanicIsUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("oracle", func(context.Context) Status { panic("nil guard") })

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Contains(t, statuses[0].Detail, "nil guard")
}

func TestRegister_ConcurrentWithCheckAll(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			r.Register("check", Ping(func(context.Context) error { return nil }))
		}
	}()
	for i := 0; i < 50; i++ {
		r.CheckAll(context.Background())
	}
	<-done

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 50)
}
