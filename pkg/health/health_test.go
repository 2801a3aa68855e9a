package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticProbe(status ComponentStatus) Probe {
	return func(ctx context.Context) ComponentStatus { return status }
}

func TestAggregateRules(t *testing.T) {
	m := New(time.Hour, 24)
	ctx := context.Background()

	m.Register("store", staticProbe(Healthy()))
	m.Register("llm", staticProbe(Healthy()))
	assert.Equal(t, StatusHealthy, m.CheckNow(ctx).Overall)

	m.Register("llm", staticProbe(Degraded("slow responses")))
	assert.Equal(t, StatusDegraded, m.CheckNow(ctx).Overall)

	m.Register("store", staticProbe(Unhealthy("index offline")))
	snapshot := m.CheckNow(ctx)
	assert.Equal(t, StatusUnhealthy, snapshot.Overall)
	assert.Equal(t, "index offline", snapshot.Components["store"].Message)
}

func TestNoProbesIsHealthy(t *testing.T) {
	m := New(time.Hour, 24)
	assert.Equal(t, StatusHealthy, m.CheckNow(context.Background()).Overall)
}

func TestHistoryIsBounded(t *testing.T) {
	m := New(time.Hour, 3)
	m.Register("store", staticProbe(Healthy()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.CheckNow(ctx)
	}

	history := m.History(0)
	assert.Len(t, history, 3)
	// Oldest first.
	assert.True(t, !history[0].Timestamp.After(history[2].Timestamp))

	assert.Len(t, m.History(2), 2)
}

func TestProbePanicIsUnhealthy(t *testing.T) {
	m := New(time.Hour, 24)
	m.Register("flaky", func(ctx context.Context) ComponentStatus {
		panic("boom")
	})

	snapshot := m.CheckNow(context.Background())
	assert.Equal(t, StatusUnhealthy, snapshot.Overall)
	assert.Contains(t, snapshot.Components["flaky"].Message, "boom")
}

func TestStatusRunsFirstCheckLazily(t *testing.T) {
	m := New(time.Hour, 24)
	m.Register("store", staticProbe(Healthy()))

	snapshot := m.Status(context.Background())
	assert.Equal(t, StatusHealthy, snapshot.Overall)
	assert.False(t, snapshot.Timestamp.IsZero())
}

func TestStartStopIdempotent(t *testing.T) {
	m := New(10*time.Millisecond, 24)
	m.Register("store", staticProbe(Healthy()))

	m.Start()
	m.Start()

	require.Eventually(t, func() bool {
		return len(m.History(0)) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}
