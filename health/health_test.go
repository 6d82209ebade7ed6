package health

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want State
		ok   bool
	}{
		{"healthy", StateHealthy, true},
		{"Degraded", StateDegraded, true},
		{"failed", StateFailed, true},
		{"unhealthy", StateFailed, true},
		{"unknown", StateUnknown, true},
		{"meh", State("meh"), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseState(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	healthy := NewHealthy("a", "ok")
	degraded := NewDegraded("b", "slow")
	failed := NewFailed("c", "down")

	assert.True(t, Aggregate("sys", nil).IsHealthy())
	assert.True(t, Aggregate("sys", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("sys", []Status{healthy, degraded}).IsDegraded())

	agg := Aggregate("sys", []Status{healthy, degraded, failed})
	assert.True(t, agg.IsFailed())
	assert.False(t, agg.Healthy)
	assert.Len(t, agg.SubStatuses, 3)
}

func TestFromRatio(t *testing.T) {
	assert.Equal(t, StateUnknown, FromRatio(0, 0))
	assert.Equal(t, StateHealthy, FromRatio(0, 10))
	assert.Equal(t, StateDegraded, FromRatio(1, 10))
	assert.Equal(t, StateDegraded, FromRatio(5, 10))
	assert.Equal(t, StateFailed, FromRatio(6, 10))
	assert.Equal(t, StateFailed, FromRatio(1, 1))
}

func TestFromError_Sanitizes(t *testing.T) {
	assert.True(t, FromError("nats", nil).IsHealthy())

	s := FromError("nats", errors.New("dial nats://10.0.0.5:4222 failed, password=hunter2"))
	require.True(t, s.IsFailed())
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.NotContains(t, s.Message, "hunter2")
	assert.Contains(t, s.Message, "[URL]")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /etc/cellbus/config.json", "failed to open [PATH]"},
		{"http url", "connection failed to https://cells.example.com/v1/health", "connection failed to [URL]"},
		{"ip address", "refused by 192.168.1.100", "refused by [IP]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestStatus_WithSubStatusDoesNotAlias(t *testing.T) {
	base := NewHealthy("root", "ok")
	a := base.WithSubStatus(NewHealthy("a", "ok"))
	b := a.WithSubStatus(NewFailed("b", "down"))

	assert.Len(t, a.SubStatuses, 1)
	assert.Len(t, b.SubStatuses, 2)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Update("registry", NewHealthy("", "ok"))
	m.Update("nats", NewDegraded("", "reconnecting"))

	s, ok := m.Get("registry")
	require.True(t, ok)
	assert.Equal(t, "registry", s.Component)

	agg := m.AggregateHealth("cellbus")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "nats", agg.SubStatuses[0].Component)

	m.Remove("nats")
	assert.True(t, m.AggregateHealth("cellbus").IsHealthy())
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i%5))
			m.Update(name, NewHealthy(name, "ok"))
			_ = m.AggregateHealth("sys")
		}(i)
	}
	wg.Wait()
	_, ok := m.Get("a")
	assert.True(t, ok)
}
