package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

func sampleEntry(at time.Time) domain.LogEntry {
	return domain.LogEntry{
		RequestID:  "req-1",
		RequestKey: "throttle:second:abc",
		Identity:   domain.NewRequestIdentity("1.2.3.4", "k1", "/api/x"),
		Counter:    domain.Counter{Timestamp: at, TotalRequests: 6},
		Period:     domain.Second,
		Limit:      5,
		Label:      "api",
		LogDate:    at,
	}
}

func TestZapThrottleLogger_Samples(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewZapThrottleLogger(zap.New(core), 1, 1)
	at := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	require.NoError(t, l.Log(context.Background(), sampleEntry(at)))
	require.NoError(t, l.Log(context.Background(), sampleEntry(at)))
	require.NoError(t, l.Log(context.Background(), sampleEntry(at)))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(2), l.Suppressed())

	require.NoError(t, l.Log(context.Background(), sampleEntry(at.Add(time.Second))))
	require.Equal(t, 2, logs.Len())

	fields := logs.All()[1].ContextMap()
	assert.Equal(t, int64(2), fields["suppressed"])
	assert.Equal(t, "Second", fields["period"])
	assert.Equal(t, "k1", fields["client_key"])
	assert.Equal(t, int64(5), fields["limit"])
	assert.Zero(t, l.Suppressed())
}

func TestZapThrottleLogger_NoSampling(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewZapThrottleLogger(zap.New(core), 0, 0)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Log(context.Background(), sampleEntry(time.Now())))
	}
	assert.Equal(t, 10, logs.FilterMessage("request throttled").Len())
}

func TestRedisThrottleLogger(t *testing.T) {
	server, client := newTestRedis(t)
	l := NewRedisThrottleLogger(client, WithStatsTrackClients(true), WithStatsTTL(time.Hour))
	at := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	require.NoError(t, l.Log(context.Background(), sampleEntry(at)))
	require.NoError(t, l.Log(context.Background(), sampleEntry(at)))

	assert.Equal(t, "2", server.HGet("throttle:stats:total", "rejected"))
	assert.Equal(t, "2", server.HGet("throttle:stats:total", "period:second"))
	assert.Equal(t, "2", server.HGet("throttle:stats:minute:202406231015", "rejected"))
	assert.Equal(t, time.Hour, server.TTL("throttle:stats:minute:202406231015"))
	assert.Equal(t, "2", server.HGet("throttle:stats:endpoint", "/api/x"))
	assert.Equal(t, "2", server.HGet("throttle:stats:client:k1", "rejected"))
	assert.Zero(t, server.TTL("throttle:stats:total"))
}

func TestRedisThrottleLogger_NoBucket(t *testing.T) {
	server, client := newTestRedis(t)
	l := NewRedisThrottleLogger(client, WithStatsPrefix("rl:"), WithStatsBucket("none"))

	require.NoError(t, l.Log(context.Background(), sampleEntry(time.Now())))
	assert.ElementsMatch(t, []string{"rl:total", "rl:endpoint"}, server.Keys())
}

func TestMemoryThrottleLogger(t *testing.T) {
	l := NewMemoryThrottleLogger(WithTrackClients(true), WithMaxEntries(2))
	at := time.Now()

	for i := 0; i < 3; i++ {
		e := sampleEntry(at)
		e.RequestID = string(rune('a' + i))
		require.NoError(t, l.Log(context.Background(), e))
	}
	e := sampleEntry(at)
	e.Period = domain.Hour
	require.NoError(t, l.Log(context.Background(), e))

	assert.Equal(t, int64(4), l.Total())
	assert.Equal(t, map[domain.Period]int64{domain.Second: 3, domain.Hour: 1}, l.ByPeriod())
	assert.Equal(t, map[string]int64{"k1": 4}, l.ByClient())

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].RequestID)
	assert.Equal(t, domain.Hour, entries[1].Period)
}

type failingLogger struct{}

func (failingLogger) Log(context.Context, domain.LogEntry) error { return errors.New("sink down") }

func TestMultiLogger(t *testing.T) {
	a := NewMemoryThrottleLogger()
	b := NewMemoryThrottleLogger()
	m := MultiLogger{a, failingLogger{}, nil, b}

	err := m.Log(context.Background(), sampleEntry(time.Now()))
	assert.EqualError(t, err, "sink down")
	assert.Equal(t, int64(1), a.Total())
	assert.Equal(t, int64(1), b.Total())
}
