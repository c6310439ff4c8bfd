package throttle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/application"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/infra"
)

func newTestService(p *domain.Policy, store domain.CounterStore) *application.Service {
	now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)
	return &application.Service{
		Engine:   &application.Engine{Store: store, Now: func() time.Time { return now }},
		Policies: application.StaticPolicy{P: p},
	}
}

func doRequest(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AllowsThenRejects(t *testing.T) {
	p := &domain.Policy{IPThrottling: true, Rates: []domain.Rate{{Period: domain.Second, Limit: 3}}}
	logger := infra.NewMemoryThrottleLogger()
	svc := newTestService(p, infra.NewMemoryCounterStore())
	svc.Logger = logger
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, "ok")
	})
	h := Middleware(Options{Service: svc, AddThrottleHeaders: true, Metrics: metrics})(next)

	for i := 0; i < 3; i++ {
		w := doRequest(h, "1.2.3.4:1000", "/a")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	}

	w := doRequest(h, "1.2.3.4:1000", "/a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "3", w.Header().Get("X-Throttle-Limit"))
	assert.Equal(t, "Second", w.Header().Get("X-Throttle-Period"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "API calls quota exceeded! maximum admitted 3 per Second.", strings.TrimSpace(w.Body.String()))
	assert.Equal(t, 3, calls)

	// outro IP tem o próprio contador
	assert.Equal(t, http.StatusOK, doRequest(h, "5.6.7.8:1000", "/a").Code)

	require.Len(t, logger.Entries(), 1)
	assert.Equal(t, w.Header().Get(RequestIDHeader), logger.Entries()[0].RequestID)

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.decisions.WithLabelValues("allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisions.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.rejections.WithLabelValues("second")))
}

func TestMiddleware_CustomStatusMessageAndRequestID(t *testing.T) {
	p := &domain.Policy{ClientThrottling: true, Rates: []domain.Rate{{Period: domain.Minute, Limit: 1}}}
	h := Middleware(Options{
		Service:              newTestService(p, infra.NewMemoryCounterStore()),
		RejectStatus:         http.StatusServiceUnavailable,
		QuotaExceededMessage: "max {0} per {1}",
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Empty(t, w.Header().Get("X-Throttle-Limit"))
	assert.Equal(t, "max 1 per Minute", strings.TrimSpace(w.Body.String()))
}

func TestMiddleware_StoreFailureFailsOpenAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &domain.Policy{IPThrottling: true, Rates: []domain.Rate{{Period: domain.Second, Limit: 1}}}
	store := &application.BoundedStore{
		Next:  infra.NewMemoryCounterStore(),
		Slots: application.ConcurrencyService{Pool: infra.NewChanPool(1), AcquireTimeout: time.Millisecond},
	}
	// ocupa a única vaga: toda chamada ao store falha por timeout
	release, ok := store.Slots.Pool.Acquire(context.Background())
	require.True(t, ok)
	defer release()

	h := Middleware(Options{Service: newTestService(p, store), Logger: zap.New(core)})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "1.2.3.4:1", "/").Code)
	}
	assert.Equal(t, 3, logs.FilterMessage("throttle evaluation diagnostic").Len())
}

func TestMiddleware_WhitelistedEndpoint(t *testing.T) {
	p := &domain.Policy{
		IPThrottling:      true,
		Rates:             []domain.Rate{{Period: domain.Second, Limit: 1}},
		EndpointWhitelist: []string{"/health"},
	}
	h := Middleware(Options{Service: newTestService(p, infra.NewMemoryCounterStore())})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "1.2.3.4:1", "/Health").Code)
	}
}

func TestFormatQuotaMessage(t *testing.T) {
	assert.Equal(t, "API calls quota exceeded! maximum admitted 10 per Hour.", FormatQuotaMessage("", 10, domain.Hour))
	assert.Equal(t, "10/Day 10", FormatQuotaMessage("{limit}/{period} {0}", 10, domain.Day))
}
