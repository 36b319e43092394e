package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/core"
	"github.com/namelens/chatgate/internal/metrics"
)

type recorded struct {
	name string
	tags map[string]string
}

type recordingEmitter struct {
	mu       sync.Mutex
	counts   []recorded
	observed []recorded
}

func (e *recordingEmitter) Count(name string, tags map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = append(e.counts, recorded{name, tags})
}

func (e *recordingEmitter) Observe(name string, _ time.Duration, tags map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observed = append(e.observed, recorded{name, tags})
}

func (e *recordingEmitter) find(name string) (recorded, bool) {
	for _, c := range e.counts {
		if c.name == name {
			return c, true
		}
	}
	return recorded{}, false
}

func recordMetrics(t *testing.T) *recordingEmitter {
	t.Helper()
	e := &recordingEmitter{}
	t.Cleanup(metrics.SetEmitter(e))
	return e
}

func routed(pattern string, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestMetrics)
	r.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func TestRequestMetricsUsesRoutePattern(t *testing.T) {
	e := recordMetrics(t)

	rec := httptest.NewRecorder()
	routed("/v1/items/{id}", http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got, ok := e.find(metrics.HTTPRequestsTotal)
	require.True(t, ok)
	assert.Equal(t, "/v1/items/{id}", got.tags["endpoint"])
	assert.Equal(t, "200", got.tags["status"])
	assert.Equal(t, http.MethodGet, got.tags["method"])
	require.Len(t, e.observed, 1)
	assert.Equal(t, metrics.HTTPRequestDuration, e.observed[0].name)

	_, isError := e.find(metrics.HTTPErrorsTotal)
	assert.False(t, isError)
}

func TestRequestMetricsErrorClasses(t *testing.T) {
	cases := []struct {
		status int
		class  string
	}{
		{http.StatusBadRequest, "client_error"},
		{http.StatusTooManyRequests, "rate_limited"},
		{http.StatusBadGateway, "upstream"},
		{http.StatusGatewayTimeout, "upstream"},
		{http.StatusInternalServerError, "server_error"},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			e := recordMetrics(t)
			routed("/v1/chat", tc.status).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat", nil))

			got, ok := e.find(metrics.HTTPErrorsTotal)
			require.True(t, ok)
			assert.Equal(t, tc.class, got.tags["error_type"])
			assert.Equal(t, "/v1/chat", got.tags["endpoint"])
		})
	}
}

func TestRequestMetricsWithoutRouter(t *testing.T) {
	e := recordMetrics(t)

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything/123", nil))

	got, ok := e.find(metrics.HTTPRequestsTotal)
	require.True(t, ok)
	assert.Equal(t, unmatchedRoute, got.tags["endpoint"])
	assert.Equal(t, "200", got.tags["status"])
}

func TestRequestMetricsKeepsRequestID(t *testing.T) {
	recordMetrics(t)

	var propagated string
	handler := RequestID(RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagated = core.RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/budget", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-7", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-7", propagated)
}
