package integration

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/metrics"
	"github.com/namelens/chatgate/internal/observability"
	"github.com/namelens/chatgate/internal/server"
)

const chatBody = `{"messages":[{"role":"user","content":"hello"}]}`

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError reports sandboxes that refuse loopback sockets.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initLoggers(t *testing.T) {
	t.Helper()
	require.NoError(t, observability.InitCLILogger("test", false))
	require.NoError(t, observability.InitServerLogger(observability.ServerLogOptions{Service: "test", Level: "info"}))
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// newUpstream fakes an OpenAI-compatible endpoint and counts calls.
func newUpstream(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"content":"hi there"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

// newGateway wires a real ailink.Service behind the HTTP server, bound to
// IPv4 loopback explicitly.
func newGateway(t *testing.T, upstreamURL string, capacity float64) (*httptest.Server, *http.Client) {
	t.Helper()

	recorder := metrics.NewChatRecorder()
	svc, err := ailink.NewService(ailink.Config{
		BaseURL:   upstreamURL,
		Model:     "gpt-test",
		Admission: ailink.AdmissionConfig{Capacity: capacity},
	},
		ailink.WithAPIKey("sk-test"),
		ailink.WithGetenv(func(string) string { return "" }),
		ailink.WithRecorder(recorder),
		ailink.WithAttemptObserver(recorder.ObserveAttempt),
	)
	require.NoError(t, err)

	srv := server.New(server.Options{Host: "127.0.0.1", Service: svc, Version: "test"})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping gateway setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func scrape(t *testing.T, client *http.Client, baseURL string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp, string(body)
}

func TestGatewaySharedBudget_Integration(t *testing.T) {
	initLoggers(t)
	initMetricsOrSkip(t)

	var upstreamCalls int32
	upstream := newUpstream(t, &upstreamCalls)
	ts, client := newGateway(t, upstream.URL, 5)

	const numRequests = 20
	const numWorkers = 8

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		byCode  = map[int]int{}
		retries []string
	)
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for range requests {
				resp, err := client.Post(ts.URL+"/v1/chat", "application/json", bytes.NewBufferString(chatBody))
				if err != nil {
					continue
				}
				mu.Lock()
				byCode[resp.StatusCode]++
				if h := resp.Header.Get("Retry-After"); h != "" {
					retries = append(retries, h)
				}
				mu.Unlock()
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, byCode[http.StatusOK])
	assert.Equal(t, numRequests-5, byCode[http.StatusTooManyRequests])
	assert.Equal(t, int32(5), atomic.LoadInt32(&upstreamCalls), "denied requests never reach upstream")
	assert.Len(t, retries, numRequests-5)

	resp, content := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, content, "test_chat_requests_total")
	assert.Contains(t, content, "test_chat_admission_denied_total")
	assert.Contains(t, content, "test_http_requests_total")
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	initLoggers(t)
	initMetricsOrSkip(t)

	var upstreamCalls int32
	upstream := newUpstream(t, &upstreamCalls)
	ts, client := newGateway(t, upstream.URL, 2)

	resp, err := client.Post(ts.URL+"/v1/chat", "application/json", bytes.NewBufferString(chatBody))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, content := scrape(t, client, ts.URL)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"expected Prometheus content type, got: %s", contentType)

	metricLines := 0
	labelled := false
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		metricLines++
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			labelled = true
		}
	}
	assert.Greater(t, metricLines, 0)
	assert.True(t, labelled, "should have labelled Prometheus metric lines")
	assert.Contains(t, content, `outcome="success"`)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	initLoggers(t)

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	var upstreamCalls int32
	upstream := newUpstream(t, &upstreamCalls)
	ts, client := newGateway(t, upstream.URL, 1)

	resp, err := client.Post(ts.URL+"/v1/chat", "application/json", bytes.NewBufferString(chatBody))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
