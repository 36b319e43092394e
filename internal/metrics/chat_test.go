package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink/retry"
	"github.com/namelens/chatgate/internal/core/engine"
)

type sample struct {
	name string
	tags map[string]string
	dur  time.Duration
}

type captureEmitter struct {
	mu       sync.Mutex
	counts   []sample
	observed []sample
}

func (c *captureEmitter) Count(name string, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = append(c.counts, sample{name: name, tags: tags})
}

func (c *captureEmitter) Observe(name string, d time.Duration, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed = append(c.observed, sample{name: name, tags: tags, dur: d})
}

func capture(t *testing.T) *captureEmitter {
	t.Helper()
	c := &captureEmitter{}
	t.Cleanup(SetEmitter(c))
	return c
}

var _ engine.Recorder = (*ChatRecorder)(nil)

func TestChatRecorderRequestCompleted(t *testing.T) {
	c := capture(t)

	NewChatRecorder().RequestCompleted("rate_limited", 12*time.Millisecond)

	require.Len(t, c.counts, 1)
	require.Equal(t, ChatRequestsTotal, c.counts[0].name)
	require.Equal(t, "rate_limited", c.counts[0].tags["outcome"])
	require.Len(t, c.observed, 1)
	require.Equal(t, 12*time.Millisecond, c.observed[0].dur)
}

func TestChatRecorderAdmissionDenied(t *testing.T) {
	c := capture(t)
	NewChatRecorder().AdmissionDenied()
	require.Equal(t, ChatAdmissionDenied, c.counts[0].name)
}

func TestChatRecorderObserveAttempt(t *testing.T) {
	cases := []struct {
		attempt retry.Attempt
		reason  string
		status  string
	}{
		{retry.Attempt{StatusCode: 429, Retrying: true}, "rate_limited", "429"},
		{retry.Attempt{StatusCode: 503, Retrying: true}, "server_error", "503"},
		{retry.Attempt{Err: errors.New("reset"), Retrying: true}, "transport", "error"},
		{retry.Attempt{StatusCode: 200}, "", "200"},
	}

	for _, tc := range cases {
		c := capture(t)
		NewChatRecorder().ObserveAttempt(tc.attempt)

		require.Equal(t, tc.status, c.observed[0].tags["status"])
		if tc.reason == "" {
			require.Empty(t, c.counts)
			continue
		}
		require.Equal(t, ChatRetryAttemptsTotal, c.counts[0].name)
		require.Equal(t, tc.reason, c.counts[0].tags["reason"])
	}
}

func TestRecordError(t *testing.T) {
	c := capture(t)
	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/v1/chat", "RATE_LIMITED")
	RecordPanic()

	require.Len(t, c.counts, 3)
	require.Equal(t, "429", c.counts[0].tags["http_status"])
	require.Equal(t, "/v1/chat", c.counts[1].tags["endpoint"])
	require.Equal(t, PanicsTotalName, c.counts[2].name)
}
