package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/ailink/driver/openai"
	"github.com/namelens/chatgate/internal/core"
)

type staticCredentials string

func (s staticCredentials) Resolve(context.Context) (string, error) { return string(s), nil }

type stubDriver struct {
	calls int32
	resp  *driver.Response
	err   error
	seen  *driver.Request
}

func (s *stubDriver) Complete(_ context.Context, req *driver.Request) (*driver.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	s.seen = req
	return s.resp, s.err
}

func (s *stubDriver) Name() string { return "stub" }

type recordedOutcomes struct {
	outcomes []string
	denied   int
}

func (r *recordedOutcomes) RequestCompleted(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordedOutcomes) AdmissionDenied() { r.denied++ }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func chat(text string) core.ChatRequest {
	return core.ChatRequest{Model: "gpt-test", Messages: []core.ChatMessage{{Role: core.RoleUser, Content: text}}}
}

func upstream(t *testing.T, body string, calls *int32) *openai.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := openai.NewClient(server.URL)
	client.HTTPClient = server.Client()
	return client
}

func TestOrchestratorExhaustedBudgetIsRateLimited(t *testing.T) {
	clock := newFakeClock()
	budget := NewTokenBucket(1, 1, WithClock(clock.Now))
	require.True(t, budget.TryTake(1))

	var calls int32
	recorder := &recordedOutcomes{}
	o := &Orchestrator{
		Budget:      budget,
		Credentials: staticCredentials("key"),
		Driver:      upstream(t, `{"choices":[{"message":{"content":"Hallo"}}]}`, &calls),
		Recorder:    recorder,
	}

	_, err := o.Complete(context.Background(), chat("hi"))
	require.Equal(t, core.KindRateLimited, core.KindOf(err))

	var chatErr *core.Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, int64(1000), chatErr.RetryAfterMs())
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
	require.Equal(t, 1, recorder.denied)
	require.Equal(t, []string{"rate_limited"}, recorder.outcomes)
}

func TestOrchestratorDemoPathCode(t *testing.T) {
	var slept time.Duration
	o := &Orchestrator{
		Budget: NewTokenBucket(5, 1),
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = d
			return ctx.Err()
		},
	}

	resp, err := o.Complete(context.Background(), chat("show me code"))
	require.NoError(t, err)
	require.True(t, resp.Demo)
	require.Contains(t, resp.Content, "```")
	require.Equal(t, DefaultDemoDelay, slept)
}

func TestOrchestratorDemoPathPlaceholder(t *testing.T) {
	o := &Orchestrator{Credentials: staticCredentials(""), Sleep: noSleep}

	resp, err := o.Complete(context.Background(), chat("tell me a story"))
	require.NoError(t, err)
	require.True(t, resp.Demo)
	require.NotContains(t, resp.Content, "```")
}

func TestOrchestratorDemoPathCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		DemoDelay: time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := o.Complete(ctx, chat("show me code"))
	require.Equal(t, core.KindCancelled, core.KindOf(err))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestOrchestratorDemoPathRealTimerCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	o := &Orchestrator{DemoDelay: time.Minute}
	_, err := o.Complete(ctx, chat("hi"))
	require.Equal(t, core.KindCancelled, core.KindOf(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOrchestratorUpstreamContent(t *testing.T) {
	var calls int32
	recorder := &recordedOutcomes{}
	o := &Orchestrator{
		Budget:      NewTokenBucket(5, 1),
		Credentials: staticCredentials("key"),
		Driver:      upstream(t, `{"choices":[{"message":{"content":"Hallo"}}],"usage":{"total_tokens":7}}`, &calls),
		Recorder:    recorder,
	}

	resp, err := o.Complete(context.Background(), chat("hi"))
	require.NoError(t, err)
	require.Equal(t, "Hallo", resp.Content)
	require.False(t, resp.Demo)
	require.Equal(t, 7, resp.Usage.TotalTokens)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, []string{"success"}, recorder.outcomes)
}

func TestOrchestratorEmptyContent(t *testing.T) {
	var calls int32
	o := &Orchestrator{
		Credentials: staticCredentials("key"),
		Driver:      upstream(t, `{"choices":[{"message":{"content":""}}]}`, &calls),
	}

	_, err := o.Complete(context.Background(), chat("hi"))
	require.Equal(t, core.KindEmptyResponse, core.KindOf(err))
}

func TestOrchestratorPassesRequestToDriver(t *testing.T) {
	drv := &stubDriver{resp: &driver.Response{Content: "ok"}}
	o := &Orchestrator{Credentials: staticCredentials("secret"), Driver: drv}

	req := chat("hi")
	req.Messages = append([]core.ChatMessage{{Role: core.RoleSystem, Content: "be brief"}}, req.Messages...)

	_, err := o.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "secret", drv.seen.Credential)
	require.Equal(t, req.Messages, drv.seen.Messages)
	require.NotEmpty(t, drv.seen.RequestID)
}

func TestOrchestratorUsesContextRequestID(t *testing.T) {
	drv := &stubDriver{resp: &driver.Response{Content: "ok"}}
	o := &Orchestrator{Credentials: staticCredentials("secret"), Driver: drv}

	_, err := o.Complete(core.WithRequestID(context.Background(), "req-42"), chat("hi"))
	require.NoError(t, err)
	require.Equal(t, "req-42", drv.seen.RequestID)
}

func TestOrchestratorMapsDriverErrorAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	drv := &stubDriver{err: errors.New("connection closed")}
	o := &Orchestrator{
		Credentials: staticCredentials("key"),
		Driver: driverFunc(func(ctx context.Context, req *driver.Request) (*driver.Response, error) {
			cancel()
			return drv.Complete(ctx, req)
		}),
	}

	_, err := o.Complete(ctx, chat("hi"))
	require.Equal(t, core.KindCancelled, core.KindOf(err))
}

func TestOrchestratorWithCredentialsSharesBudget(t *testing.T) {
	budget := NewTokenBucket(1, 0)
	o := &Orchestrator{Budget: budget, Sleep: noSleep}
	override := o.WithCredentials(staticCredentials("key"))
	override.Driver = &stubDriver{resp: &driver.Response{Content: "ok"}}

	_, err := override.Complete(context.Background(), chat("hi"))
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), chat("hi"))
	require.Equal(t, core.KindRateLimited, core.KindOf(err))
}

func TestDemoReply(t *testing.T) {
	cases := []struct {
		text string
		code bool
	}{
		{"show me code", true},
		{"Any CODE samples?", true},
		{"fix this:\n```\nx := 1\n```", true},
		{"hello", false},
		{"", false},
	}

	for _, tc := range cases {
		reply := DemoReply(chat(tc.text))
		require.Equal(t, tc.code, strings.Contains(reply, "```"), tc.text)
	}

	// Only the last user message counts.
	req := core.ChatRequest{Messages: []core.ChatMessage{
		{Role: core.RoleUser, Content: "show me code"},
		{Role: core.RoleAssistant, Content: "sure"},
		{Role: core.RoleUser, Content: "thanks"},
	}}
	require.NotContains(t, DemoReply(req), "```")
}

type driverFunc func(ctx context.Context, req *driver.Request) (*driver.Response, error)

func (f driverFunc) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	return f(ctx, req)
}

func (f driverFunc) Name() string { return "func" }

type failingAdmitter struct{ err error }

func (f failingAdmitter) Admit(context.Context, float64) (time.Duration, bool, error) {
	return 0, false, f.err
}

func (f failingAdmitter) State(context.Context) (core.RateBudget, error) {
	return core.RateBudget{}, f.err
}

func TestOrchestratorAdmissionBackendFailure(t *testing.T) {
	var calls int32
	o := &Orchestrator{
		Budget:      failingAdmitter{err: errors.New("dial tcp: connection refused")},
		Credentials: staticCredentials("key"),
		Driver:      upstream(t, `{"choices":[{"message":{"content":"Hallo"}}]}`, &calls),
	}

	_, err := o.Complete(context.Background(), chat("hi"))
	require.Equal(t, core.KindOffline, core.KindOf(err))
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))

	o.Budget = failingAdmitter{err: context.Canceled}
	_, err = o.Complete(context.Background(), chat("hi"))
	require.Equal(t, core.KindCancelled, core.KindOf(err))
}
