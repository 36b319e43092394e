package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"cancelled", Cancelled(context.Canceled), KindCancelled},
		{"rate limited", RateLimited(time.Second), KindRateLimited},
		{"http failure", HTTPFailure(503, "down"), KindHTTPFailure},
		{"empty", EmptyResponse(), KindEmptyResponse},
		{"offline", Offline(nil), KindOffline},
		{"timeout", Timeout(nil), KindTimeout},
		{"circuit", CircuitOpen(nil), KindCircuitOpen},
		{"wrapped", fmt.Errorf("send: %w", HTTPFailure(500, "boom")), KindHTTPFailure},
		{"plain", errors.New("nope"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "rate limited: retry after 1500ms", RateLimited(1500*time.Millisecond).Error())
	require.Equal(t, "upstream request failed: status 401: nope", HTTPFailure(401, "nope").Error())
	require.Contains(t, Cancelled(context.Canceled).Error(), "context canceled")
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", RateLimited(time.Second))
	require.True(t, errors.Is(err, RateLimited(0)))
	require.False(t, errors.Is(err, EmptyResponse()))
}

func TestCancelledUnwrapsContextError(t *testing.T) {
	err := Cancelled(context.DeadlineExceeded)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.True(t, IsContextError(err))
}

func TestRateLimitedClampsNegative(t *testing.T) {
	require.Equal(t, int64(0), RateLimited(-time.Second).RetryAfterMs())
}

func TestLastUserMessage(t *testing.T) {
	req := ChatRequest{Messages: []ChatMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "again"},
	}}

	msg, ok := req.LastUserMessage()
	require.True(t, ok)
	require.Equal(t, "second", msg)

	_, ok = ChatRequest{}.LastUserMessage()
	require.False(t, ok)
}
