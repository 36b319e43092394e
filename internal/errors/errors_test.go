package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core"
)

func TestFromChatErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"rate limited", core.RateLimited(1500 * time.Millisecond), CodeRateLimited, http.StatusTooManyRequests},
		{"cancelled", core.Cancelled(context.Canceled), CodeCancelled, http.StatusRequestTimeout},
		{"http failure", core.HTTPFailure(500, "boom"), CodeExternalService, http.StatusBadGateway},
		{"empty", core.EmptyResponse(), CodeEmptyResponse, http.StatusBadGateway},
		{"timeout", core.Timeout(nil), CodeTimeout, http.StatusGatewayTimeout},
		{"offline", core.Offline(nil), CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"circuit", core.CircuitOpen(nil), CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"invalid", fmt.Errorf("%w: messages are required", ailink.ErrInvalidRequest), CodeInvalidInput, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("send: %w", core.EmptyResponse()), CodeEmptyResponse, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope, ok := FromChatError(tc.err)
			require.True(t, ok)
			assert.Equal(t, tc.code, envelope.Code)
			assert.Equal(t, tc.status, HTTPStatusFromEnvelope(envelope))
		})
	}
}

func TestFromChatErrorIgnoresPlainErrors(t *testing.T) {
	_, ok := FromChatError(fmt.Errorf("plain"))
	require.False(t, ok)

	envelope := EnsureEnvelope(fmt.Errorf("plain"))
	require.Equal(t, CodeInternal, envelope.Code)
	require.Equal(t, "plain", envelope.Context["wrapped_error"])
}

func TestEnsureEnvelopePassesThrough(t *testing.T) {
	original := gferrors.NewErrorEnvelope(CodeNotFound, "missing")
	require.Same(t, original, EnsureEnvelope(original))
}

func TestRespondWithErrorRateLimited(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req = req.WithContext(core.WithRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, core.RateLimited(1200*time.Millisecond))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, CodeRateLimited, body.Error.Code)
	require.Equal(t, "req-7", body.Error.RequestID)
	require.EqualValues(t, 1200, body.Error.Details["retry_after_ms"])
}

func TestRespondWithErrorUpstreamDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, core.HTTPFailure(401, "invalid api key"))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.EqualValues(t, 401, body.Error.Details["upstream_status"])
	require.Equal(t, "invalid api key", body.Error.Details["upstream_detail"])
	require.NotEmpty(t, body.Error.RequestID)
}

func TestRetryAfterSeconds(t *testing.T) {
	require.Equal(t, int64(1), RetryAfterSeconds(0))
	require.Equal(t, int64(1), RetryAfterSeconds(999*time.Millisecond))
	require.Equal(t, int64(2), RetryAfterSeconds(1001*time.Millisecond))
	require.Equal(t, int64(3600), RetryAfterSeconds(time.Hour))
}
