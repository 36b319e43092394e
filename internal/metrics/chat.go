package metrics

import (
	"strconv"
	"time"

	"github.com/namelens/chatgate/internal/ailink/retry"
)

const (
	ChatRequestsTotal       = "chat_requests_total"
	ChatAdmissionDenied     = "chat_admission_denied_total"
	ChatRetryAttemptsTotal  = "chat_retry_attempts_total"
	ChatRequestDuration     = "chat_request_duration_ms"
	ChatUpstreamAttemptTime = "chat_upstream_attempt_duration_ms"
)

// ChatRecorder records request-path outcomes. It satisfies engine.Recorder and
// its ObserveAttempt method plugs into ailink.WithAttemptObserver.
type ChatRecorder struct{}

// NewChatRecorder returns a recorder writing to the package emitter.
func NewChatRecorder() *ChatRecorder {
	return &ChatRecorder{}
}

// RequestCompleted records the terminal outcome of one chat request.
func (*ChatRecorder) RequestCompleted(outcome string, elapsed time.Duration) {
	tags := map[string]string{"outcome": outcome}
	emitter.Count(ChatRequestsTotal, tags)
	emitter.Observe(ChatRequestDuration, elapsed, tags)
}

// AdmissionDenied counts a request refused by the local token bucket.
func (*ChatRecorder) AdmissionDenied() {
	emitter.Count(ChatAdmissionDenied, nil)
}

// ObserveAttempt records upstream attempt latency and, for attempts that will
// be retried, the retry reason.
func (*ChatRecorder) ObserveAttempt(a retry.Attempt) {
	emitter.Observe(ChatUpstreamAttemptTime, a.Duration, map[string]string{"status": statusLabel(a)})
	if a.Retrying {
		emitter.Count(ChatRetryAttemptsTotal, map[string]string{"reason": retryReason(a)})
	}
}

func statusLabel(a retry.Attempt) string {
	if a.StatusCode == 0 {
		return "error"
	}
	return strconv.Itoa(a.StatusCode)
}

func retryReason(a retry.Attempt) string {
	switch {
	case a.StatusCode == 429:
		return "rate_limited"
	case a.StatusCode >= 500:
		return "server_error"
	case a.Err != nil:
		return "transport"
	default:
		return "other"
	}
}
