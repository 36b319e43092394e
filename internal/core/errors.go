package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind tags a chat failure. Callers branch on the kind, never on the
// concrete error type.
type Kind int

const (
	KindUnknown Kind = iota
	KindCancelled
	KindRateLimited
	KindHTTPFailure
	KindEmptyResponse

	// Reserved for richer callers; the request path never produces these.
	KindOffline
	KindTimeout
	KindCircuitOpen
)

// String returns the stable identifier of the kind.
func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTPFailure:
		return "http_failure"
	case KindEmptyResponse:
		return "empty_response"
	case KindOffline:
		return "offline"
	case KindTimeout:
		return "timeout"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error is the single error type produced by the chat request path.
//
// Only the fields relevant to Kind are populated: RetryAfter for
// KindRateLimited, Status and Detail for KindHTTPFailure.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Status     int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "chat error"
	}
	switch e.Kind {
	case KindCancelled:
		if e.Err != nil {
			return "request cancelled: " + e.Err.Error()
		}
		return "request cancelled"
	case KindRateLimited:
		return fmt.Sprintf("rate limited: retry after %dms", e.RetryAfter.Milliseconds())
	case KindHTTPFailure:
		return fmt.Sprintf("upstream request failed: status %d: %s", e.Status, e.Detail)
	case KindEmptyResponse:
		return "upstream returned an empty completion"
	case KindOffline:
		if e.Err != nil {
			return "network unavailable: " + e.Err.Error()
		}
		return "network unavailable"
	case KindTimeout:
		return "request timed out"
	case KindCircuitOpen:
		return "circuit open: upstream temporarily disabled"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "chat error"
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, core.Cancelled(nil))
// style checks work without comparing payloads.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Kind == other.Kind
}

// RetryAfterMs is the admission wait hint in whole milliseconds.
func (e *Error) RetryAfterMs() int64 {
	if e == nil {
		return 0
	}
	return e.RetryAfter.Milliseconds()
}

// Cancelled reports that the caller's context ended the request.
func Cancelled(cause error) *Error {
	return &Error{Kind: KindCancelled, Err: cause}
}

// RateLimited reports a local admission denial.
func RateLimited(retryAfter time.Duration) *Error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter}
}

// HTTPFailure reports a final non-2xx upstream response.
func HTTPFailure(status int, detail string) *Error {
	return &Error{Kind: KindHTTPFailure, Status: status, Detail: detail}
}

// EmptyResponse reports a 2xx response without completion content.
func EmptyResponse() *Error {
	return &Error{Kind: KindEmptyResponse}
}

// Offline, Timeout and CircuitOpen are reserved kinds for callers that layer
// connectivity detection, deadlines or breakers on top of the request path.
func Offline(cause error) *Error     { return &Error{Kind: KindOffline, Err: cause} }
func Timeout(cause error) *Error     { return &Error{Kind: KindTimeout, Err: cause} }
func CircuitOpen(cause error) *Error { return &Error{Kind: KindCircuitOpen, Err: cause} }

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) && chatErr != nil {
		return chatErr.Kind
	}
	return KindUnknown
}

// IsContextError reports whether err stems from context cancellation or
// deadline expiry.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
