// Package errors maps chat request failures onto gofulmen error envelopes and
// writes them as JSON HTTP responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/metrics"
	"github.com/namelens/chatgate/internal/observability"
	"github.com/namelens/chatgate/internal/server/middleware"
)

// Envelope codes.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeCancelled          = "CANCELLED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeEmptyResponse      = "EMPTY_RESPONSE"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnauthorized, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// WrapInvalidInput builds an INVALID_INPUT envelope carrying err and the
// request's correlation id.
func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

// WrapValidationError is WrapInvalidInput for struct validation failures.
func WrapValidationError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeValidationFailed, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = EnsureCorrelationID(envelope, ctx)
	return withWrappedError(envelope, err)
}

// FromChatError maps a failure returned by ailink.Service.Send onto an
// envelope. The second result is false when err carries no chat kind.
func FromChatError(err error) (*errors.ErrorEnvelope, bool) {
	if stderrors.Is(err, ailink.ErrInvalidRequest) {
		return withWrappedError(errors.NewErrorEnvelope(CodeInvalidInput, "invalid chat request"), err), true
	}

	var chatErr *ailink.Error
	if !stderrors.As(err, &chatErr) || chatErr == nil {
		return nil, false
	}

	var envelope *errors.ErrorEnvelope
	fields := map[string]interface{}{"kind": chatErr.Kind.String()}

	switch chatErr.Kind {
	case ailink.KindRateLimited:
		envelope = errors.NewErrorEnvelope(CodeRateLimited, "local request budget exhausted")
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
		fields["retry_after_ms"] = chatErr.RetryAfterMs()
	case ailink.KindCancelled:
		envelope = errors.NewErrorEnvelope(CodeCancelled, "request cancelled before completion")
	case ailink.KindHTTPFailure:
		envelope = errors.NewErrorEnvelope(CodeExternalService, "upstream request failed")
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
		fields["upstream_status"] = chatErr.Status
		if chatErr.Detail != "" {
			fields["upstream_detail"] = chatErr.Detail
		}
	case ailink.KindEmptyResponse:
		envelope = errors.NewErrorEnvelope(CodeEmptyResponse, "upstream returned an empty completion")
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	case ailink.KindTimeout:
		envelope = errors.NewErrorEnvelope(CodeTimeout, "upstream request timed out")
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	case ailink.KindOffline, ailink.KindCircuitOpen:
		envelope = errors.NewErrorEnvelope(CodeServiceUnavailable, chatErr.Error())
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	default:
		envelope = errors.NewErrorEnvelope(CodeInternal, "chat request failed")
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
		fields["wrapped_error"] = chatErr.Error()
	}

	if updated, err := envelope.WithContext(fields); err == nil {
		envelope = updated
	}
	return envelope, true
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	if mapped, ok := FromChatError(err); ok {
		return mapped
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env = withWrappedError(env, err)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches the request id from ctx, or a generated one.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status for an envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status for an envelope code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeCancelled:
		return http.StatusRequestTimeout
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService, CodeEmptyResponse:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds rounds a wait up to whole seconds, at least 1, for the
// Retry-After response header.
func RetryAfterSeconds(wait time.Duration) int64 {
	seconds := int64(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails merges envelope details and context into the API body.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes err and writes it. Rate limited chat errors also
// set Retry-After.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var chatErr *ailink.Error
	if w != nil && stderrors.As(err, &chatErr) && chatErr.Kind == ailink.KindRateLimited {
		w.Header().Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(chatErr.RetryAfter), 10))
	}
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope writes envelope as JSON, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}
	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}
