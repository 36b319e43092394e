package metrics

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPErrorsTotal     = "http_errors_total"
)

// RecordHTTPRequest counts one served request. route should be a route
// pattern, never a raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	tags := map[string]string{
		"method":   method,
		"endpoint": route,
		"status":   strconv.Itoa(status),
	}
	emitter.Count(HTTPRequestsTotal, tags)
	emitter.Observe(HTTPRequestDuration, elapsed, tags)

	if class := errorClass(status); class != "" {
		emitter.Count(HTTPErrorsTotal, map[string]string{
			"method":     method,
			"endpoint":   route,
			"error_type": class,
		})
	}
}

// errorClass separates local budget denials and upstream failures from
// ordinary client and server errors.
func errorClass(status int) string {
	switch {
	case status < 400:
		return ""
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return "upstream"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}
