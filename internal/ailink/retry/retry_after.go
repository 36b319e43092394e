package retry

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxHintSeconds is the largest seconds value a time.Duration can hold.
const maxHintSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter interprets a Retry-After header value relative to now.
//
// Integer values are seconds. Anything else is tried as an HTTP-date, and a
// date in the past yields zero. The boolean is false when the value is absent
// or malformed, or too large to represent as a time.Duration, in which case
// callers fall back to computed backoff.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		switch {
		case seconds < 0:
			return 0, true
		case seconds > maxHintSeconds:
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if parsed, err := http.ParseTime(value); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}
