// Package retry executes a single logical HTTP request with bounded retries,
// full-jitter exponential backoff, Retry-After handling and context
// cancellation.
package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/core"
)

const (
	defaultMaxRetries = 4
	defaultBaseDelay  = 250 * time.Millisecond
	defaultMaxDelay   = 6 * time.Second

	// maxDrainBytes bounds how much of a discarded retryable response body is
	// read so the connection can be reused.
	maxDrainBytes = 64 << 10
)

// Target describes the request to issue on every attempt.
type Target struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Policy controls how a request is retried. It is immutable per call.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable decides whether a completed response should be retried.
	// Nil means RetryableStatus.
	Retryable func(*http.Response) bool
}

// DefaultPolicy returns the library defaults: 4 retries, 250ms base, 6s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Retryable:  RetryableStatus,
	}
}

// RetryableStatus retries 429 and any 5xx.
func RetryableStatus(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// Attempt describes one finished attempt, reported through Client.OnAttempt.
type Attempt struct {
	Number     int
	StatusCode int
	Err        error
	Wait       time.Duration
	Duration   time.Duration
	Retrying   bool
}

// Client runs requests under a Policy. The zero value is usable.
type Client struct {
	HTTPClient *http.Client

	// Sleep waits for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0,1). Defaults to math/rand.
	Rand func() float64
	// Clock is used for HTTP-date Retry-After values.
	Clock func() time.Time

	Logger *zap.Logger

	// OnAttempt, when set, observes every attempt.
	OnAttempt func(Attempt)
}

// Do executes target under policy. It returns the first non-retryable
// response, or the last response once retries are exhausted. The caller owns
// the returned body.
//
// Cancellation of ctx, before or during an attempt or while waiting between
// attempts, fails with a core.Error of kind KindCancelled.
func (c *Client) Do(ctx context.Context, target Target, policy Policy) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	policy = normalize(policy)
	logger := c.logger()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, core.Cancelled(err)
		}

		started := c.now()
		resp, err := c.send(ctx, target)
		elapsed := c.now().Sub(started)
		remaining := attempt < policy.MaxRetries

		if err != nil {
			if ctx.Err() != nil || core.IsContextError(err) {
				c.observe(Attempt{Number: attempt, Err: err, Duration: elapsed})
				return nil, core.Cancelled(contextCause(ctx, err))
			}
			lastErr = err
			if !remaining {
				c.observe(Attempt{Number: attempt, Err: err, Duration: elapsed})
				break
			}

			wait := Backoff(policy, attempt, c.random)
			c.observe(Attempt{Number: attempt, Err: err, Wait: wait, Duration: elapsed, Retrying: true})
			logger.Debug("request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, core.Cancelled(err)
			}
			continue
		}

		if !policy.Retryable(resp) || !remaining {
			c.observe(Attempt{Number: attempt, StatusCode: resp.StatusCode, Duration: elapsed})
			return resp, nil
		}

		wait, hinted := ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		if !hinted {
			wait = Backoff(policy, attempt, c.random)
		}
		discard(resp)

		c.observe(Attempt{Number: attempt, StatusCode: resp.StatusCode, Wait: wait, Duration: elapsed, Retrying: true})
		logger.Debug("retryable response",
			zap.Int("attempt", attempt),
			zap.Int("status", resp.StatusCode),
			zap.Bool("retry_after_hint", hinted),
			zap.Duration("wait", wait))

		if err := c.sleep(ctx, wait); err != nil {
			return nil, core.Cancelled(err)
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

// BackoffCap is the upper bound for the wait after attempt:
// min(MaxDelay, BaseDelay * 2^attempt).
func BackoffCap(policy Policy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := float64(policy.BaseDelay) * math.Pow(2, float64(attempt))
	if exp > float64(policy.MaxDelay) || math.IsInf(exp, 0) {
		return policy.MaxDelay
	}
	return time.Duration(exp)
}

// Backoff draws a full-jitter delay uniformly from [0, BackoffCap).
func Backoff(policy Policy, attempt int, random func() float64) time.Duration {
	if random == nil {
		random = rand.Float64
	}
	limit := BackoffCap(policy, attempt)
	ms := math.Floor(random() * float64(limit.Milliseconds()))
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) send(ctx context.Context, target Target) (*http.Response, error) {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if target.Body != nil {
		body = bytes.NewReader(target.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range target.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	client := http.DefaultClient
	if c != nil && c.HTTPClient != nil {
		client = c.HTTPClient
	}
	return client.Do(req)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c != nil && c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (c *Client) random() float64 {
	if c != nil && c.Rand != nil {
		return c.Rand()
	}
	return rand.Float64()
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Client) logger() *zap.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) observe(a Attempt) {
	if c != nil && c.OnAttempt != nil {
		c.OnAttempt(a)
	}
}

func normalize(p Policy) Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < 0 {
		p.MaxDelay = 0
	}
	if p.Retryable == nil {
		p.Retryable = RetryableStatus
	}
	return p
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	_ = resp.Body.Close()
}

func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return context.Canceled
}
