package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/ailink/retry"
	"github.com/namelens/chatgate/internal/core"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultReferer = "https://github.com/namelens/chatgate"
	defaultTitle   = "chatgate"

	defaultMaxRetries = 4
	defaultBaseDelay  = 300 * time.Millisecond
	defaultMaxDelay   = 7 * time.Second
)

// DefaultPolicy is the retry policy used for chat completions: 4 retries,
// 300ms base, 7s cap, retrying 429 and 5xx.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Retryable:  retry.RetryableStatus,
	}
}

// Client implements the OpenAI-compatible chat completions driver.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Referer and Title form the identification header pair
	// (HTTP-Referer, X-Title).
	Referer string
	Title   string

	// Policy is used as is; NewClient fills in DefaultPolicy. A zero
	// MaxRetries means a single attempt.
	Policy retry.Policy

	// Retry supplies sleep, jitter and clock overrides. HTTPClient and
	// Logger on the client take precedence.
	Retry *retry.Client

	Logger *zap.Logger

	// OnAttempt observes every upstream attempt after it is traced.
	OnAttempt func(retry.Attempt)
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}

	return &Client{
		BaseURL: url,
		Referer: defaultReferer,
		Title:   defaultTitle,
		Policy:  DefaultPolicy(),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "openai"
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Credential) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	target := retry.Target{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: c.headers(req.Credential),
		Body:   body,
	}

	resp, err := c.retryClient(endpoint, req).Do(ctx, target, c.Policy)
	if err != nil {
		if core.KindOf(err) != core.KindUnknown {
			return nil, err
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, core.Cancelled(ctxErr)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, core.HTTPFailure(resp.StatusCode, failureDetail(resp.StatusCode, respBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &core.Error{Kind: core.KindEmptyResponse, Err: fmt.Errorf("decode response: %w", err)}
	}

	return toDriverResponse(&parsed)
}

func (c *Client) headers(credential string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+strings.TrimSpace(credential))
	h.Set("Content-Type", "application/json")
	if c.Referer != "" {
		h.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		h.Set("X-Title", c.Title)
	}
	h.Set("Cache-Control", "no-store")
	h.Set("Referrer-Policy", "no-referrer")
	return h
}

func (c *Client) retryClient(endpoint string, req *driver.Request) *retry.Client {
	var rc retry.Client
	if c.Retry != nil {
		rc = *c.Retry
	}
	if c.HTTPClient != nil {
		rc.HTTPClient = c.HTTPClient
	}
	if c.Logger != nil {
		rc.Logger = c.Logger
	}

	inner := rc.OnAttempt
	rc.OnAttempt = func(a retry.Attempt) {
		entry := driver.TraceEntry{
			RequestID:  req.RequestID,
			Driver:     c.Name(),
			Endpoint:   endpoint,
			Method:     http.MethodPost,
			Model:      req.Model,
			Attempt:    a.Number,
			StatusCode: a.StatusCode,
			Retrying:   a.Retrying,
			WaitMs:     a.Wait.Milliseconds(),
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			entry.Error = a.Err.Error()
		}
		driver.Trace(entry)

		if inner != nil {
			inner(a)
		}
		if c.OnAttempt != nil {
			c.OnAttempt(a)
		}
	}
	return &rc
}

func failureDetail(status int, body []byte) string {
	if detail := strings.TrimSpace(string(body)); detail != "" {
		return detail
	}
	return http.StatusText(status)
}
