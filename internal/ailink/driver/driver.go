package driver

import (
	"context"

	"github.com/namelens/chatgate/internal/core"
)

// Driver sends a chat completion to an upstream provider.
type Driver interface {
	// Complete sends one logical completion request. Retries happen inside the
	// driver; only the final outcome is returned.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model    string
	Messages []core.ChatMessage

	// Credential is the resolved API key. It is never traced or logged.
	Credential string

	// RequestID correlates trace entries and logs for one orchestration.
	RequestID string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      string
	FinishReason string
	Usage        *core.Usage
}
