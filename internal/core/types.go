package core

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ChatRequest is one logical chat completion request.
// Messages are kept in conversation order.
type ChatRequest struct {
	Model    string        `json:"model" yaml:"model"`
	Messages []ChatMessage `json:"messages" yaml:"messages"`
}

// LastUserMessage returns the content of the most recent user message.
func (r ChatRequest) LastUserMessage() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content, true
		}
	}
	return "", false
}

// Usage contains token usage statistics reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the successful outcome of a ChatRequest.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`

	// Demo is set when the content was synthesized locally because no
	// credential was available.
	Demo bool `json:"demo,omitempty"`
}

// RateBudget is a point-in-time view of an admission token bucket.
type RateBudget struct {
	Capacity        float64   `json:"capacity"`
	RefillPerSecond float64   `json:"refill_per_second"`
	Tokens          float64   `json:"tokens"`
	LastRefill      time.Time `json:"last_refill"`
}
