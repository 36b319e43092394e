package openai

import (
	"fmt"
	"strings"

	"github.com/namelens/chatgate/internal/ailink/driver"
)

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatRequest(req *driver.Request) (*chatCompletionRequest, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("unsupported role: %q", msg.Role)
		}
		messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	return &chatCompletionRequest{Model: req.Model, Messages: messages}, nil
}
