package openai

import (
	"strings"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/core"
)

type chatCompletionResponse struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// toDriverResponse reads the first choice. Missing or blank content is an
// empty response.
func toDriverResponse(resp *chatCompletionResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, core.EmptyResponse()
	}

	first := resp.Choices[0]
	if strings.TrimSpace(first.Message.Content) == "" {
		return nil, core.EmptyResponse()
	}

	response := &driver.Response{
		Content:      first.Message.Content,
		FinishReason: first.FinishReason,
	}
	if resp.Usage != nil {
		response.Usage = &core.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return response, nil
}
