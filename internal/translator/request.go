package translator

import (
	"strings"

	"github.com/jedarden/stickycheese/pkg/models"
)

// DefaultMaxTokens is the output token ceiling sent with every streamed request.
const DefaultMaxTokens = 4096

// IsReasoningOnlyModel reports whether an OpenAI model id belongs to the
// o1 family, which is served without incremental streaming.
func IsReasoningOnlyModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "o1")
}

// BuildOpenAIRequest builds a chat completions request. Reasoning-only models
// get a non-streaming request without max_tokens.
func BuildOpenAIRequest(model string, history []models.Message, systemPrompt string, maxTokens int) *models.OpenAIRequest {
	req := &models.OpenAIRequest{
		Model:    model,
		Messages: OpenAIMessages(history, systemPrompt),
		Stream:   true,
	}
	if IsReasoningOnlyModel(model) {
		req.Stream = false
		return req
	}
	req.MaxTokens = capMaxTokens(maxTokens)
	return req
}

// BuildAnthropicRequest builds a streaming Messages API request.
func BuildAnthropicRequest(model string, history []models.Message, systemPrompt string, maxTokens int) *models.AnthropicRequest {
	return &models.AnthropicRequest{
		Model:     model,
		System:    systemPrompt,
		Messages:  AnthropicMessages(history),
		MaxTokens: capMaxTokens(maxTokens),
		Stream:    true,
	}
}

func capMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return DefaultMaxTokens
	}
	return maxTokens
}
