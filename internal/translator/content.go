// Package translator shapes chat history into provider wire formats and
// decodes provider stream framing back into text deltas.
package translator

import (
	"fmt"

	"github.com/jedarden/stickycheese/pkg/models"
)

// DataURL returns the inline data URI form of an image attachment.
func DataURL(img models.ImageAttachment) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)
}

// OpenAIContent builds the content of one message in OpenAI format.
// Without images the content is the plain text. With images the text part
// comes first (when non-empty), followed by one image_url part per image.
func OpenAIContent(msg models.Message) interface{} {
	if !msg.HasImages() {
		return msg.Content
	}

	parts := make([]models.OpenAIContentPart, 0, len(msg.Images)+1)
	if msg.Content != "" {
		parts = append(parts, models.OpenAIContentPart{
			Type: "text",
			Text: msg.Content,
		})
	}
	for _, img := range msg.Images {
		parts = append(parts, models.OpenAIContentPart{
			Type:     "image_url",
			ImageURL: &models.ImageURL{URL: DataURL(img)},
		})
	}
	return parts
}

// AnthropicContent builds the content of one message in Anthropic format.
// Images come first as base64 source blocks; the text block trails them.
func AnthropicContent(msg models.Message) interface{} {
	if !msg.HasImages() {
		return msg.Content
	}

	blocks := make([]models.ContentBlock, 0, len(msg.Images)+1)
	for _, img := range msg.Images {
		blocks = append(blocks, models.ContentBlock{
			Type: "image",
			Source: &models.ImageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Data,
			},
		})
	}
	if msg.Content != "" {
		blocks = append(blocks, models.ContentBlock{
			Type: "text",
			Text: msg.Content,
		})
	}
	return blocks
}

// OpenAIMessages converts history to OpenAI messages. The system prompt, if
// any, becomes the leading system message; system entries in the history are
// dropped since the prompt is carried separately.
func OpenAIMessages(history []models.Message, systemPrompt string) []models.OpenAIMessage {
	out := make([]models.OpenAIMessage, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, models.OpenAIMessage{Role: string(models.RoleSystem), Content: systemPrompt})
	}
	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			continue
		}
		out = append(out, models.OpenAIMessage{
			Role:    string(msg.Role),
			Content: OpenAIContent(msg),
		})
	}
	return out
}

// AnthropicMessages converts history to Anthropic messages. The system prompt
// is not part of the message list; see BuildAnthropicRequest.
func AnthropicMessages(history []models.Message) []models.AnthropicMessage {
	out := make([]models.AnthropicMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			continue
		}
		out = append(out, models.AnthropicMessage{
			Role:    string(msg.Role),
			Content: AnthropicContent(msg),
		})
	}
	return out
}
