package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jedarden/stickycheese/internal/translator"
)

// DefaultAnthropicHost is the public Anthropic API origin.
const DefaultAnthropicHost = "https://api.anthropic.com"

// AnthropicVersion is the Messages API version sent with every request.
const AnthropicVersion = "2023-06-01"

// AnthropicProvider implements the Provider interface for the Anthropic Messages API.
type AnthropicProvider struct {
	BaseURL string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = DefaultAnthropicHost
	}
	return &AnthropicProvider{BaseURL: baseURL}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() ID {
	return Anthropic
}

// Label returns the display name.
func (p *AnthropicProvider) Label() string {
	return "Anthropic"
}

// DefaultHost returns the upstream origin.
func (p *AnthropicProvider) DefaultHost() string {
	return p.BaseURL
}

// ChatPath returns the messages path.
func (p *AnthropicProvider) ChatPath() string {
	return "/v1/messages"
}

// GetEndpointURL returns the messages endpoint URL.
func (p *AnthropicProvider) GetEndpointURL(relayBase string) string {
	return translator.ResolveEndpoint(relayBase, string(p.Name()), p.BaseURL, p.ChatPath())
}

// GetHeaders returns the HTTP headers for Anthropic API requests. The
// direct-browser-access header is only needed when calling the API without a
// relay in between.
func (p *AnthropicProvider) GetHeaders(apiKey string, relayed bool) http.Header {
	headers := http.Header{}
	headers.Set("x-api-key", apiKey)
	headers.Set("Content-Type", "application/json")
	headers.Set("anthropic-version", AnthropicVersion)
	if !relayed {
		headers.Set("anthropic-dangerous-direct-browser-access", "true")
	}
	return headers
}

// CredentialHeader returns the x-api-key header name.
func (p *AnthropicProvider) CredentialHeader() string {
	return "x-api-key"
}

// BuildRequest builds a streaming Messages API body.
func (p *AnthropicProvider) BuildRequest(req *ChatRequest) (interface{}, bool) {
	return translator.BuildAnthropicRequest(req.Model, req.Messages, req.SystemPrompt, req.MaxTokens), true
}

// ParseFrame decodes an Anthropic SSE line.
func (p *AnthropicProvider) ParseFrame(line string) translator.Frame {
	return translator.ParseAnthropicFrame(line)
}

// ParseResponse concatenates the text blocks of a non-streaming message.
func (p *AnthropicProvider) ParseResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
