package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jedarden/stickycheese/internal/translator"
	"github.com/jedarden/stickycheese/pkg/models"
)

// DefaultOpenAIHost is the public OpenAI API origin.
const DefaultOpenAIHost = "https://api.openai.com"

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	BaseURL string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIHost
	}
	return &OpenAIProvider{BaseURL: baseURL}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() ID {
	return OpenAI
}

// Label returns the display name.
func (p *OpenAIProvider) Label() string {
	return "OpenAI"
}

// DefaultHost returns the upstream origin.
func (p *OpenAIProvider) DefaultHost() string {
	return p.BaseURL
}

// ChatPath returns the chat completions path.
func (p *OpenAIProvider) ChatPath() string {
	return "/v1/chat/completions"
}

// GetEndpointURL returns the chat completions URL.
func (p *OpenAIProvider) GetEndpointURL(relayBase string) string {
	return translator.ResolveEndpoint(relayBase, string(p.Name()), p.BaseURL, p.ChatPath())
}

// GetHeaders returns the HTTP headers for OpenAI API requests.
func (p *OpenAIProvider) GetHeaders(apiKey string, relayed bool) http.Header {
	return bearerHeaders(apiKey)
}

// CredentialHeader returns the Authorization header name.
func (p *OpenAIProvider) CredentialHeader() string {
	return "Authorization"
}

// BuildRequest builds a chat completions body. o1 models do not stream.
func (p *OpenAIProvider) BuildRequest(req *ChatRequest) (interface{}, bool) {
	body := translator.BuildOpenAIRequest(req.Model, req.Messages, req.SystemPrompt, req.MaxTokens)
	return body, body.Stream
}

// ParseFrame decodes an OpenAI SSE line.
func (p *OpenAIProvider) ParseFrame(line string) translator.Frame {
	return translator.ParseOpenAIFrame(line)
}

// ParseResponse returns choices[0].message.content, or "" when absent.
func (p *OpenAIProvider) ParseResponse(body []byte) (string, error) {
	return parseChatCompletion(body)
}

func parseChatCompletion(body []byte) (string, error) {
	var resp models.OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func bearerHeaders(apiKey string) http.Header {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+apiKey)
	headers.Set("Content-Type", "application/json")
	return headers
}
