package provider

import (
	"net/http"

	"github.com/jedarden/stickycheese/internal/translator"
)

// DefaultGoogleHost is the Google AI Studio API origin.
const DefaultGoogleHost = "https://generativelanguage.googleapis.com"

// GoogleProvider implements the Provider interface for Gemini models through
// Google's OpenAI-compatible endpoint, so requests and stream framing follow
// the OpenAI chat completions format.
type GoogleProvider struct {
	BaseURL string
}

// NewGoogleProvider creates a new Google provider.
func NewGoogleProvider(baseURL string) *GoogleProvider {
	if baseURL == "" {
		baseURL = DefaultGoogleHost
	}
	return &GoogleProvider{BaseURL: baseURL}
}

// Name returns the provider name.
func (p *GoogleProvider) Name() ID {
	return Google
}

// Label returns the display name.
func (p *GoogleProvider) Label() string {
	return "Google"
}

// DefaultHost returns the upstream origin.
func (p *GoogleProvider) DefaultHost() string {
	return p.BaseURL
}

// ChatPath returns the OpenAI-compatible chat completions path.
func (p *GoogleProvider) ChatPath() string {
	return "/v1beta/openai/chat/completions"
}

// GetEndpointURL returns the chat completions URL.
func (p *GoogleProvider) GetEndpointURL(relayBase string) string {
	return translator.ResolveEndpoint(relayBase, string(p.Name()), p.BaseURL, p.ChatPath())
}

// GetHeaders returns bearer-token headers; the compatible endpoint accepts the
// AI Studio key as a bearer token.
func (p *GoogleProvider) GetHeaders(apiKey string, relayed bool) http.Header {
	return bearerHeaders(apiKey)
}

// CredentialHeader returns the Authorization header name.
func (p *GoogleProvider) CredentialHeader() string {
	return "Authorization"
}

// BuildRequest builds a streaming chat completions body.
func (p *GoogleProvider) BuildRequest(req *ChatRequest) (interface{}, bool) {
	body := translator.BuildOpenAIRequest(req.Model, req.Messages, req.SystemPrompt, req.MaxTokens)
	return body, body.Stream
}

// ParseFrame decodes an OpenAI-style SSE line.
func (p *GoogleProvider) ParseFrame(line string) translator.Frame {
	return translator.ParseOpenAIFrame(line)
}

// ParseResponse reads a non-streaming chat completion.
func (p *GoogleProvider) ParseResponse(body []byte) (string, error) {
	return parseChatCompletion(body)
}
