// Package provider defines the provider abstraction for the supported LLM backends.
package provider

import (
	"net/http"

	"github.com/jedarden/stickycheese/internal/translator"
	"github.com/jedarden/stickycheese/pkg/models"
)

// ID names a provider. It doubles as the relay path prefix.
type ID string

const (
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
	Google    ID = "google"
)

// ChatRequest is the provider-neutral input to BuildRequest.
type ChatRequest struct {
	Model        string
	Messages     []models.Message
	SystemPrompt string
	MaxTokens    int
}

// Provider defines the interface for LLM provider backends.
type Provider interface {
	// Name returns the provider name.
	Name() ID

	// Label returns the human-readable provider name used in messages.
	Label() string

	// DefaultHost returns the upstream origin, without a trailing slash.
	DefaultHost() string

	// ChatPath returns the path of the chat endpoint on DefaultHost.
	ChatPath() string

	// GetEndpointURL returns the chat URL, routed through relayBase when set.
	GetEndpointURL(relayBase string) string

	// GetHeaders returns the HTTP headers for API requests. relayed is true
	// when the request goes through a relay rather than straight upstream.
	GetHeaders(apiKey string, relayed bool) http.Header

	// CredentialHeader names the header that carries the API key.
	CredentialHeader() string

	// BuildRequest returns the JSON body for req and whether it streams.
	BuildRequest(req *ChatRequest) (body interface{}, streaming bool)

	// ParseFrame decodes one line of the provider's stream framing.
	ParseFrame(line string) translator.Frame

	// ParseResponse extracts the reply text from a non-streaming response.
	ParseResponse(body []byte) (string, error)
}
