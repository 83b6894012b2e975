package relay

import (
	"net/http"
	"strings"

	"github.com/jedarden/stickycheese/internal/provider"
)

// hasCredential reports whether r carries the header the provider
// authenticates with. The relay only checks presence; the key is passed
// through untouched and never stored.
func hasCredential(p provider.Provider, r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get(p.CredentialHeader())) != ""
}

// upstreamHeaders builds the headers sent to the provider from the client
// request.
func upstreamHeaders(p provider.Provider, r *http.Request) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(p.CredentialHeader(), r.Header.Get(p.CredentialHeader()))

	if p.Name() == provider.Anthropic {
		version := r.Header.Get("anthropic-version")
		if version == "" {
			version = provider.AnthropicVersion
		}
		h.Set("anthropic-version", version)
	}
	return h
}
