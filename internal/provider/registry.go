package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned for a model id that is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrUnknownProvider is returned for a provider name that is not supported.
var ErrUnknownProvider = errors.New("unknown provider")

// ModelDescriptor describes a selectable model.
type ModelDescriptor struct {
	ID             string
	Name           string
	Provider       ID
	SupportsVision bool
}

// registeredModels is the static model table, in display order.
var registeredModels = []ModelDescriptor{
	{ID: "gpt-4o", Name: "GPT-4o", Provider: OpenAI, SupportsVision: true},
	{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: OpenAI, SupportsVision: true},
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Provider: OpenAI, SupportsVision: true},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: OpenAI},
	{ID: "o1", Name: "o1", Provider: OpenAI, SupportsVision: true},
	{ID: "o1-mini", Name: "o1 Mini", Provider: OpenAI, SupportsVision: true},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Provider: Anthropic, SupportsVision: true},
	{ID: "claude-haiku-4-5-20251001", Name: "Claude Haiku 4.5", Provider: Anthropic, SupportsVision: true},
	{ID: "claude-opus-4-5-20250918", Name: "Claude Opus 4.5", Provider: Anthropic, SupportsVision: true},
	{ID: "gemini-3-pro-preview", Name: "Gemini 3 Pro Preview", Provider: Google, SupportsVision: true},
	{ID: "gemini-3-flash-preview", Name: "Gemini 3 Flash Preview", Provider: Google, SupportsVision: true},
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: Google, SupportsVision: true},
	{ID: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite", Provider: Google, SupportsVision: true},
}

var providers = map[ID]Provider{
	OpenAI:    NewOpenAIProvider(""),
	Anthropic: NewAnthropicProvider(""),
	Google:    NewGoogleProvider(""),
}

// DefaultModel is the model new conversations start with.
const DefaultModel = "gpt-4o"

// Models returns a copy of the model table.
func Models() []ModelDescriptor {
	out := make([]ModelDescriptor, len(registeredModels))
	copy(out, registeredModels)
	return out
}

// ModelsFor returns the registered models owned by a provider.
func ModelsFor(id ID) []ModelDescriptor {
	var out []ModelDescriptor
	for _, m := range registeredModels {
		if m.Provider == id {
			out = append(out, m)
		}
	}
	return out
}

// Lookup returns the descriptor of a registered model.
func Lookup(modelID string) (ModelDescriptor, error) {
	for _, m := range registeredModels {
		if m.ID == modelID {
			return m, nil
		}
	}
	return ModelDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
}

// Resolve returns the provider that serves a registered model.
func Resolve(modelID string) (Provider, error) {
	m, err := Lookup(modelID)
	if err != nil {
		return nil, err
	}
	return providers[m.Provider], nil
}

// ByName returns the provider implementation for a provider name.
func ByName(name string) (Provider, error) {
	p, ok := providers[ID(strings.ToLower(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// IDs returns the supported provider names in a fixed order.
func IDs() []ID {
	return []ID{OpenAI, Anthropic, Google}
}
