package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ListGoogleModels asks the Gemini API which models support content
// generation. The result is not merged into the static registry; it is for
// display only.
func ListGoogleModels(ctx context.Context, apiKey string) ([]ModelDescriptor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	var models []ModelDescriptor
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
		if !supportsGenerate(m.SupportedActions) {
			continue
		}

		d := ModelDescriptor{
			ID:       strings.TrimPrefix(m.Name, "models/"),
			Name:     m.DisplayName,
			Provider: Google,
		}
		if known, err := Lookup(d.ID); err == nil {
			d.SupportsVision = known.SupportsVision
		}
		models = append(models, d)
	}
	return models, nil
}

func supportsGenerate(actions []string) bool {
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}
