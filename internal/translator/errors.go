package translator

import (
	"encoding/json"
	"fmt"

	"github.com/jedarden/stickycheese/pkg/models"
)

// ErrorMessage extracts a human-readable message from a failed response.
// A JSON error envelope wins; a body that is not JSON falls back to the HTTP
// status text; anything else yields "{label} API error: {code}".
func ErrorMessage(body []byte, statusText, label string, statusCode int) string {
	fallback := fmt.Sprintf("%s API error: %d", label, statusCode)

	var envelope models.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		if statusText != "" {
			return statusText
		}
		return fallback
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fallback
}
