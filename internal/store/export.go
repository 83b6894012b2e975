package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedarden/stickycheese/pkg/models"
)

// ExportFormat selects the Export output.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportText ExportFormat = "text"
)

// exportTimeLayout is the timestamp layout of text exports.
const exportTimeLayout = "2006-01-02 15:04:05"

// Export renders a conversation as indented JSON or as readable text.
func (s *Store) Export(id string, format ExportFormat) (string, error) {
	c, err := s.Get(id)
	if err != nil {
		return "", err
	}

	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode conversation: %w", err)
		}
		return string(data), nil
	case ExportText:
		return exportText(c), nil
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}
}

func exportText(c Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", c.Title)
	if c.SystemPrompt != "" {
		fmt.Fprintf(&sb, "[System] %s\n\n", c.SystemPrompt)
	}
	for _, m := range c.Messages {
		fmt.Fprintf(&sb, "**%s** (%s):\n%s\n\n---\n\n",
			speaker(m), m.Timestamp.Local().Format(exportTimeLayout), m.Content)
	}
	return sb.String()
}

func speaker(m models.Message) string {
	if m.Role == models.RoleUser {
		return "You"
	}
	if m.Model != "" {
		return m.Model
	}
	return "Assistant"
}
