// Package setup provides the interactive pieces of stickycheese: masked key
// entry, a fuzzy model picker, the setup wizard and diagnostics.
package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jedarden/stickycheese/internal/provider"
)

// SecureInput is password-style masked input for one provider key.
type SecureInput struct {
	textInput textinput.Model
	provider  provider.ID
	prompt    string
	value     string
	submitted bool
	canceled  bool
}

var (
	securePromptStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	secureHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	validKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("76"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// keyPrefixes are the known key formats per provider.
var keyPrefixes = map[provider.ID][]string{
	provider.OpenAI:    {"sk-"},
	provider.Anthropic: {"sk-ant-"},
	provider.Google:    {"AIza"},
}

// NewSecureInput creates masked input for the key of provider id.
func NewSecureInput(id provider.ID, prompt string) *SecureInput {
	ti := textinput.New()
	ti.Placeholder = placeholder(id)
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50

	return &SecureInput{
		textInput: ti,
		provider:  id,
		prompt:    prompt,
	}
}

func placeholder(id provider.ID) string {
	if prefixes := keyPrefixes[id]; len(prefixes) > 0 {
		return prefixes[0] + "..."
	}
	return ""
}

// Init initializes the secure input.
func (s *SecureInput) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles input and updates the secure input state.
func (s *SecureInput) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "ctrl+c", "esc":
			s.canceled = true
			return s, tea.Quit

		case "enter":
			s.value = strings.TrimSpace(s.textInput.Value())
			s.submitted = true
			return s, tea.Quit
		}
	}

	var cmd tea.Cmd
	s.textInput, cmd = s.textInput.Update(msg)
	return s, cmd
}

// View renders the secure input.
func (s *SecureInput) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(securePromptStyle.Render(s.prompt))
	b.WriteString("\n\n  ")
	b.WriteString(s.textInput.View())
	b.WriteString("\n")

	value := s.textInput.Value()
	if len(value) > 4 {
		b.WriteString("\n")
		b.WriteString(secureHintStyle.Render("  Preview: " + MaskForDisplay(value)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case ValidKeyFormat(s.provider, value):
		b.WriteString(validKeyStyle.Render("  ✓ Key format looks valid"))
	case value != "":
		b.WriteString(warningStyle.Render(fmt.Sprintf("  Keys for this provider usually start with %q", placeholder(s.provider))))
	default:
		b.WriteString(secureHintStyle.Render("  Paste or type your API key"))
	}
	b.WriteString("\n\n")
	b.WriteString(secureHintStyle.Render("  Enter to confirm • Esc to skip"))
	b.WriteString("\n")

	return b.String()
}

// ValidKeyFormat reports whether key looks like a key for provider id.
func ValidKeyFormat(id provider.ID, key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < 10 {
		return false
	}
	for _, prefix := range keyPrefixes[id] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Value returns the entered value.
func (s *SecureInput) Value() string {
	return s.value
}

// Submitted returns true if the user pressed Enter.
func (s *SecureInput) Submitted() bool {
	return s.submitted
}

// Canceled returns true if the user pressed Esc or Ctrl+C.
func (s *SecureInput) Canceled() bool {
	return s.canceled
}

// RunSecureInput prompts for a provider key. It returns "" if the user skips.
func RunSecureInput(id provider.ID, prompt string) (string, error) {
	p := tea.NewProgram(NewSecureInput(id, prompt))
	m, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("error running secure input: %w", err)
	}

	result, ok := m.(*SecureInput)
	if !ok {
		return "", fmt.Errorf("unexpected model type")
	}
	if result.Canceled() {
		return "", nil
	}
	return result.Value(), nil
}

// WarnCLIAPIKey is shown when a key is passed on the command line.
func WarnCLIAPIKey() string {
	return warningStyle.Render(`
⚠️  Warning: API keys passed on the command line may be visible in shell history.

   Safer alternatives:
   • Set an environment variable: export OPENAI_API_KEY=sk-...
   • Put it in ~/.stickycheese/.env
   • Run: stickycheese setup

`)
}

// MaskForDisplay hides all but the last four characters of a key.
func MaskForDisplay(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("•", len(key))
	}
	return strings.Repeat("•", len(key)-4) + key[len(key)-4:]
}
