package setup

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/jedarden/stickycheese/internal/provider"
)

// ErrCanceled is returned when the user cancels the picker or wizard.
var ErrCanceled = errors.New("setup canceled")

// ModelInfo is a pickable model.
type ModelInfo struct {
	provider.ModelDescriptor
	Ready bool // a key is configured for its provider
}

// FilterValue implements list.Item.
func (m ModelInfo) FilterValue() string { return m.ID + " " + m.Name }

// Title implements list.DefaultItem.
func (m ModelInfo) Title() string { return m.ID }

// Description implements list.DefaultItem.
func (m ModelInfo) Description() string {
	parts := []string{m.Name, string(m.Provider)}
	if m.SupportsVision {
		parts = append(parts, "vision")
	}
	if !m.Ready {
		parts = append(parts, "no key")
	}
	return strings.Join(parts, " · ")
}

// ModelInfos wraps descriptors, marking those whose provider has a key.
func ModelInfos(descs []provider.ModelDescriptor, hasKey func(provider.ID) bool) []ModelInfo {
	out := make([]ModelInfo, len(descs))
	for i, d := range descs {
		out[i] = ModelInfo{ModelDescriptor: d, Ready: hasKey != nil && hasKey(d.Provider)}
	}
	return out
}

// FilterModels fuzzy-matches query against model ids, names and providers,
// best match first. An empty query returns descs unchanged.
func FilterModels(query string, descs []provider.ModelDescriptor) []provider.ModelDescriptor {
	if strings.TrimSpace(query) == "" {
		return descs
	}
	sources := make([]string, len(descs))
	for i, d := range descs {
		sources[i] = d.ID + " " + d.Name + " " + string(d.Provider)
	}

	matches := fuzzy.Find(query, sources)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	out := make([]provider.ModelDescriptor, 0, len(matches))
	for _, match := range matches {
		out = append(out, descs[match.Index])
	}
	return out
}

// ModelPicker is a Bubble Tea model for fuzzy model selection.
type ModelPicker struct {
	list           list.Model
	filterInput    textinput.Model
	models         []ModelInfo
	filtered       []ModelInfo
	selected       *ModelInfo
	canceled       bool
	width          int
	current        string
	showHelp       bool
	lastFilterText string
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginLeft(2)

	paginationStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(4)

	filterPromptStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	filterLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				PaddingLeft(2)

	filterInputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(2)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(2)
)

// NewModelPicker creates a picker over models. current is the model in use,
// shown in the title.
func NewModelPicker(models []ModelInfo, current string) *ModelPicker {
	ti := textinput.New()
	ti.Placeholder = "Type to filter..."
	ti.Focus()
	ti.PromptStyle = filterPromptStyle
	ti.CharLimit = 50
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetSpacing(0)

	l := list.New(toItems(models), delegate, 0, 0)
	l.SetShowTitle(false)
	// The picker renders its own filter line.
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.Styles.PaginationStyle = paginationStyle
	l.SetSize(80, 16)

	for i, m := range models {
		if m.ID == current {
			l.Select(i)
		}
	}

	return &ModelPicker{
		list:        l,
		filterInput: ti,
		models:      models,
		filtered:    models,
		current:     current,
		width:       80,
	}
}

func toItems(models []ModelInfo) []list.Item {
	items := make([]list.Item, len(models))
	for i, m := range models {
		items[i] = m
	}
	return items
}

// Init initializes the model picker.
func (m *ModelPicker) Init() tea.Cmd {
	return nil
}

// Update handles input and updates the model picker state.
func (m *ModelPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.canceled = true
			return m, tea.Quit

		case "enter":
			if item, ok := m.list.SelectedItem().(ModelInfo); ok {
				m.selected = &item
				return m, tea.Quit
			}
			return m, nil

		case "?":
			m.showHelp = !m.showHelp
			return m, nil

		case "esc":
			if m.filterInput.Value() != "" {
				m.filterInput.SetValue("")
				m.applyFilter("")
				m.lastFilterText = ""
				return m, nil
			}
			m.canceled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)

	if current := m.filterInput.Value(); current != m.lastFilterText {
		m.applyFilter(current)
		m.lastFilterText = current
	}

	var listCmd tea.Cmd
	m.list, listCmd = m.list.Update(msg)

	return m, tea.Batch(cmd, listCmd)
}

func (m *ModelPicker) applyFilter(filter string) {
	descs := make([]provider.ModelDescriptor, len(m.models))
	byID := make(map[string]ModelInfo, len(m.models))
	for i, info := range m.models {
		descs[i] = info.ModelDescriptor
		byID[info.ID] = info
	}

	matched := FilterModels(filter, descs)
	filtered := make([]ModelInfo, len(matched))
	for i, d := range matched {
		filtered[i] = byID[d.ID]
	}
	m.list.SetItems(toItems(filtered))
	m.list.ResetSelected()
	m.filtered = filtered
}

// View renders the model picker.
func (m *ModelPicker) View() string {
	var b strings.Builder

	b.WriteString("\n")
	title := "Select a default model"
	if m.current != "" {
		title = fmt.Sprintf("Select a default model (current: %s)", m.current)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	filterText := m.filterInput.Value()
	b.WriteString(filterLabelStyle.Render("Filter: "))
	if filterText == "" {
		b.WriteString(cursorStyle.Render("▌"))
		b.WriteString(helpStyle.Render(" Type to filter..."))
	} else {
		b.WriteString(filterInputStyle.Render(filterText))
		b.WriteString(cursorStyle.Render("▌"))
	}
	b.WriteString("\n")

	separatorWidth := 50
	if m.width > 0 && m.width < 54 {
		separatorWidth = m.width - 4
	}
	b.WriteString(separatorStyle.Render(strings.Repeat("─", separatorWidth)))
	b.WriteString("\n")
	b.WriteString(m.list.View())
	b.WriteString("\n")

	switch {
	case filterText != "" && len(m.filtered) == 0:
		b.WriteString(countStyle.Render(fmt.Sprintf("No models match '%s'  •  Esc clears the filter", filterText)))
	case filterText != "":
		b.WriteString(countStyle.Render(fmt.Sprintf("Showing %d of %d models", len(m.filtered), len(m.models))))
	default:
		b.WriteString(countStyle.Render(fmt.Sprintf("%d models  •  Type to filter  •  ? for help", len(m.models))))
	}
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓       Navigate\n"))
		b.WriteString(helpStyle.Render("Enter     Select model\n"))
		b.WriteString(helpStyle.Render("Esc       Clear filter / Cancel\n"))
		b.WriteString(helpStyle.Render("Ctrl+C    Cancel\n"))
	}

	return b.String()
}

// Selected returns the selected model, or nil if none was chosen.
func (m *ModelPicker) Selected() *ModelInfo {
	return m.selected
}

// Canceled returns true if the user canceled the selection.
func (m *ModelPicker) Canceled() bool {
	return m.canceled
}

// RunModelPicker runs the picker and returns the chosen model id. It returns
// ErrCanceled if the user cancels.
func RunModelPicker(models []ModelInfo, current string) (string, error) {
	if len(models) == 0 {
		return "", fmt.Errorf("no models available")
	}

	p := tea.NewProgram(NewModelPicker(models, current), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("error running model picker: %w", err)
	}

	result := m.(*ModelPicker)
	if result.Canceled() {
		return "", ErrCanceled
	}
	if result.Selected() == nil {
		return "", ErrCanceled
	}
	return result.Selected().ID, nil
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	if fileInfo, err := os.Stdin.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}
