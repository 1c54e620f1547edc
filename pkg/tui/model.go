// Package tui renders the live device snapshot in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"Sherpa/pkg/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SnapshotMsg carries a new snapshot into the program
type SnapshotMsg types.ConnectedDevicesSnapshot

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	row     lipgloss.Style
	dim     lipgloss.Style
	help    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111")).MarginTop(1),
		row:     lipgloss.NewStyle().PaddingLeft(2),
		dim:     lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("241")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
	}
}

// Model is the bubbletea model for the device view
type Model struct {
	snapshot types.ConnectedDevicesSnapshot
	changes  int
	updated  time.Time
	width    int
	styles   styles
	now      func() time.Time
}

// NewModel starts the view from initial
func NewModel(initial types.ConnectedDevicesSnapshot) Model {
	return Model{
		snapshot: initial.Clone(),
		styles:   newStyles(),
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle("Sherpa")
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case SnapshotMsg:
		m.snapshot = types.ConnectedDevicesSnapshot(msg).Clone()
		m.changes++
		m.updated = m.now()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("Sherpa  %d connected", m.snapshot.Count())
	if m.changes > 0 {
		header += fmt.Sprintf("  ·  %d changes, last at %s", m.changes, m.updated.Format("15:04:05"))
	}
	b.WriteString(m.styles.title.Render(header))
	b.WriteString("\n")

	android := func(d types.AndroidDevice) string {
		return strings.TrimSpace(fmt.Sprintf("%-24s %s", d.Serial, d.Model))
	}
	var rows []string
	for _, d := range m.snapshot.AndroidDevices {
		rows = append(rows, android(d))
	}
	m.section(&b, "Android devices", rows)

	rows = nil
	for _, d := range m.snapshot.AndroidEmulators {
		rows = append(rows, android(d))
	}
	m.section(&b, "Android emulators", rows)

	rows = nil
	for _, d := range m.snapshot.ApplePhysicalDevices {
		rows = append(rows, strings.TrimSpace(fmt.Sprintf("%-24s %s %s (%s)", d.Name, d.Model, d.OSVersion, d.Interface)))
	}
	m.section(&b, "Apple devices", rows)

	rows = nil
	for _, d := range m.snapshot.BootedSimulators {
		rows = append(rows, fmt.Sprintf("%-24s %s", d.Name, d.Identifier))
	}
	m.section(&b, "Booted simulators", rows)

	b.WriteString(m.styles.help.Render("q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) section(b *strings.Builder, title string, rows []string) {
	b.WriteString(m.styles.section.Render(title))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(m.styles.dim.Render("none"))
		b.WriteString("\n")
		return
	}
	for _, r := range rows {
		b.WriteString(m.styles.row.Render(r))
		b.WriteString("\n")
	}
}
