package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BYTE-6D65/tunedaemon/internal/daemon"
	"github.com/BYTE-6D65/tunedaemon/internal/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			PaddingLeft(2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F5F"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingTop(1).
			PaddingLeft(2)
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// model is the live status viewer's state: a periodically-refreshed
// snapshot of the daemon's shared pressure registry and diagnostics.
type model struct {
	d        *daemon.Daemon
	snapshot registry.Snapshot
	diag     map[string]any
	width    int
}

func initialModel(d *daemon.Daemon) model {
	return model{d: d, diag: map[string]any{}}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.snapshot = m.d.Pressure().Snapshot()
		diag := map[string]any{}
		for _, name := range m.d.Diagnostics().Components() {
			if v, ok := m.d.Diagnostics().Get(name); ok {
				diag[name] = v
			}
		}
		m.diag = diag
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tunedaemon — live regulation status"))
	b.WriteString("\n\n")

	b.WriteString(renderRow("cpu PSI", pct(m.snapshot.CPU)))
	b.WriteString(renderRow("memory PSI", pct(m.snapshot.Memory)))
	b.WriteString(renderRow("io PSI", pct(m.snapshot.IO)))
	b.WriteString(renderRow("io saturation", pct(m.snapshot.IOSaturation*100)))
	b.WriteString(renderRow("thermal damping", fmt.Sprintf("%.2f", m.snapshot.ThermalDamping)))

	names := make([]string, 0, len(m.diag))
	for name := range m.diag {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(renderRow(name, fmt.Sprintf("%+v", m.diag[name])))
	}

	body := b.String()
	if m.snapshot.ThermalDamping < 0.3 {
		body += "\n" + alertStyle.Render("thermal throttling active")
	}

	panel := panelStyle.Render(body)
	help := helpStyle.Render("q: quit")

	return panel + "\n" + help
}

func renderRow(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Width(18).Render(label), valueStyle.Render(value))
}

func pct(v float64) string {
	return fmt.Sprintf("%5.1f%%", v)
}

func startTUI(d *daemon.Daemon) error {
	p := tea.NewProgram(initialModel(d), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
