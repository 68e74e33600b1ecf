package playground

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/formflow/internal/log"
)

const (
	logPanelMaxHeight = 20 // Fixed viewport height in lines
	logPanelMinHeight = 5  // Minimum viewport height for very small screens
	logPanelMaxWidth  = 100
	logPanelMinWidth  = 40

	// logPanelChrome is title, two dividers, hint line and borders.
	logPanelChrome = 6
)

// logPanel shows the recent entries of the log ring buffer without leaving
// the playground.
type logPanel struct {
	visible  bool
	minLevel log.Level
	width    int
	height   int
	viewport viewport.Model
	ready    bool
}

func newLogPanel() logPanel {
	return logPanel{minLevel: log.LevelDebug}
}

// Update handles keys while the panel is visible. closed reports that the
// panel hid itself.
func (p logPanel) Update(msg tea.Msg) (panel logPanel, closed bool) {
	if !p.visible {
		return p, false
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			log.ClearBuffer()
			p.refresh()
		case "d":
			p.minLevel = log.LevelDebug
			p.refresh()
		case "i":
			p.minLevel = log.LevelInfo
			p.refresh()
		case "w":
			p.minLevel = log.LevelWarn
			p.refresh()
		case "e":
			p.minLevel = log.LevelError
			p.refresh()
		case "j", "down":
			if p.ready {
				p.viewport.ScrollDown(1)
			}
		case "k", "up":
			if p.ready {
				p.viewport.ScrollUp(1)
			}
		case "g":
			if p.ready {
				p.viewport.GotoTop()
			}
		case "G":
			if p.ready {
				p.viewport.GotoBottom()
			}
		case "ctrl+l", "esc":
			p.visible = false
			return p, true
		}
	}
	return p, false
}

func (p logPanel) boxWidth() int {
	return max(min(p.width-4, logPanelMaxWidth), logPanelMinWidth)
}

// View renders the panel box.
func (p logPanel) View() string {
	if !p.visible {
		return ""
	}

	boxWidth := p.boxWidth()
	contentWidth := boxWidth - 2

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		PaddingLeft(1).
		Render("Logs")
	divider := lipgloss.NewStyle().
		Foreground(borderColor).
		Render(strings.Repeat("─", boxWidth))

	content := p.content(contentWidth)
	if p.ready {
		content = p.viewport.View()
	}

	body := strings.Join([]string{header, divider, content, divider, p.hints()}, "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Width(boxWidth).
		Render(body)
}

// Place renders the panel centered in the terminal, replacing bg while
// visible.
func (p logPanel) Place(bg string) string {
	if !p.visible || p.width == 0 || p.height == 0 {
		return bg
	}
	return lipgloss.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, p.View())
}

func (p logPanel) entries() []log.Entry {
	var out []log.Entry
	for _, e := range log.GetRecentLogs(10000) {
		if e.Level >= p.minLevel {
			out = append(out, e)
		}
	}
	return out
}

func (p logPanel) content(width int) string {
	entries := p.entries()
	if len(entries) == 0 {
		return mutedStyle.Italic(true).Render("No logs to display")
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, colorizeEntry(e, width))
	}
	return strings.Join(lines, "\n")
}

func colorizeEntry(e log.Entry, width int) string {
	line := e.String()
	if ansi.StringWidth(line) > width {
		line = ansi.Truncate(line, width-3, "...")
	}

	var color lipgloss.TerminalColor
	switch e.Level {
	case log.LevelError:
		color = errorColor
	case log.LevelWarn:
		color = warningColor
	case log.LevelInfo:
		color = infoColor
	default:
		color = textMutedColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(line)
}

func (p *logPanel) initViewport() {
	if p.width == 0 || p.height == 0 {
		return
	}
	contentWidth := p.boxWidth() - 2
	height := max(min(logPanelMaxHeight, p.height-logPanelChrome), logPanelMinHeight)

	p.viewport = viewport.New(contentWidth, height)
	p.viewport.SetContent(p.content(contentWidth))
	p.viewport.GotoBottom()
	p.ready = true
}

func (p *logPanel) refresh() {
	if !p.ready {
		return
	}
	p.viewport.SetContent(p.content(p.boxWidth() - 2))
}

// Visible reports whether the panel is shown.
func (p logPanel) Visible() bool {
	return p.visible
}

// Toggle shows or hides the panel, reloading entries when shown.
func (p *logPanel) Toggle() {
	p.visible = !p.visible
	if !p.visible {
		return
	}
	if !p.ready {
		p.initViewport()
	}
	p.refresh()
	if p.ready {
		p.viewport.GotoBottom()
	}
}

// SetSize updates the terminal dimensions.
func (p *logPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.initViewport()
}

// hints renders the footer with the active level filter in bold.
func (p logPanel) hints() string {
	levels := []struct {
		key   string
		label string
		level log.Level
	}{
		{"d", "Debug", log.LevelDebug},
		{"i", "Info", log.LevelInfo},
		{"w", "Warn", log.LevelWarn},
		{"e", "Error", log.LevelError},
	}

	active := lipgloss.NewStyle().Foreground(textPrimaryColor).Bold(true)
	hints := []string{mutedStyle.Render("[c] Clear")}
	for _, l := range levels {
		text := "[" + l.key + "] " + l.label
		if p.minLevel == l.level {
			hints = append(hints, active.Render(text))
		} else {
			hints = append(hints, mutedStyle.Render(text))
		}
	}
	return strings.Join(hints, "  ")
}
