package playground

import "github.com/charmbracelet/lipgloss"

// Colors used by the playground. Adaptive so both light and dark terminals
// stay readable.
var (
	textPrimaryColor = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#E6E6E6"}
	textMutedColor   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6E6E6E"}
	titleColor       = lipgloss.AdaptiveColor{Light: "#0B7A75", Dark: "#5FD7D7"}
	borderColor      = lipgloss.AdaptiveColor{Light: "#B0B0B0", Dark: "#4E4E4E"}
	focusColor       = lipgloss.AdaptiveColor{Light: "#005FD7", Dark: "#87AFFF"}
	errorColor       = lipgloss.AdaptiveColor{Light: "#C4161C", Dark: "#FF6B6B"}
	warningColor     = lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#FFCB6B"}
	successColor     = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#8BD49C"}
	infoColor        = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#82AAFF"}
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(titleColor).
			MarginBottom(1)

	labelStyle        = lipgloss.NewStyle().Foreground(textPrimaryColor)
	focusedLabelStyle = lipgloss.NewStyle().Foreground(focusColor).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle        = lipgloss.NewStyle().Foreground(textMutedColor)
	successStyle      = lipgloss.NewStyle().Foreground(successColor)
	loadingStyle      = lipgloss.NewStyle().Foreground(warningColor)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)
	busyButtonStyle = buttonStyle.
			Foreground(textMutedColor)
)
