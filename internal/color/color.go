package color

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	Passed  = lipgloss.NewStyle().Foreground(ColorSuccess)
	Failed  = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	Errored = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	Skipped = lipgloss.NewStyle().Foreground(ColorMuted)
	Info    = lipgloss.NewStyle().Foreground(ColorInfo)
	Muted   = lipgloss.NewStyle().Foreground(ColorMuted)
	Title   = lipgloss.NewStyle().Bold(true)
)

const (
	IconPassed  = "✅"
	IconFailed  = "❌"
	IconError   = "💥"
	IconSkipped = "⏭️"
	IconUnknown = "❓"
)

// SafeIcon pads an icon so it does not swallow the following character:
// one space after a single-cell icon, two after a wide one.
func SafeIcon(icon string) string {
	spaces := 1
	if runewidth.StringWidth(icon) >= 2 {
		spaces = 2
	}
	return icon + strings.Repeat(" ", spaces)
}

// IconText formats an icon followed by text.
func IconText(icon, text string) string {
	return fmt.Sprintf("%s%s", SafeIcon(icon), text)
}

// PadRight pads s with spaces to width terminal cells. CJK characters count
// as two cells.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// Width is the number of terminal cells s occupies.
func Width(s string) int {
	return runewidth.StringWidth(s)
}
