package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// banner returns a section heading styled for w. Writers that are not a
// terminal get plain text.
func banner(w io.Writer, title string) string {
	r := lipgloss.NewRenderer(w)
	rule := strings.Repeat("─", 4)
	return r.NewStyle().
		Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "5", Dark: "13"}).
		Render(rule + " " + title + " " + rule)
}
