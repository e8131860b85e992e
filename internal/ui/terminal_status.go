package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#be95ff"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#42be65"))
	pendingStyle  = lipgloss.NewStyle().Faint(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff7eb6"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#33b1ff"))
)

// TerminalStatus prints queue status snapshots to a terminal. Identical
// consecutive snapshots are printed once. Colors are only used when the
// output is a TTY.
type TerminalStatus struct {
	out    io.Writer
	styled bool

	mu   sync.Mutex
	last string
}

// NewTerminalStatus creates a printer writing to out
func NewTerminalStatus(out io.Writer) *TerminalStatus {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &TerminalStatus{out: out, styled: styled}
}

// OnStatus implements domain.StatusListener
func (t *TerminalStatus) OnStatus(lines []string) {
	rendered := t.Render(lines)

	t.mu.Lock()
	defer t.mu.Unlock()
	if rendered == t.last {
		return
	}
	t.last = rendered
	fmt.Fprintln(t.out, rendered)
}

// OnDirectoryChange implements domain.StatusListener
func (t *TerminalStatus) OnDirectoryChange(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "Working directory: %s\n", t.style(pathStyle, path))
}

// Render formats a status snapshot. The first line is the header, the
// rest are indented episode lines.
func (t *TerminalStatus) Render(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(t.style(headerStyle, lines[0]))
	for _, line := range lines[1:] {
		b.WriteString("\n  ")
		b.WriteString(t.style(lineStyle(line), line))
	}
	return b.String()
}

func (t *TerminalStatus) style(s lipgloss.Style, text string) string {
	if !t.styled {
		return text
	}
	return s.Render(text)
}

func lineStyle(line string) lipgloss.Style {
	switch {
	case strings.HasSuffix(line, ": pending"):
		return pendingStyle
	case strings.Contains(line, "% of "):
		return progressStyle
	default:
		return failedStyle
	}
}
