package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// GDBOutput represents a box for displaying raw GDB output.
// Used in verbose mode to show the actual GDB commands and responses.
type GDBOutput struct {
	Title    string
	Lines    []string
	Width    int
	MaxLines int // Maximum lines to display (0 = unlimited)
}

// NewGDBOutput creates a new GDB output box
func NewGDBOutput(content string) *GDBOutput {
	return &GDBOutput{
		Title: "GDB Output",
		Lines: strings.Split(strings.TrimRight(content, "\n"), "\n"),
		Width: GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (g *GDBOutput) SetWidth(width int) *GDBOutput {
	g.Width = width
	return g
}

// SetTitle sets a custom title for the box
func (g *GDBOutput) SetTitle(title string) *GDBOutput {
	g.Title = title
	return g
}

// SetMaxLines limits the number of lines displayed
func (g *GDBOutput) SetMaxLines(max int) *GDBOutput {
	g.MaxLines = max
	return g
}

// Render returns the styled GDB output box as a string
func (g *GDBOutput) Render() string {
	width := g.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	lines := g.Lines
	if g.MaxLines > 0 && len(lines) > g.MaxLines {
		lines = append(lines[:g.MaxLines:g.MaxLines], "... (output truncated)")
	}

	titleStyled := GDBOutputTitleStyle.Render(g.Title)
	contentStyled := GDBOutputContentStyle.Render(strings.Join(lines, "\n"))
	inner := lipgloss.JoinVertical(lipgloss.Left, titleStyled, "", contentStyled)

	boxWidth := width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(boxWidth).
		Padding(0, 1).
		MarginLeft(2).
		Render(inner)
}

// String implements fmt.Stringer
func (g *GDBOutput) String() string {
	return g.Render()
}
