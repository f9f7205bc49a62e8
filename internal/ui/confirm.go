package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmOverwrite asks before replacing an existing file. Returns
// true if the user confirmed. A non-interactive stdout declines,
// so scripted runs never clobber files silently.
func ConfirmOverwrite(path string) bool {
	if !IsTerminal() {
		return false
	}

	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)
	fmt.Print(promptStyle.Render(fmt.Sprintf("⚠  %s already exists. Overwrite? [y/N]: ", path)))

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}

	input = strings.ToLower(strings.TrimSpace(input))
	if input == "y" || input == "yes" {
		return true
	}

	cancelStyle := lipgloss.NewStyle().Foreground(MutedColor)
	fmt.Println(cancelStyle.Render("  Keeping existing file."))
	return false
}
