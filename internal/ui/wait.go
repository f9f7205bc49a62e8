package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// spinDoneMsg signals the background work finished.
type spinDoneMsg struct{}

// waitModel renders a spinner next to a message until the work is done.
type waitModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
}

func newWaitModel(message string) waitModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)
	return waitModel{spinner: s, message: message}
}

// Init implements tea.Model
func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinDoneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		// The work keeps running; keys only dismiss the spinner.
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

// View implements tea.Model
func (m waitModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("  %s %s...", m.spinner.View(), m.message)
}

// Spin runs fn while showing an animated spinner with the given
// message. When stdout is not a terminal the spinner is skipped and fn
// runs directly. fn's error is returned either way.
func Spin(message string, fn func() error) error {
	if !IsTerminal() {
		return fn()
	}

	p := tea.NewProgram(newWaitModel(message))

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
		p.Send(spinDoneMsg{})
	}()

	// A spinner render failure is cosmetic; the work's error wins.
	_, _ = p.Run()
	return <-errCh
}
