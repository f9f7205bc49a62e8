// Package ui provides terminal UI components for the espcore CLI.
//
// This package uses Bubble Tea and Lipgloss to render polished terminal
// output around the analysis. The components follow a "run once and
// exit" pattern - they render output compellingly but don't require
// user interaction, except for the overwrite confirmation prompt.
//
// The package provides five component types:
//
//   - Header: Command banner showing operation name and parameters
//   - Result: Success/failure boxes with styled information
//   - GDBOutput: Raw GDB output box for verbose mode
//   - Spin: Animated spinner while GDB runs against the core
//   - ConfirmOverwrite: y/N prompt before replacing files
//
// When stdout is not a terminal (piped output, CI), the spinner and
// the confirmation prompt degrade gracefully: the spinner is skipped
// and overwrites are declined.
package ui
