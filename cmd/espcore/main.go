// Espcore analyzes ESP32-family core dumps.
//
// This utility parses a core dump captured by the on-device core dump
// component, pairs it with the program ELF, and drives the ESP
// toolchain GDB to produce a crash report:
//
//   - Crashed task identification and crash-time registers
//   - Per-task backtraces with corruption warnings
//   - A reconciled memory map of the program and the dump
//   - Interactive post-mortem GDB sessions
//
// Core dumps are accepted as ELF files, base64 console captures, raw
// flash images, or read straight off the device flash via esptool.
//
// Prerequisites:
//
//   - The target's toolchain GDB (xtensa-esp32-elf-gdb or
//     riscv32-esp-elf-gdb) installed and in PATH
//   - esptool, when reading flash or auto-detecting the chip
//
// See 'espcore --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/espcore/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "espcore",
	Short: "ESP32 Core Dump Analysis Utility",
	Long: `Post-mortem analysis of ESP32-family core dumps.

This utility pairs a core dump with its program ELF and produces a
crash report via the ESP toolchain GDB:
  - Crashed task and crash-time registers
  - Backtraces for every task, with corruption warnings
  - The reconciled memory map of program and dump
  - Interactive GDB sessions against the core

Core dump sources:
  - ELF core file (--core file.elf --core-format elf)
  - Base64 console capture (--core dump.b64 --core-format b64)
  - Raw flash image (--core dump.bin --core-format raw)
  - Device flash via esptool (no --core; uses --port and --off)

The target chip is taken from --chip, recovered from the dump itself,
or detected over serial, in that order.`,
	Version: version.Version,
	Example: `  # Analyze an ELF core dump
  espcore info --core core.elf app.elf

  # Analyze a base64 capture from the serial console log
  espcore info --core console.b64 --core-format b64 app.elf

  # Read the core dump off the device flash
  espcore info --port /dev/ttyUSB0 app.elf

  # Open an interactive GDB session on the core
  espcore dbg --core core.elf app.elf`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("espcore %s (commit: %s)\n", version.Version, version.Commit)
	},
}
