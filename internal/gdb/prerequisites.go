package gdb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ValidateGDBPath checks if a specific GDB binary path is valid and
// executable. The binary is target-specific (xtensa-esp32-elf-gdb or
// riscv32-esp-elf-gdb), so the check runs after target resolution.
func ValidateGDBPath(ctx context.Context, gdbPath string) error {
	if gdbPath == "" {
		return &PrerequisiteError{
			Prerequisite: "gdb",
			Details:      "GDB path is empty",
		}
	}

	versionCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(versionCtx, gdbPath, "--version")
	output, err := cmd.Output()
	if err != nil {
		return &PrerequisiteError{
			Prerequisite: gdbPath,
			Details: fmt.Sprintf("Failed to execute %s --version\n"+
				"Install the ESP toolchain GDB, or point --gdb at an existing binary.", gdbPath),
			Err: err,
		}
	}

	// Verify it's actually GDB (check for "GNU gdb" in output)
	if !strings.Contains(string(output), "GNU gdb") {
		return &PrerequisiteError{
			Prerequisite: gdbPath,
			Details:      fmt.Sprintf("%s does not appear to be GNU GDB", gdbPath),
		}
	}

	return nil
}
