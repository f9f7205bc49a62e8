// Package gdb drives the cross GDB binary against a program/core pair
// for post-mortem analysis.
//
// This package renders batch GDB scripts, executes them with the
// target-specific binary (xtensa-esp32-elf-gdb or riscv32-esp-elf-gdb),
// and parses the output into structured results for the report
// composer. It also hands the terminal to a live GDB session for
// interactive debugging.
//
// # Architecture
//
// The package follows a script-based architecture where GDB operations
// are defined as template scripts that get parameterized and executed:
//
//	┌─────────────────┐
//	│ CLI Command     │
//	│ (espcore)       │
//	└────────┬────────┘
//	         │
//	         v
//	┌─────────────────┐
//	│ Script          │  Implements: Name(), Template(), Params(), Parse()
//	│ (Overview)      │
//	└────────┬────────┘
//	         │
//	         v
//	┌─────────────────┐
//	│ Executor        │  Renders template, executes GDB, cleans up
//	│ (GDB Runner)    │
//	└────────┬────────┘
//	         │
//	         v
//	┌─────────────────┐
//	│ Result          │  Registers, thread listing, backtraces, memory
//	└─────────────────┘
//
// # Core Components
//
// Executor: Runs GDB scripts via os/exec with timeout and error handling
//
//	config := gdb.Config{
//	    GDBPath: "xtensa-esp32-elf-gdb",
//	    Program: "app.elf",
//	    Core:    "core.elf",
//	    Timeout: 10 * time.Second,
//	}
//	executor := gdb.NewExecutor(config, logger)
//	result, err := executor.Execute(ctx, scripts.NewOverviewScript(0))
//
// Scripts are Go text templates embedded with //go:embed and rendered
// at execution time. Section markers (echo ===REGISTERS===\n) delimit
// the output for parsing.
//
// ROM symbols are loaded through Config.SymbolCommands, which run as
// -ex commands before any script so backtraces resolve ROM frames.
//
// # Error Handling
//
// The package defines specific error types for different failure modes:
//   - ExecutionError: GDB command failed (exit code, stderr)
//   - TimeoutError: batch script exceeded its deadline
//   - ParseError: output did not match the expected section format
//   - PrerequisiteError: GDB binary missing or not GNU GDB
//
// All errors include context and can be unwrapped with errors.Unwrap().
//
// # Prerequisites
//
// The target-specific GDB binary must be on PATH or named via --gdb.
// Use ValidateGDBPath() to check before operations.
package gdb
