package gdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"github.com/muurk/espcore/internal/gdb/scripts"
	"go.uber.org/zap"
)

// Config holds the configuration for GDB execution against a
// program/core pair.
type Config struct {
	// GDBPath is the target-specific GDB binary.
	// Example: "xtensa-esp32-elf-gdb" (searches PATH)
	GDBPath string

	// Program is the program ELF with symbols.
	Program string

	// Core is the ELF core dump file.
	Core string

	// SymbolCommands are extra GDB commands run before any script,
	// typically loading ROM ELF symbols.
	SymbolCommands []string

	// Timeout is the maximum time to wait for a batch script.
	// Default: 10 seconds
	Timeout time.Duration

	// WorkDir is the working directory for temporary files.
	// Default: os.TempDir()
	WorkDir string
}

// Executor executes GDB scripts via os/exec.
type Executor struct {
	config Config
	logger *zap.Logger
}

// NewExecutor creates a new GDB executor with the given configuration.
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkDir == "" {
		config.WorkDir = os.TempDir()
	}
	return &Executor{
		config: config,
		logger: logger,
	}
}

// Execute runs a GDB script against the program/core pair and returns
// the parsed result. The script is rendered as a template, written to
// a temporary file, executed in batch mode, and parsed for results.
func (e *Executor) Execute(ctx context.Context, script scripts.Script) (*scripts.Result, error) {
	startTime := time.Now()

	e.logger.Info("executing GDB script",
		zap.String("script", script.Name()),
		zap.String("gdb_path", e.config.GDBPath),
		zap.String("program", e.config.Program),
		zap.String("core", e.config.Core),
		zap.Duration("timeout", e.config.Timeout),
	)

	rendered, err := e.renderTemplate(script)
	if err != nil {
		return nil, &TemplateError{
			Template: script.Name(),
			Err:      err,
		}
	}

	e.logger.Debug("rendered GDB script template",
		zap.String("script", script.Name()),
		zap.Int("size", len(rendered)),
		zap.String("content", rendered),
	)

	scriptFile, err := e.writeScriptFile(script.Name(), rendered)
	if err != nil {
		return nil, fmt.Errorf("failed to write script file: %w", err)
	}
	defer os.Remove(scriptFile)

	stdout, stderr, exitCode, err := e.executeGDB(ctx, scriptFile, script.Streaming())
	duration := time.Since(startTime)

	e.logger.Debug("GDB execution complete",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Int("exit_code", exitCode),
		zap.Int("stdout_size", len(stdout)),
		zap.Int("stderr_size", len(stderr)),
	)

	if err != nil {
		return nil, &ExecutionError{
			Script:   script.Name(),
			ExitCode: exitCode,
			Stderr:   stderr,
			Stdout:   stdout,
			Err:      err,
		}
	}

	if exitCode != 0 {
		return nil, &ExecutionError{
			Script:   script.Name(),
			ExitCode: exitCode,
			Stderr:   stderr,
			Stdout:   stdout,
		}
	}

	result, err := script.Parse(stdout)
	if err != nil {
		return nil, err
	}

	result.Duration = duration
	result.RawOutput = stdout
	result.RawStderr = stderr

	e.logger.Info("GDB script executed successfully",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Int("threads", len(result.Threads)),
	)

	return result, nil
}

// Interactive hands the terminal to a live GDB session on the
// program/core pair, for manual post-mortem inspection. It returns
// when the user exits GDB. No timeout applies.
func (e *Executor) Interactive(ctx context.Context) error {
	args := []string{"-nx"}
	for _, cmd := range e.config.SymbolCommands {
		args = append(args, "-ex", cmd)
	}
	args = append(args, e.config.Program, e.config.Core)

	e.logger.Info("starting interactive GDB session",
		zap.String("gdb_path", e.config.GDBPath),
		zap.Strings("args", args),
	)

	cmd := exec.CommandContext(ctx, e.config.GDBPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("interactive gdb session failed: %w", err)
	}
	return nil
}

// renderTemplate renders the script template with parameters.
func (e *Executor) renderTemplate(script scripts.Script) (string, error) {
	tmpl, err := template.New(script.Name()).Parse(script.Template())
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, script.Params()); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// writeScriptFile writes the rendered script to a temporary file.
func (e *Executor) writeScriptFile(name, content string) (string, error) {
	filename := fmt.Sprintf("espcore-gdb-%s-*.gdb", name)
	file, err := os.CreateTemp(e.config.WorkDir, filename)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write script content: %w", err)
	}

	return file.Name(), nil
}

// executeGDB runs GDB in batch mode with the given script file.
// Symbol commands precede the script so ROM symbols are in place
// before any backtrace runs. If streaming is true, output is piped to
// os.Stdout/os.Stderr in real-time as well as captured.
func (e *Executor) executeGDB(ctx context.Context, scriptFile string, streaming bool) (stdout, stderr string, exitCode int, err error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	// -batch: exit after processing the script
	// -nx: don't execute .gdbinit
	args := []string{"-batch", "-nx"}
	for _, cmd := range e.config.SymbolCommands {
		args = append(args, "-ex", cmd)
	}
	args = append(args, "-x", scriptFile, e.config.Program, e.config.Core)

	cmd := exec.CommandContext(timeoutCtx, e.config.GDBPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer

	if streaming {
		stdoutPipe, pipeErr := cmd.StdoutPipe()
		if pipeErr != nil {
			return "", "", -1, fmt.Errorf("failed to create stdout pipe: %w", pipeErr)
		}
		stderrPipe, pipeErr := cmd.StderrPipe()
		if pipeErr != nil {
			return "", "", -1, fmt.Errorf("failed to create stderr pipe: %w", pipeErr)
		}

		if startErr := cmd.Start(); startErr != nil {
			return "", "", -1, fmt.Errorf("failed to start GDB: %w", startErr)
		}

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			io.Copy(io.MultiWriter(&stdoutBuf, os.Stdout), stdoutPipe)
		}()

		go func() {
			defer wg.Done()
			io.Copy(io.MultiWriter(&stderrBuf, os.Stderr), stderrPipe)
		}()

		wg.Wait()
		err = cmd.Wait()
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
		err = cmd.Run()
	}

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if timeoutCtx.Err() == context.DeadlineExceeded {
		err = &TimeoutError{
			Script:  filepath.Base(scriptFile),
			Timeout: e.config.Timeout.String(),
		}
	}

	return stdout, stderr, exitCode, err
}

// ValidateConfig validates the executor configuration before any
// script runs.
func (e *Executor) ValidateConfig(ctx context.Context) error {
	return ValidateGDBPath(ctx, e.config.GDBPath)
}
