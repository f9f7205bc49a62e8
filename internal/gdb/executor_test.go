package gdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/espcore/internal/gdb/scripts"
	"go.uber.org/zap"
)

// mockScript implements scripts.Script for testing
type mockScript struct {
	name       string
	template   string
	params     map[string]interface{}
	parseError error
	streaming  bool
}

func (m *mockScript) Name() string {
	return m.name
}

func (m *mockScript) Template() string {
	return m.template
}

func (m *mockScript) Params() map[string]interface{} {
	return m.params
}

func (m *mockScript) Parse(output string) (*scripts.Result, error) {
	if m.parseError != nil {
		return nil, m.parseError
	}
	return &scripts.Result{}, nil
}

func (m *mockScript) Streaming() bool {
	return m.streaming
}

// writeMockGDB writes a shell script standing in for the GDB binary.
func writeMockGDB(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mock-gdb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to create mock GDB: %v", err)
	}
	return path
}

func testConfig(gdbPath, workDir string) Config {
	return Config{
		GDBPath: gdbPath,
		Program: "app.elf",
		Core:    "core.elf",
		Timeout: 10 * time.Second,
		WorkDir: workDir,
	}
}

func TestNewExecutorDefaults(t *testing.T) {
	executor := NewExecutor(Config{GDBPath: "gdb"}, zap.NewNop())

	if executor.config.Timeout != 10*time.Second {
		t.Errorf("default Timeout = %s, want 10s", executor.config.Timeout)
	}
	if executor.config.WorkDir != os.TempDir() {
		t.Errorf("default WorkDir = %s, want temp dir", executor.config.WorkDir)
	}
}

func TestExecutor_RenderTemplate(t *testing.T) {
	tests := []struct {
		name        string
		template    string
		params      map[string]interface{}
		expected    string
		expectError bool
	}{
		{
			name:     "simple template",
			template: "file {{.Program}}",
			params: map[string]interface{}{
				"Program": "app.elf",
			},
			expected: "file app.elf",
		},
		{
			name:     "range over regions",
			template: "{{range .Regions}}x/{{.Words}}wx {{printf \"%#x\" .Addr}}\n{{end}}",
			params: map[string]interface{}{
				"Regions": []scripts.RegionParam{
					{Name: ".data", Addr: 0x3FFB0000, Words: 4},
				},
			},
			expected: "x/4wx 0x3ffb0000\n",
		},
		{
			name:        "invalid template syntax",
			template:    "bt {{.Limit",
			params:      map[string]interface{}{},
			expectError: true,
		},
	}

	executor := NewExecutor(testConfig("gdb", ""), zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &mockScript{
				name:     "test",
				template: tt.template,
				params:   tt.params,
			}

			result, err := executor.renderTemplate(script)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestExecutor_WriteScriptFile(t *testing.T) {
	executor := NewExecutor(testConfig("gdb", t.TempDir()), zap.NewNop())

	content := "# GDB test script\nquit"
	filename, err := executor.writeScriptFile("test", content)
	if err != nil {
		t.Fatalf("writeScriptFile failed: %v", err)
	}
	defer func() { _ = os.Remove(filename) }()

	if !strings.Contains(filepath.Base(filename), "espcore-gdb-test") {
		t.Errorf("unexpected filename: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("failed to read script file: %v", err)
	}
	if string(data) != content {
		t.Errorf("expected content %q, got %q", content, string(data))
	}
}

func TestExecutor_Execute_TemplateError(t *testing.T) {
	executor := NewExecutor(testConfig("gdb", t.TempDir()), zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "Invalid {{.Template",
		params:   map[string]interface{}{},
	}

	_, err := executor.Execute(context.Background(), script)
	if err == nil {
		t.Fatal("expected template error, got nil")
	}

	var templateErr *TemplateError
	if !errors.As(err, &templateErr) {
		t.Errorf("expected TemplateError, got %T: %v", err, err)
	}
}

func TestExecutor_Execute_Success(t *testing.T) {
	tempDir := t.TempDir()
	mockGDB := writeMockGDB(t, tempDir, `echo "GDB mock output"
exit 0
`)

	executor := NewExecutor(testConfig(mockGDB, tempDir), zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "quit",
		params:   map[string]interface{}{},
	}

	result, err := executor.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Duration == 0 {
		t.Error("expected duration to be set")
	}
	if !strings.Contains(result.RawOutput, "GDB mock output") {
		t.Errorf("expected output to contain 'GDB mock output', got: %s", result.RawOutput)
	}
}

func TestExecutor_Execute_ScriptFileReceivesRendering(t *testing.T) {
	tempDir := t.TempDir()
	// Arguments: -batch -nx -x <file> <program> <core>
	mockGDB := writeMockGDB(t, tempDir, `cat "$4"
exit 0
`)

	executor := NewExecutor(testConfig(mockGDB, tempDir), zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "bt {{.Limit}}",
		params: map[string]interface{}{
			"Limit": 32,
		},
	}

	result, err := executor.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.RawOutput, "bt 32") {
		t.Errorf("expected rendered script in output, got: %s", result.RawOutput)
	}
}

func TestExecutor_Execute_SymbolCommandsPrecedeScript(t *testing.T) {
	tempDir := t.TempDir()
	mockGDB := writeMockGDB(t, tempDir, `echo "$@"
exit 0
`)

	config := testConfig(mockGDB, tempDir)
	config.SymbolCommands = []string{"add-symbol-file esp32_rom.elf"}
	executor := NewExecutor(config, zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "quit",
		params:   map[string]interface{}{},
	}

	result, err := executor.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args := result.RawOutput
	exPos := strings.Index(args, "add-symbol-file esp32_rom.elf")
	scriptPos := strings.Index(args, "-x")
	if exPos == -1 || scriptPos == -1 || exPos > scriptPos {
		t.Errorf("symbol command should precede the script file: %s", args)
	}
	if !strings.Contains(args, "app.elf core.elf") {
		t.Errorf("program and core should trail the arguments: %s", args)
	}
}

func TestExecutor_Execute_NonZeroExitCode(t *testing.T) {
	tempDir := t.TempDir()
	mockGDB := writeMockGDB(t, tempDir, `echo "Error occurred" >&2
exit 1
`)

	executor := NewExecutor(testConfig(mockGDB, tempDir), zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "quit",
		params:   map[string]interface{}{},
	}

	_, err := executor.Execute(context.Background(), script)
	if err == nil {
		t.Fatal("expected error for non-zero exit code, got nil")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("expected ExecutionError, got %T: %v", err, err)
	} else {
		if execErr.ExitCode != 1 {
			t.Errorf("expected exit code 1, got %d", execErr.ExitCode)
		}
		if !strings.Contains(execErr.Stderr, "Error occurred") {
			t.Errorf("expected stderr to contain 'Error occurred', got: %s", execErr.Stderr)
		}
	}
}

func TestExecutor_Execute_CommandNotFound(t *testing.T) {
	executor := NewExecutor(testConfig("/nonexistent/gdb/binary", t.TempDir()), zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "quit",
		params:   map[string]interface{}{},
	}

	_, err := executor.Execute(context.Background(), script)
	if err == nil {
		t.Fatal("expected error for nonexistent GDB binary, got nil")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("expected ExecutionError, got %T: %v", err, err)
	}
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	tempDir := t.TempDir()
	mockGDB := writeMockGDB(t, tempDir, `sleep 10
exit 0
`)

	config := testConfig(mockGDB, tempDir)
	config.Timeout = 100 * time.Millisecond
	executor := NewExecutor(config, zap.NewNop())

	script := &mockScript{
		name:     "test",
		template: "quit",
		params:   map[string]interface{}{},
	}

	_, err := executor.Execute(context.Background(), script)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestExecutor_Execute_ParseError(t *testing.T) {
	tempDir := t.TempDir()
	mockGDB := writeMockGDB(t, tempDir, `echo "GDB output"
exit 0
`)

	executor := NewExecutor(testConfig(mockGDB, tempDir), zap.NewNop())

	parseError := errors.New("parse failed")
	script := &mockScript{
		name:       "test",
		template:   "quit",
		params:     map[string]interface{}{},
		parseError: parseError,
	}

	_, err := executor.Execute(context.Background(), script)
	if !errors.Is(err, parseError) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidateGDBPath_Invalid(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"nonexistent binary", "/nonexistent/gdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGDBPath(context.Background(), tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var prereqErr *PrerequisiteError
			if !errors.As(err, &prereqErr) {
				t.Errorf("expected PrerequisiteError, got %T: %v", err, err)
			}
		})
	}
}

func TestValidateGDBPath_NotGDB(t *testing.T) {
	tempDir := t.TempDir()
	notGDB := writeMockGDB(t, tempDir, `echo "definitely not a debugger"
exit 0
`)

	err := ValidateGDBPath(context.Background(), notGDB)
	if err == nil {
		t.Fatal("expected error for non-GDB binary, got nil")
	}
	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Errorf("expected PrerequisiteError, got %T: %v", err, err)
	}
}
