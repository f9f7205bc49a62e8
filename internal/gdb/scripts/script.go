package scripts

import (
	"fmt"
	"time"
)

// Script represents a GDB batch operation against a program/core pair.
// All analysis passes (crash overview, memory dumps) implement this
// interface.
type Script interface {
	// Name returns a human-readable name for this script.
	// Used for logging, error messages and temp file names.
	Name() string

	// Template returns the GDB script template content.
	// The template uses Go text/template syntax and can access
	// parameters via the map returned by Params().
	Template() string

	// Params returns the parameters to be substituted into the template.
	Params() map[string]interface{}

	// Parse extracts structured results from GDB's stdout.
	Parse(output string) (*Result, error)

	// Streaming indicates whether this script should stream output in
	// real-time to the terminal instead of buffering it. Batch analysis
	// scripts return false.
	Streaming() bool
}

// Register is one entry of a GDB "info registers" listing.
type Register struct {
	Name  string
	Value uint64

	// Annotation is whatever GDB printed after the value, usually the
	// decimal form or a resolved symbol.
	Annotation string
}

// Thread is one entry of a GDB "info threads" listing. The process
// number in the target id is the task's TCB address.
type Thread struct {
	ID      int
	TCB     uint64
	Current bool

	// Frame is the topmost frame description from the listing.
	Frame string
}

// ThreadStack is one thread's backtrace.
type ThreadStack struct {
	ThreadID int
	TCB      uint64
	Frames   []string
}

// MemoryContents is a hex dump of one memory region.
type MemoryContents struct {
	Name  string
	Addr  uint64
	Lines []string
}

// Result represents the parsed outcome of executing a GDB script.
// Scripts fill in the fields they produce and leave the rest zero.
type Result struct {
	// Duration is how long the GDB script took to execute.
	Duration time.Duration

	// Registers from the crashed thread.
	Registers []Register

	// CurrentStack is the crashed thread's backtrace, one frame per line.
	CurrentStack []string

	// Threads is the full thread listing.
	Threads []Thread

	// ThreadStacks are the per-thread backtraces, in listing order.
	ThreadStacks []ThreadStack

	// Memory holds region hex dumps, for memory dump scripts.
	Memory []MemoryContents

	// RawOutput contains the complete stdout from GDB.
	// Useful for debugging parse errors.
	RawOutput string

	// RawStderr contains the complete stderr from GDB.
	RawStderr string
}

// ParseError represents a failure to parse GDB output.
// This occurs when the output doesn't match expected format or patterns.
type ParseError struct {
	// Script is the name of the script whose output failed to parse
	Script string
	// Field is the specific field that failed to parse
	Field string
	// Output is the GDB output that failed to parse
	Output string
	// Underlying error
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse GDB output for script %q, field %q: %v\n"+
		"Output: %s",
		e.Script, e.Field, e.Err, e.Output)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
