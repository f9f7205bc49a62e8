package scripts

import (
	_ "embed"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

//go:embed templates/overview.gdb.tmpl
var overviewTemplate string

// Marker lines emitted by the overview template to delimit sections.
const (
	markerRegisters    = "===REGISTERS==="
	markerCurrentStack = "===CURRENT-STACK==="
	markerThreads      = "===THREADS==="
	markerAllStacks    = "===ALL-STACKS==="
	markerDone         = "===DONE==="
)

// OverviewScript produces the crash overview: the crashed thread's
// registers and backtrace, the thread listing, and every thread's
// stack in one batch pass.
type OverviewScript struct {
	backtraceLimit int
}

// NewOverviewScript creates a crash overview script. backtraceLimit
// caps frames per backtrace; zero means unlimited.
func NewOverviewScript(backtraceLimit int) *OverviewScript {
	return &OverviewScript{backtraceLimit: backtraceLimit}
}

// Name returns the script name
func (s *OverviewScript) Name() string {
	return "overview"
}

// Template returns the embedded GDB script template
func (s *OverviewScript) Template() string {
	return overviewTemplate
}

// Params returns the template parameters
func (s *OverviewScript) Params() map[string]interface{} {
	return map[string]interface{}{
		"BacktraceLimit": s.backtraceLimit,
	}
}

// Streaming implements Script.Streaming.
// The overview is parsed, never shown raw.
func (s *OverviewScript) Streaming() bool {
	return false
}

// registerPattern matches one "info registers" line:
//
//	pc             0x400d1b4e          0x400d1b4e <app_main+30>
var registerPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9_.]*)\s+(0x[0-9a-fA-F]+)\s*(.*)$`)

// threadPattern matches one "info threads" line. The process number in
// the target id is the task's TCB address in decimal:
//
//	* 1    process 1073445164  0x400d1b4e in app_main () at main.c:12
var threadPattern = regexp.MustCompile(`^(\*)?\s*(\d+)\s+process\s+(\d+)\s*(.*)$`)

// stackHeaderPattern matches the per-thread header "thread apply all bt"
// prints before each backtrace:
//
//	Thread 2 (process 1073455560):
var stackHeaderPattern = regexp.MustCompile(`^Thread\s+(\d+)\s+\(process\s+(\d+)\):`)

// Parse splits the output on the section markers and decodes each
// section.
func (s *OverviewScript) Parse(output string) (*Result, error) {
	sections := splitSections(output)

	if _, ok := sections[markerRegisters]; !ok {
		return nil, &ParseError{
			Script: s.Name(),
			Field:  "registers",
			Output: output,
			Err:    errors.New("register section marker not found"),
		}
	}

	result := &Result{}

	for _, line := range sections[markerRegisters] {
		m := registerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, err := strconv.ParseUint(m[2], 0, 64)
		if err != nil {
			continue
		}
		result.Registers = append(result.Registers, Register{
			Name:       m[1],
			Value:      value,
			Annotation: strings.TrimSpace(m[3]),
		})
	}

	for _, line := range sections[markerCurrentStack] {
		if strings.HasPrefix(line, "#") {
			result.CurrentStack = append(result.CurrentStack, line)
		}
	}

	for _, line := range sections[markerThreads] {
		m := threadPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		tcb, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			continue
		}
		result.Threads = append(result.Threads, Thread{
			ID:      id,
			TCB:     tcb,
			Current: m[1] == "*",
			Frame:   strings.TrimSpace(m[4]),
		})
	}

	var current *ThreadStack
	for _, line := range sections[markerAllStacks] {
		if m := stackHeaderPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				result.ThreadStacks = append(result.ThreadStacks, *current)
			}
			id, _ := strconv.Atoi(m[1])
			tcb, _ := strconv.ParseUint(m[2], 10, 64)
			current = &ThreadStack{ThreadID: id, TCB: tcb}
			continue
		}
		if current != nil && strings.HasPrefix(line, "#") {
			current.Frames = append(current.Frames, line)
		}
	}
	if current != nil {
		result.ThreadStacks = append(result.ThreadStacks, *current)
	}

	return result, nil
}

// splitSections groups output lines under the most recent marker line.
func splitSections(output string) map[string][]string {
	sections := make(map[string][]string)
	var key string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "===") && strings.HasSuffix(trimmed, "===") {
			key = trimmed
			continue
		}
		if key == "" || key == markerDone {
			continue
		}
		sections[key] = append(sections[key], strings.TrimRight(line, "\r"))
	}
	return sections
}
