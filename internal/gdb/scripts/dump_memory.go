package scripts

import (
	_ "embed"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

//go:embed templates/dump_memory.gdb.tmpl
var dumpMemoryTemplate string

// RegionParam describes one memory region to hex-dump.
type RegionParam struct {
	Name string
	Addr uint64
	// Words is the region length in 32-bit words.
	Words uint64
}

// DumpMemoryScript hex-dumps a set of memory regions from the core.
type DumpMemoryScript struct {
	regions []RegionParam
}

// NewDumpMemoryScript creates a memory dump script. size is rounded up
// to whole words per region.
func NewDumpMemoryScript(regions []RegionParam) *DumpMemoryScript {
	return &DumpMemoryScript{regions: regions}
}

// WordsForSize converts a byte length to the x/Nwx word count.
func WordsForSize(size uint64) uint64 {
	return (size + 3) / 4
}

// Name returns the script name
func (s *DumpMemoryScript) Name() string {
	return "dump_memory"
}

// Template returns the embedded GDB script template
func (s *DumpMemoryScript) Template() string {
	return dumpMemoryTemplate
}

// Params returns the template parameters
func (s *DumpMemoryScript) Params() map[string]interface{} {
	return map[string]interface{}{
		"Regions": s.regions,
	}
}

// Streaming implements Script.Streaming.
// Dumps are parsed and re-rendered, never shown raw.
func (s *DumpMemoryScript) Streaming() bool {
	return false
}

// memMarkerPattern matches the per-region marker the template emits:
//
//	===MEM:.coredump.tasks.data:0x3ffe0000===
var memMarkerPattern = regexp.MustCompile(`^===MEM:(.+):(0x[0-9a-fA-F]+)===$`)

// Parse collects the hex dump lines under each region marker.
func (s *DumpMemoryScript) Parse(output string) (*Result, error) {
	result := &Result{}
	var current *MemoryContents

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := memMarkerPattern.FindStringSubmatch(trimmed); m != nil {
			if current != nil {
				result.Memory = append(result.Memory, *current)
			}
			addr, err := strconv.ParseUint(m[2], 0, 64)
			if err != nil {
				return nil, &ParseError{
					Script: s.Name(),
					Field:  "region address",
					Output: trimmed,
					Err:    err,
				}
			}
			current = &MemoryContents{Name: m[1], Addr: addr}
			continue
		}
		if trimmed == markerDone {
			break
		}
		if current != nil && strings.HasPrefix(trimmed, "0x") {
			current.Lines = append(current.Lines, trimmed)
		}
	}
	if current != nil {
		result.Memory = append(result.Memory, *current)
	}

	if len(result.Memory) != len(s.regions) {
		return nil, &ParseError{
			Script: s.Name(),
			Field:  "regions",
			Output: output,
			Err:    errors.New("region count in output does not match request"),
		}
	}

	return result, nil
}
