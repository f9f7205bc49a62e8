package scripts

import (
	"errors"
	"testing"
)

const dumpOutput = `
===MEM:.data:0x3ffb0000===
0x3ffb0000:	0x00000001	0x00000002	0x00000003	0x00000004
0x3ffb0010:	0xdeadbeef	0x00000000	0x00000000	0x00000000

===MEM:.coredump.tasks.data:0x3ffe0000===
0x3ffe0000:	0x40000000	0x3ffb1234	0x00000000	0x00000001

===DONE===
leftover gdb chatter after the last marker
`

func TestDumpMemoryParse(t *testing.T) {
	script := NewDumpMemoryScript([]RegionParam{
		{Name: ".data", Addr: 0x3FFB0000, Words: 8},
		{Name: ".coredump.tasks.data", Addr: 0x3FFE0000, Words: 4},
	})

	result, err := script.Parse(dumpOutput)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Memory) != 2 {
		t.Fatalf("got %d regions, want 2", len(result.Memory))
	}

	data := result.Memory[0]
	if data.Name != ".data" || data.Addr != 0x3FFB0000 {
		t.Errorf("memory[0] = %s@0x%x, want .data@0x3ffb0000", data.Name, data.Addr)
	}
	if len(data.Lines) != 2 {
		t.Errorf("got %d hex lines for .data, want 2", len(data.Lines))
	}

	tasks := result.Memory[1]
	if tasks.Name != ".coredump.tasks.data" || len(tasks.Lines) != 1 {
		t.Errorf("memory[1] = %+v, want one line of tasks data", tasks)
	}
}

func TestDumpMemoryParseRegionCountMismatch(t *testing.T) {
	script := NewDumpMemoryScript([]RegionParam{
		{Name: ".data", Addr: 0x3FFB0000, Words: 8},
		{Name: ".bss", Addr: 0x3FFC0000, Words: 8},
	})

	_, err := script.Parse("===MEM:.data:0x3ffb0000===\n0x3ffb0000:\t0x00000000\n===DONE===\n")
	if err == nil {
		t.Fatal("Parse() should fail when regions are missing from output")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("error type = %T, want *ParseError", err)
	}
}

func TestWordsForSize(t *testing.T) {
	tests := []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{0x1000, 0x400},
	}
	for _, tt := range tests {
		if got := WordsForSize(tt.size); got != tt.want {
			t.Errorf("WordsForSize(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
