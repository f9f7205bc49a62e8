package elfcore

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildNote encodes one ELF note record with standard 4-byte padding.
func buildNote(name string, typ uint32, desc []byte) []byte {
	nameBytes := append([]byte(name), 0)
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(nameBytes)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(desc)))
	binary.LittleEndian.PutUint32(buf[8:12], typ)
	buf = append(buf, nameBytes...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	buf = append(buf, desc...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseNotes(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
		verify  func(t *testing.T, notes []NoteSection)
	}{
		{
			name: "two records",
			data: append(
				buildNote("TASK_INFO", 678, []byte{1, 2, 3, 4}),
				buildNote("EXTRA_INFO", 677, []byte{5, 6, 7, 8, 9, 10, 11, 12})...,
			),
			verify: func(t *testing.T, notes []NoteSection) {
				if len(notes) != 2 {
					t.Fatalf("got %d notes, want 2", len(notes))
				}
				if notes[0].Name != "TASK_INFO" || notes[0].Type != 678 {
					t.Errorf("note[0] = %q type %d", notes[0].Name, notes[0].Type)
				}
				if len(notes[0].Desc) != 4 {
					t.Errorf("note[0] desc len = %d, want 4", len(notes[0].Desc))
				}
				if notes[1].Name != "EXTRA_INFO" || len(notes[1].Desc) != 8 {
					t.Errorf("note[1] = %q desc len %d", notes[1].Name, len(notes[1].Desc))
				}
			},
		},
		{
			name: "unaligned desc is padded",
			data: buildNote("CORE", 1, []byte{0xAA, 0xBB, 0xCC}),
			verify: func(t *testing.T, notes []NoteSection) {
				if len(notes) != 1 {
					t.Fatalf("got %d notes, want 1", len(notes))
				}
				if len(notes[0].Desc) != 3 {
					t.Errorf("desc len = %d, want 3", len(notes[0].Desc))
				}
			},
		},
		{
			name: "name overruns segment",
			data: func() []byte {
				b := make([]byte, 12)
				binary.LittleEndian.PutUint32(b[0:4], 100) // namesz beyond end
				return b
			}(),
			wantErr: true,
		},
		{
			name: "desc overruns segment",
			data: func() []byte {
				b := make([]byte, 16)
				binary.LittleEndian.PutUint32(b[0:4], 4)
				binary.LittleEndian.PutUint32(b[4:8], 100) // descsz beyond end
				binary.LittleEndian.PutUint32(b[8:12], 1)
				return b
			}(),
			wantErr: true,
		},
		{
			name: "empty segment",
			data: nil,
			verify: func(t *testing.T, notes []NoteSection) {
				if len(notes) != 0 {
					t.Errorf("got %d notes, want 0", len(notes))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes, err := parseNotes(tt.data, binary.LittleEndian)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseNotes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.verify != nil {
				tt.verify(t, notes)
			}
		})
	}
}

func TestCheckMachine(t *testing.T) {
	exe := &File{Path: "app.elf", Machine: elf.EM_XTENSA}
	core := &File{Path: "core.elf", Machine: elf.EM_RISCV}

	if err := CheckMachine(exe, exe); err != nil {
		t.Errorf("same machine should pass, got %v", err)
	}

	err := CheckMachine(exe, core)
	if err == nil {
		t.Fatal("mismatched machines should fail")
	}
	if _, ok := err.(*MachineMismatchError); !ok {
		t.Errorf("error type = %T, want *MachineMismatchError", err)
	}
}

func TestSectionAttrString(t *testing.T) {
	tests := []struct {
		name  string
		flags elf.SectionFlag
		want  string
	}{
		{"code", elf.SHF_ALLOC | elf.SHF_EXECINSTR, "R XA"},
		{"data", elf.SHF_ALLOC | elf.SHF_WRITE, "RW A"},
		{"rodata", elf.SHF_ALLOC, "R A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Section{Flags: tt.flags}.AttrString()
			if got != tt.want {
				t.Errorf("AttrString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmentAttrString(t *testing.T) {
	g := Segment{Flags: elf.PF_R | elf.PF_W}
	if got := g.AttrString(); got != "RW" {
		t.Errorf("AttrString() = %q, want RW", got)
	}
	x := Segment{Flags: elf.PF_R | elf.PF_X}
	if got := x.AttrString(); got != "R X" {
		t.Errorf("AttrString() = %q, want R X", got)
	}
	if !x.Executable() {
		t.Error("PF_X segment should be executable")
	}
}
