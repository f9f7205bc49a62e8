// Package elfcore reads ESP executable and core dump ELF containers.
//
// It flattens the parts of debug/elf that the analysis needs: named
// allocatable sections from the program ELF, PT_LOAD segments with
// their captured bytes from the core ELF, and the note records carried
// in PT_NOTE segments. Interpretation of note payloads lives in the
// notes package; this package only hands out raw records.
package elfcore

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// Section is a named, logically-addressed section from the program ELF.
type Section struct {
	Name  string
	Addr  uint64
	Size  uint64
	Flags elf.SectionFlag
}

// AttrString renders section flags the way the report prints them,
// e.g. "RW A" for writable allocated data or "R XA" for code.
func (s Section) AttrString() string {
	var b strings.Builder
	b.WriteByte('R')
	if s.Flags&elf.SHF_WRITE != 0 {
		b.WriteByte('W')
	}
	b.WriteByte(' ')
	if s.Flags&elf.SHF_EXECINSTR != 0 {
		b.WriteByte('X')
	}
	if s.Flags&elf.SHF_ALLOC != 0 {
		b.WriteByte('A')
	}
	return strings.TrimRight(b.String(), " ")
}

// Segment is a PT_LOAD segment captured in the core dump.
type Segment struct {
	Addr  uint64
	Size  uint64
	Flags elf.ProgFlag
	Data  []byte
}

// Executable reports whether the segment carries executable bytes.
func (g Segment) Executable() bool {
	return g.Flags&elf.PF_X != 0
}

// AttrString renders segment flags, e.g. "RW" or "R X".
func (g Segment) AttrString() string {
	var b strings.Builder
	if g.Flags&elf.PF_R != 0 {
		b.WriteByte('R')
	}
	if g.Flags&elf.PF_W != 0 {
		b.WriteByte('W')
	}
	if g.Flags&elf.PF_X != 0 {
		b.WriteString(" X")
	}
	return b.String()
}

// NoteSection is one type-tagged record from a PT_NOTE segment.
// Name keeps any embedded NULs stripped from the end only; callers
// match on substrings.
type NoteSection struct {
	Type uint32
	Name string
	Desc []byte
}

// File is the flattened view of one ELF container.
type File struct {
	Path     string
	Machine  elf.Machine
	Sections []Section
	Segments []Segment
	Notes    []NoteSection
}

// MachineMismatchError reports that the executable and core dump were
// produced for different architectures. Reconciling across them would
// be meaningless, so the analysis refuses to proceed.
type MachineMismatchError struct {
	ExePath     string
	ExeMachine  elf.Machine
	CorePath    string
	CoreMachine elf.Machine
}

func (e *MachineMismatchError) Error() string {
	return fmt.Sprintf("architecture mismatch: executable %s is %s but core dump %s is %s",
		e.ExePath, e.ExeMachine, e.CorePath, e.CoreMachine)
}

// Open reads an ELF container and flattens its sections, load segments
// and note records.
func Open(path string) (*File, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF %s: %w", path, err)
	}
	defer ef.Close()

	f := &File{
		Path:    path,
		Machine: ef.Machine,
	}

	for _, sec := range ef.Sections {
		// Only allocatable sections occupy the runtime address space.
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
			continue
		}
		f.Sections = append(f.Sections, Section{
			Name:  sec.Name,
			Addr:  sec.Addr,
			Size:  sec.Size,
			Flags: sec.Flags,
		})
	}

	for _, prog := range ef.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			if prog.Filesz == 0 {
				continue
			}
			data, err := readProg(prog)
			if err != nil {
				return nil, fmt.Errorf("failed to read PT_LOAD segment at 0x%x in %s: %w", prog.Vaddr, path, err)
			}
			f.Segments = append(f.Segments, Segment{
				Addr:  prog.Vaddr,
				Size:  prog.Filesz,
				Flags: prog.Flags,
				Data:  data,
			})
		case elf.PT_NOTE:
			data, err := readProg(prog)
			if err != nil {
				return nil, fmt.Errorf("failed to read PT_NOTE segment in %s: %w", path, err)
			}
			notes, err := parseNotes(data, ef.ByteOrder)
			if err != nil {
				return nil, fmt.Errorf("failed to parse notes in %s: %w", path, err)
			}
			f.Notes = append(f.Notes, notes...)
		}
	}

	logging.Debug("opened ELF container",
		zap.String("path", path),
		zap.String("machine", f.Machine.String()),
		zap.Int("sections", len(f.Sections)),
		zap.Int("load_segments", len(f.Segments)),
		zap.Int("notes", len(f.Notes)),
	)

	return f, nil
}

// CheckMachine refuses to pair an executable and core dump built for
// different architectures.
func CheckMachine(exe, core *File) error {
	if exe.Machine != core.Machine {
		return &MachineMismatchError{
			ExePath:     exe.Path,
			ExeMachine:  exe.Machine,
			CorePath:    core.Path,
			CoreMachine: core.Machine,
		}
	}
	return nil
}

func readProg(prog *elf.Prog) ([]byte, error) {
	data := make([]byte, prog.Filesz)
	if _, err := io.ReadFull(prog.Open(), data); err != nil {
		return nil, err
	}
	return data, nil
}

// parseNotes decodes the standard ELF note record stream:
// namesz, descsz, type words followed by the name and descriptor,
// each padded to 4-byte alignment.
func parseNotes(data []byte, order binary.ByteOrder) ([]NoteSection, error) {
	var notes []NoteSection
	off := 0
	for off+12 <= len(data) {
		namesz := int(order.Uint32(data[off : off+4]))
		descsz := int(order.Uint32(data[off+4 : off+8]))
		typ := order.Uint32(data[off+8 : off+12])
		off += 12

		nameEnd := off + namesz
		if nameEnd > len(data) {
			return nil, fmt.Errorf("note name size %d overruns segment at offset %d", namesz, off)
		}
		name := string(bytes.TrimRight(data[off:nameEnd], "\x00"))
		off = align4(nameEnd)

		descEnd := off + descsz
		if descEnd > len(data) {
			return nil, fmt.Errorf("note desc size %d overruns segment at offset %d", descsz, off)
		}
		desc := make([]byte, descsz)
		copy(desc, data[off:descEnd])
		off = align4(descEnd)

		notes = append(notes, NoteSection{Type: typ, Name: name, Desc: desc})
	}
	return notes, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
