package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/muurk/espcore/internal/config"
)

// buildROMELF writes a minimal 32-bit little-endian ELF whose single
// allocatable section carries the given name and load address.
func buildROMELF(t *testing.T, secName string, addr uint32) string {
	t.Helper()

	shstrtab := append([]byte{0}, secName...)
	shstrtab = append(shstrtab, 0)
	strtabName := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab"...)
	shstrtab = append(shstrtab, 0)

	const (
		ehSize    = 52
		shEntSize = 40
		textOff   = ehSize
		textSize  = 4
	)
	strtabOff := textOff + textSize
	shOff := (strtabOff + len(shstrtab) + 3) &^ 3

	buf := make([]byte, shOff+3*shEntSize)
	le := binary.LittleEndian
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1}) // ELF32, LE, version 1
	le.PutUint16(buf[16:], 2)                       // ET_EXEC
	le.PutUint16(buf[18:], 94)                      // EM_XTENSA
	le.PutUint32(buf[20:], 1)
	le.PutUint32(buf[32:], uint32(shOff))
	le.PutUint16(buf[40:], ehSize)
	le.PutUint16(buf[46:], shEntSize)
	le.PutUint16(buf[48:], 3) // null, code, shstrtab
	le.PutUint16(buf[50:], 2)

	copy(buf[textOff:], []byte{0x36, 0x41, 0x00, 0x00})
	copy(buf[strtabOff:], shstrtab)

	sh := func(idx int, name, typ, flags, addr, off, size uint32) {
		base := shOff + idx*shEntSize
		le.PutUint32(buf[base:], name)
		le.PutUint32(buf[base+4:], typ)
		le.PutUint32(buf[base+8:], flags)
		le.PutUint32(buf[base+12:], addr)
		le.PutUint32(buf[base+16:], off)
		le.PutUint32(buf[base+20:], size)
		le.PutUint32(buf[base+32:], 1)
	}
	sh(1, 1, 1, 0x6, addr, textOff, textSize) // SHT_PROGBITS, ALLOC|EXECINSTR
	sh(2, strtabName, 3, 0, 0, uint32(strtabOff), uint32(len(shstrtab)))

	path := filepath.Join(t.TempDir(), "esp32_rom.elf")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write rom elf: %v", err)
	}
	return path
}

func TestRomSymbolCommandCarriesTextAddress(t *testing.T) {
	path := buildROMELF(t, ".text", 0x40000400)

	cmd, err := romSymbolCommand(path)
	if err != nil {
		t.Fatalf("romSymbolCommand() error = %v", err)
	}
	want := fmt.Sprintf("add-symbol-file %s 0x40000400", path)
	if cmd != want {
		t.Errorf("command = %q, want %q", cmd, want)
	}
}

func TestRomSymbolCommandWithoutTextSection(t *testing.T) {
	path := buildROMELF(t, ".data", 0x3ff00000)

	if _, err := romSymbolCommand(path); err == nil {
		t.Error("ROM ELF without .text should be rejected")
	}
}

func TestRomSymbolCommandsExplicitPath(t *testing.T) {
	romELF = buildROMELF(t, ".text", 0x40000000)
	defer func() { romELF = "" }()

	cmds := romSymbolCommands(config.Settings{}, "esp32")
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	want := fmt.Sprintf("add-symbol-file %s 0x40000000", romELF)
	if cmds[0] != want {
		t.Errorf("command = %q, want %q", cmds[0], want)
	}
}

func TestRomSymbolCommandsMissingROMELF(t *testing.T) {
	romELF = filepath.Join(t.TempDir(), "absent_rom.elf")
	defer func() { romELF = "" }()

	if cmds := romSymbolCommands(config.Settings{}, "esp32"); cmds != nil {
		t.Errorf("commands = %v, want nil", cmds)
	}
}

func TestRomSymbolCommandsDefaultLocation(t *testing.T) {
	path := buildROMELF(t, ".text", 0x40000000)

	cmds := romSymbolCommands(config.Settings{RomELFDir: filepath.Dir(path)}, "esp32")
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	want := fmt.Sprintf("add-symbol-file %s 0x40000000", path)
	if cmds[0] != want {
		t.Errorf("command = %q, want %q", cmds[0], want)
	}
}
