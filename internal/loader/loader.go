// Package loader turns the various core dump inputs into an ELF file
// on disk that the analysis can open.
//
// A core dump arrives in one of three shapes: an ELF file produced by
// a previous run or by the build system, a base64-encoded flash image
// captured from a log console, or the raw flash image itself. Flash
// images carry a small header and trailing checksum around the
// embedded ELF; the loader strips and verifies them.
package loader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// Format describes how the --core file is encoded.
type Format string

const (
	FormatELF Format = "elf"
	FormatRaw Format = "raw"
	FormatB64 Format = "b64"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// CoreFile is the resolved on-disk ELF core dump.
type CoreFile struct {
	// Path is the ELF file to hand to the analysis and GDB.
	Path string

	// Temp marks files created by the loader; the caller removes them
	// when the run finishes.
	Temp bool

	// Chip is the chip code from the flash image header, when the
	// input was a flash image. Nil otherwise.
	Chip *uint16
}

// FormatError reports an input that does not match its declared format.
type FormatError struct {
	Path   string
	Format Format
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s is not a valid %s core dump: %s", e.Path, e.Format, e.Reason)
}

// Load resolves the core dump at path into an ELF file. Temporary
// files are created in workDir (or the OS default when empty).
func Load(path string, format Format, workDir string) (*CoreFile, error) {
	switch format {
	case FormatELF:
		return loadELF(path)
	case FormatB64:
		return loadB64(path, workDir)
	case FormatRaw:
		return loadRaw(path, workDir)
	default:
		return nil, fmt.Errorf("unknown core format %q (want elf, raw or b64)", format)
	}
}

func loadELF(path string) (*CoreFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open core file: %w", err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil || !bytes.Equal(magic, elfMagic) {
		return nil, &FormatError{Path: path, Format: FormatELF, Reason: "missing ELF magic"}
	}
	return &CoreFile{Path: path}, nil
}

func loadB64(path string, workDir string) (*CoreFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open core file: %w", err)
	}
	defer f.Close()

	// The base64 decoder tolerates the newlines log consoles insert.
	data, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, f))
	if err != nil {
		return nil, &FormatError{Path: path, Format: FormatB64, Reason: err.Error()}
	}

	logging.Debug("decoded base64 core dump",
		zap.String("path", path),
		zap.Int("decoded_bytes", len(data)),
	)

	return materialize(path, FormatB64, data, workDir)
}

func loadRaw(path string, workDir string) (*CoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read core file: %w", err)
	}
	return materialize(path, FormatRaw, data, workDir)
}

// materialize writes decoded dump bytes out as a temporary ELF,
// stripping the flash image framing when present.
func materialize(srcPath string, format Format, data []byte, workDir string) (*CoreFile, error) {
	var chip *uint16

	if !bytes.HasPrefix(data, elfMagic) {
		image, err := ParseImage(data)
		if err != nil {
			return nil, &FormatError{Path: srcPath, Format: format, Reason: err.Error()}
		}
		data = image.ELF
		c := image.Header.Chip()
		chip = &c
	}

	tmp, err := os.CreateTemp(workDir, "espcore-*.elf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary core file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write temporary core file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to close temporary core file: %w", err)
	}

	logging.Debug("materialized core ELF",
		zap.String("source", srcPath),
		zap.String("core", tmp.Name()),
		zap.Int("bytes", len(data)),
	)

	return &CoreFile{Path: tmp.Name(), Temp: true, Chip: chip}, nil
}
