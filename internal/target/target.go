// Package target decides which ESP chip a core dump belongs to.
//
// Resolution runs three branches in strict priority order: an explicit
// --chip value, the chip code recovered from the dump's version note,
// and finally live detection over the serial port. The result is
// resolved once per analysis run and treated as immutable afterwards.
package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// Auto is the --chip value that requests automatic resolution.
const Auto = "auto"

// Chip codes carried in the core dump version note.
const (
	ChipESP32   uint16 = 0x0000
	ChipESP32S2 uint16 = 0x0002
	ChipESP32C3 uint16 = 0x0005
	ChipESP32S3 uint16 = 0x0009
)

// chipNames maps version-note codes to target names. Unknown codes
// fall through to live detection rather than failing.
var chipNames = map[uint16]string{
	ChipESP32:   "esp32",
	ChipESP32S2: "esp32s2",
	ChipESP32C3: "esp32c3",
	ChipESP32S3: "esp32s3",
}

// XtensaTargets and RISCVTargets partition the supported chips by
// architecture family, which decides the GDB toolchain.
var (
	XtensaTargets = []string{"esp32", "esp32s2", "esp32s3"}
	RISCVTargets  = []string{"esp32c3"}
)

// SupportedTargets lists every accepted --chip value except Auto.
func SupportedTargets() []string {
	out := make([]string, 0, len(XtensaTargets)+len(RISCVTargets))
	out = append(out, XtensaTargets...)
	out = append(out, RISCVTargets...)
	return out
}

// Detector is the live chip-detection collaborator. Implementations
// talk to the device over a serial transport.
type Detector interface {
	DetectChip(ctx context.Context, port string, baud int) (string, error)
}

// Resolver resolves the analysis target once and caches the result.
type Resolver struct {
	// Explicit is the --chip value; anything other than "" or Auto
	// wins outright.
	Explicit string

	// Port and Baud parameterize live detection.
	Port string
	Baud int

	// Detector performs live detection when both the explicit value
	// and the version note are unavailable.
	Detector Detector

	resolved string
}

// Resolve returns the target name for this run. chipVersion is the
// code recovered from the dump's version note, or nil when the note
// was absent.
func (r *Resolver) Resolve(ctx context.Context, chipVersion *uint16) (string, error) {
	if r.resolved != "" {
		return r.resolved, nil
	}

	target, err := r.resolve(ctx, chipVersion)
	if err != nil {
		return "", err
	}
	r.resolved = target
	return target, nil
}

func (r *Resolver) resolve(ctx context.Context, chipVersion *uint16) (string, error) {
	if r.Explicit != "" && r.Explicit != Auto {
		logging.Debug("target supplied explicitly", zap.String("target", r.Explicit))
		return r.Explicit, nil
	}

	if chipVersion != nil {
		if name, ok := chipNames[*chipVersion]; ok {
			logging.Debug("target resolved from version note",
				zap.Uint16("chip_code", *chipVersion),
				zap.String("target", name),
			)
			return name, nil
		}
		logging.Warn("unknown chip code in version note, falling back to live detection",
			zap.Uint16("chip_code", *chipVersion),
		)
	}

	if r.Detector == nil {
		return "", &ResolutionError{Port: r.Port}
	}

	name, err := r.Detector.DetectChip(ctx, r.Port, r.Baud)
	if err != nil {
		return "", &ResolutionError{Port: r.Port, Err: err}
	}

	target := normalizeChipName(name)
	logging.Debug("target resolved by live detection",
		zap.String("raw", name),
		zap.String("target", target),
	)
	return target, nil
}

// normalizeChipName turns a detector-reported name like "ESP32-S3"
// into the canonical target form "esp32s3".
func normalizeChipName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "")
}

// IsXtensa reports whether the target uses the Xtensa architecture.
func IsXtensa(target string) bool {
	for _, t := range XtensaTargets {
		if t == target {
			return true
		}
	}
	return false
}

// IsRISCV reports whether the target uses the RISC-V architecture.
func IsRISCV(target string) bool {
	for _, t := range RISCVTargets {
		if t == target {
			return true
		}
	}
	return false
}

// GDBBinary returns the toolchain GDB for the target.
func GDBBinary(target string) (string, error) {
	switch {
	case IsXtensa(target):
		// xtensa-esp32s2-elf-gdb misbehaves on core files; the esp32
		// variant handles all Xtensa targets.
		return "xtensa-esp32-elf-gdb", nil
	case IsRISCV(target):
		return "riscv32-esp-elf-gdb", nil
	default:
		return "", &UnsupportedTargetError{Target: target}
	}
}

// DefaultRomELF returns the conventional ROM ELF filename for the
// target.
func DefaultRomELF(target string) string {
	return fmt.Sprintf("%s_rom.elf", target)
}
