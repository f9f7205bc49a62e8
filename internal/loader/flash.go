package loader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// FlashLoader reads the core dump partition straight off the device
// flash via esptool when no --core file is given.
type FlashLoader struct {
	// Esptool is the esptool binary. Default: "esptool".
	Esptool string

	// Port and Baud select the serial transport.
	Port string
	Baud int

	// Offset is the flash offset of the core dump partition.
	Offset uint32

	// Timeout bounds each esptool invocation.
	Timeout time.Duration
}

// FlashError reports a failed flash read.
type FlashError struct {
	Port   string
	Output string
	Err    error
}

func (e *FlashError) Error() string {
	msg := fmt.Sprintf("failed to read core dump from flash on %s", e.Port)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Output != "" {
		msg += "\noutput: " + e.Output
	}
	return msg + "\nHint: check the device is connected and the --off value matches the coredump partition offset."
}

func (e *FlashError) Unwrap() error {
	return e.Err
}

// Load reads the image header to learn the dump size, reads the full
// image, then verifies and materializes it like a raw core file.
func (l *FlashLoader) Load(ctx context.Context, workDir string) (*CoreFile, error) {
	header, err := l.readFlash(ctx, workDir, l.Offset, imageHeaderSize)
	if err != nil {
		return nil, err
	}

	img, parseErr := peekHeader(header)
	if parseErr != nil {
		return nil, &FlashError{Port: l.Port, Err: parseErr}
	}

	logging.Debug("core dump partition header",
		zap.Uint32("data_len", img.DataLen),
		zap.Uint32("version", img.Version),
		zap.Uint32("tasks", img.TasksNum),
	)

	data, err := l.readFlash(ctx, workDir, l.Offset, img.DataLen)
	if err != nil {
		return nil, err
	}

	return materialize(fmt.Sprintf("flash@0x%x", l.Offset), FormatRaw, data, workDir)
}

// peekHeader decodes just the fixed header, without checksum checks.
func peekHeader(data []byte) (ImageHeader, error) {
	if len(data) < imageHeaderSize {
		return ImageHeader{}, &ImageError{Reason: "short read of image header"}
	}
	img, err := ParseImage(data)
	if err == nil {
		return img.Header, nil
	}
	// A header-only read cannot pass full validation; decode fields
	// directly instead.
	hdr := ImageHeader{
		DataLen:    le32(data[0:4]),
		Version:    le32(data[4:8]),
		TasksNum:   le32(data[8:12]),
		TCBSize:    le32(data[12:16]),
		MemSegsNum: le32(data[16:20]),
	}
	if hdr.DataLen < imageHeaderSize {
		return ImageHeader{}, &ImageError{Reason: fmt.Sprintf("implausible dump length %d in partition header", hdr.DataLen)}
	}
	return hdr, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (l *FlashLoader) readFlash(ctx context.Context, workDir string, offset, size uint32) ([]byte, error) {
	esptool := l.Esptool
	if esptool == "" {
		esptool = "esptool"
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	tmpDir, err := os.MkdirTemp(workDir, "espcore-flash-")
	if err != nil {
		return nil, fmt.Errorf("failed to create flash staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	outFile := filepath.Join(tmpDir, "partition.bin")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, esptool,
		"--port", l.Port,
		"--baud", fmt.Sprintf("%d", l.Baud),
		"read_flash",
		fmt.Sprintf("0x%x", offset),
		fmt.Sprintf("0x%x", size),
		outFile,
	)

	logging.Debug("reading flash",
		zap.String("esptool", esptool),
		zap.String("port", l.Port),
		zap.Uint32("offset", offset),
		zap.Uint32("size", size),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &FlashError{Port: l.Port, Output: strings.TrimSpace(string(output)), Err: err}
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, &FlashError{Port: l.Port, Err: err}
	}
	return data, nil
}
