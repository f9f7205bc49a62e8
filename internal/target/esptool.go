package target

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// chipLinePattern matches esptool's detection banner, e.g.
// "Chip is ESP32-S3 (revision v0.1)" or "Detecting chip type... ESP32".
var chipLinePattern = regexp.MustCompile(`(?m)^(?:Chip is|Detecting chip type\.*)\s+(ESP[0-9A-Za-z-]+)`)

// EsptoolDetector detects the connected chip by invoking the esptool
// binary over the serial transport.
type EsptoolDetector struct {
	// Path is the esptool binary. Default: "esptool" (searches PATH).
	Path string

	// Timeout bounds one detection attempt.
	Timeout time.Duration
}

// NewEsptoolDetector creates a detector with sensible defaults.
func NewEsptoolDetector(path string) *EsptoolDetector {
	if path == "" {
		path = "esptool"
	}
	return &EsptoolDetector{
		Path:    path,
		Timeout: 30 * time.Second,
	}
}

// DetectChip implements Detector by running `esptool chip_id` and
// parsing the detection banner from its output.
func (d *EsptoolDetector) DetectChip(ctx context.Context, port string, baud int) (string, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.Path,
		"--port", port,
		"--baud", fmt.Sprintf("%d", baud),
		"chip_id",
	)

	logging.Debug("running esptool chip detection",
		zap.String("esptool", d.Path),
		zap.String("port", port),
		zap.Int("baud", baud),
	)

	output, err := cmd.CombinedOutput()
	text := string(output)
	if err != nil {
		return "", &DetectionError{Port: port, Output: strings.TrimSpace(text), Err: err}
	}

	name, ok := parseChipName(text)
	if !ok {
		return "", &DetectionError{
			Port:   port,
			Output: strings.TrimSpace(text),
			Err:    fmt.Errorf("no chip type in esptool output"),
		}
	}
	return name, nil
}

func parseChipName(output string) (string, bool) {
	m := chipLinePattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}
