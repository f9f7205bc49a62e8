package target

import (
	"fmt"
	"strings"
)

// ResolutionError reports that every resolution branch was exhausted:
// no explicit target, no usable version note, and live detection
// failed or was unavailable. This is terminal for the current run.
type ResolutionError struct {
	// Port is the serial port live detection tried (or would have
	// tried).
	Port string
	// Err is the transport failure, if detection was attempted.
	Err error
}

func (e *ResolutionError) Error() string {
	msg := "unable to identify the chip type"
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg + "\n" +
		"Hint: use the --chip option to specify the chip type, or connect the board\n" +
		"and provide the --port option to have the chip type determined automatically."
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// UnsupportedTargetError reports a target name outside the supported
// set, typically from a bad --chip value.
type UnsupportedTargetError struct {
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("invalid target %q, supported targets: %s",
		e.Target, strings.Join(SupportedTargets(), ", "))
}

// DetectionError reports a failure while driving the detection tool.
type DetectionError struct {
	Port   string
	Output string
	Err    error
}

func (e *DetectionError) Error() string {
	msg := fmt.Sprintf("chip detection on %s failed", e.Port)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Output != "" {
		msg += "\noutput: " + e.Output
	}
	return msg
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}
