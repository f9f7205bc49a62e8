// Package notes decodes diagnostic records from core dump note sections.
//
// The ESP core dump format embeds diagnostics that plain memory
// segments cannot carry: a crash-time register dump (EXTRA_INFO), one
// status record per task (TASK_INFO), and the dump/chip version word
// (INFO). All fields are packed little-endian.
package notes

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/muurk/espcore/internal/elfcore"
	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// Note type tags written by the on-device core dump component.
const (
	TypeExtraInfo uint32 = 677
	TypeTaskInfo  uint32 = 678
	TypeInfo      uint32 = 8266
)

// Name markers embedded in note names alongside the type tags.
const (
	extraInfoMarker = "EXTRA_INFO"
	taskInfoMarker  = "TASK_INFO"
)

// CurrentTaskMarker is the sentinel stored instead of a task handle
// when the crashed task's own context was intentionally omitted from
// the dump.
const CurrentTaskMarker uint32 = 0xdeadbeef

// Task status flags. Anything other than TaskStatusCorrect means the
// capture found the task's bookkeeping damaged.
const (
	TaskStatusCorrect        uint32 = 0x00
	TaskStatusTCBCorrupted   uint32 = 0x01
	TaskStatusStackCorrupted uint32 = 0x02
)

// taskStatusSize is the fixed wire size of one TASK_INFO record.
const taskStatusSize = 16

// RegisterSnapshot is the crash-time register dump from an EXTRA_INFO
// note. Element 0 is the crashed-task marker; the remainder are
// (register index, value) pairs interpreted per architecture.
type RegisterSnapshot []uint32

// Marker returns the task-identifying first element.
func (s RegisterSnapshot) Marker() uint32 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// CrashedTaskSkipped reports whether the crashed task's context was
// intentionally omitted from the dump.
func (s RegisterSnapshot) CrashedTaskSkipped() bool {
	return s.Marker() == CurrentTaskMarker
}

// TaskStatus is one decoded TASK_INFO record. Index 0 corresponds to
// the currently-running (crashed) task, and indices map 1:1 to
// debugger-reported thread indices.
type TaskStatus struct {
	Index      uint32
	Flags      uint32
	TCBAddr    uint32
	StackStart uint32
}

// Corrupted reports whether the capture flagged this task's TCB or
// stack as damaged.
func (t TaskStatus) Corrupted() bool {
	return t.Flags != TaskStatusCorrect
}

func (t TaskStatus) String() string {
	return fmt.Sprintf("task #%d: flags, tcb, stack (%x, %x, %x)",
		t.Index, t.Flags, t.TCBAddr, t.StackStart)
}

// DecodeError reports a malformed note payload. Task records are
// indexed positionally downstream, so a bad record aborts the run
// instead of being skipped.
type DecodeError struct {
	Note   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s note: %s", e.Note, e.Reason)
}

// Extract scans the ordered note list once and returns the register
// snapshot (nil when absent; many dumps omit it) and the per-task
// status records in encounter order.
func Extract(sections []elfcore.NoteSection) (RegisterSnapshot, []TaskStatus, error) {
	var snapshot RegisterSnapshot
	var tasks []TaskStatus

	for _, sec := range sections {
		switch {
		case sec.Type == TypeExtraInfo && strings.Contains(sec.Name, extraInfoMarker):
			if snapshot != nil {
				continue // first matching note wins
			}
			logging.LogRawBytes("EXTRA_INFO payload", sec.Desc)
			snapshot = decodeSnapshot(sec.Desc)

		case sec.Type == TypeTaskInfo && strings.Contains(sec.Name, taskInfoMarker):
			logging.LogRawBytes("TASK_INFO payload", sec.Desc)
			task, err := decodeTaskStatus(sec.Desc)
			if err != nil {
				return nil, nil, err
			}
			tasks = append(tasks, task)
		}
	}

	logging.Debug("extracted diagnostics",
		zap.Bool("have_snapshot", snapshot != nil),
		zap.Int("tasks", len(tasks)),
	)

	return snapshot, tasks, nil
}

// ChipVersion returns the chip code recovered from the first INFO-typed
// note, if any. The payload starts with a little-endian version word
// laid out as (chip << 16) | dumpVersion; bytes 2 and 3 carry the chip
// code, bytes 0 and 1 the dump format version (unused here).
func ChipVersion(sections []elfcore.NoteSection) (uint16, bool) {
	for _, sec := range sections {
		if sec.Type != TypeInfo {
			continue
		}
		if len(sec.Desc) < 4 {
			continue
		}
		ver := uint16(sec.Desc[3])<<8 | uint16(sec.Desc[2])
		return ver, true
	}
	return 0, false
}

// decodeSnapshot treats the payload as packed little-endian 32-bit
// words. A trailing partial word is dropped, not an error.
func decodeSnapshot(desc []byte) RegisterSnapshot {
	words := len(desc) / 4
	snapshot := make(RegisterSnapshot, words)
	for i := 0; i < words; i++ {
		snapshot[i] = binary.LittleEndian.Uint32(desc[i*4 : i*4+4])
	}
	return snapshot
}

func decodeTaskStatus(desc []byte) (TaskStatus, error) {
	if len(desc) != taskStatusSize {
		return TaskStatus{}, &DecodeError{
			Note:   taskInfoMarker,
			Reason: fmt.Sprintf("payload is %d bytes, want %d", len(desc), taskStatusSize),
		}
	}
	return TaskStatus{
		Index:      binary.LittleEndian.Uint32(desc[0:4]),
		Flags:      binary.LittleEndian.Uint32(desc[4:8]),
		TCBAddr:    binary.LittleEndian.Uint32(desc[8:12]),
		StackStart: binary.LittleEndian.Uint32(desc[12:16]),
	}, nil
}
