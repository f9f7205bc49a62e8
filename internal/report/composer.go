// Package report composes the human-readable crash report from the
// extracted diagnostics, the reconciled memory map, and the parsed GDB
// output. It formats and annotates; every fact comes from the
// collaborators.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/muurk/espcore/internal/gdb/scripts"
	"github.com/muurk/espcore/internal/memmap"
	"github.com/muurk/espcore/internal/notes"
	"github.com/muurk/espcore/internal/ui"
)

// bannerWidth is the fixed width of the '=' banners framing the report.
const bannerWidth = 64

// Params carries everything the composer consumes. Overview is
// required; Snapshot, Tasks and Memory may be absent.
type Params struct {
	// Target is the resolved chip name, e.g. "esp32".
	Target string

	// Xtensa selects the exception-register rendering.
	Xtensa bool

	// Snapshot is the crash-time register dump, nil when the dump
	// carried no EXTRA_INFO note.
	Snapshot notes.RegisterSnapshot

	// Tasks are the per-task status records, in note order.
	Tasks []notes.TaskStatus

	// Overview is the parsed GDB crash overview.
	Overview *scripts.Result

	// Regions is the reconciled memory map.
	Regions []memmap.Region

	// Memory holds region hex dumps when --print-mem was given.
	Memory []scripts.MemoryContents
}

// Compose writes the full crash report to w.
func Compose(w io.Writer, p Params) error {
	target := strings.ToUpper(p.Target)

	fmt.Fprintln(w, strings.Repeat("=", bannerWidth))
	fmt.Fprintln(w, banner(target+" CORE DUMP START"))
	fmt.Fprintln(w)

	composeCrashedTask(w, p)

	fmt.Fprintln(w, sectionTitle("CURRENT THREAD REGISTERS"))
	composeRegisters(w, p)
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionTitle("CURRENT THREAD STACK"))
	for _, frame := range p.Overview.CurrentStack {
		fmt.Fprintln(w, frame)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionTitle("THREADS INFO"))
	composeThreads(w, p)
	fmt.Fprintln(w)

	for _, stack := range p.Overview.ThreadStacks {
		composeThreadStack(w, p, stack)
	}

	fmt.Fprintln(w, sectionTitle("ALL MEMORY REGIONS"))
	composeRegions(w, p.Regions)
	fmt.Fprintln(w)

	if len(p.Memory) > 0 {
		fmt.Fprintln(w, sectionTitle("CORE DUMP MEMORY CONTENTS"))
		composeMemory(w, p.Memory)
	}

	fmt.Fprintln(w, banner(target+" CORE DUMP END"))
	fmt.Fprintln(w, strings.Repeat("=", bannerWidth))
	return nil
}

// banner centers a title inside a '='-filled line.
func banner(title string) string {
	pad := bannerWidth - len(title) - 2
	if pad < 4 {
		pad = 4
	}
	left := pad / 2
	right := pad - left
	return strings.Repeat("=", left) + " " + title + " " + strings.Repeat("=", right)
}

func sectionTitle(title string) string {
	return ui.SectionTitleStyle.Render(banner(title))
}

func composeCrashedTask(w io.Writer, p Params) {
	if p.Snapshot == nil {
		fmt.Fprintln(w, ui.MutedTextStyle.Render("Crash-time register dump not found in core."))
		fmt.Fprintln(w)
		return
	}

	if p.Snapshot.CrashedTaskSkipped() {
		fmt.Fprintln(w, ui.CorruptWarningStyle.Render(
			"The crashed task's context was omitted from the dump."))
		fmt.Fprintln(w)
		return
	}

	line := fmt.Sprintf("Crashed task handle: 0x%x", p.Snapshot.Marker())
	if task, ok := taskByTCB(p.Tasks, p.Snapshot.Marker()); ok && task.Corrupted() {
		line += "  (TCB or stack flagged corrupted at capture time)"
		fmt.Fprintln(w, ui.CrashedTaskStyle.Render(line))
	} else {
		fmt.Fprintln(w, ui.CrashedTaskStyle.Render(line))
	}
	fmt.Fprintln(w)
}

func composeRegisters(w io.Writer, p Params) {
	if p.Xtensa && p.Snapshot != nil {
		for _, reg := range XtensaExceptionRegisters(p.Snapshot) {
			line := fmt.Sprintf("%-14s 0x%08x", reg.Name, reg.Value)
			if reg.Name == "EXCCAUSE" {
				line += fmt.Sprintf("  (%s)", ExccauseName(reg.Value))
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, reg := range p.Overview.Registers {
		line := fmt.Sprintf("%-14s 0x%-16x %s", reg.Name, reg.Value, reg.Annotation)
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func composeThreads(w io.Writer, p Params) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tTCB\tSTATUS\tTOP FRAME")
	for _, thread := range p.Overview.Threads {
		marker := " "
		if thread.Current {
			marker = "*"
		}
		status := "ok"
		if task, ok := taskByTCB(p.Tasks, uint32(thread.TCB)); ok && task.Corrupted() {
			status = corruptionLabel(task)
		}
		fmt.Fprintf(tw, "%s %d\t0x%x\t%s\t%s\n", marker, thread.ID, thread.TCB, status, thread.Frame)
	}
	tw.Flush()
}

func composeThreadStack(w io.Writer, p Params, stack scripts.ThreadStack) {
	fmt.Fprintln(w, sectionTitle(fmt.Sprintf("THREAD %d (TCB: 0x%x)", stack.ThreadID, stack.TCB)))
	if task, ok := taskByTCB(p.Tasks, uint32(stack.TCB)); ok && task.Corrupted() {
		fmt.Fprintln(w, ui.CorruptWarningStyle.Render(
			fmt.Sprintf("warning: %s, backtrace may be unreliable", corruptionLabel(task))))
	}
	for _, frame := range stack.Frames {
		fmt.Fprintln(w, frame)
	}
	fmt.Fprintln(w)
}

func composeRegions(w io.Writer, regions []memmap.Region) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tSIZE\tATTRS")
	var total uint64
	for _, r := range regions {
		total += r.Size
		fmt.Fprintf(tw, "%s\t0x%x\t0x%x\t%s\n", r.Name, r.Addr, r.Size, r.Attrs)
	}
	tw.Flush()
	fmt.Fprintln(w, ui.MutedTextStyle.Render(
		fmt.Sprintf("%d regions, %s total", len(regions), humanize.IBytes(total))))
}

func composeMemory(w io.Writer, memory []scripts.MemoryContents) {
	for _, m := range memory {
		fmt.Fprintln(w, ui.MutedTextStyle.Render(fmt.Sprintf("%s 0x%x", m.Name, m.Addr)))
		for _, line := range m.Lines {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
}

// taskByTCB finds the status record captured for a TCB address.
func taskByTCB(tasks []notes.TaskStatus, tcb uint32) (notes.TaskStatus, bool) {
	for _, t := range tasks {
		if t.TCBAddr == tcb {
			return t, true
		}
	}
	return notes.TaskStatus{}, false
}

func corruptionLabel(task notes.TaskStatus) string {
	switch {
	case task.Flags&notes.TaskStatusTCBCorrupted != 0:
		return "TCB corrupted"
	case task.Flags&notes.TaskStatusStackCorrupted != 0:
		return "stack corrupted"
	default:
		return "corrupted"
	}
}
