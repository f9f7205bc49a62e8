// Package memmap reconciles the program ELF's named sections with the
// core dump's captured segments into one non-overlapping memory map.
//
// The program ELF describes named, logically-addressed sections with
// no knowledge of runtime segmentation; the core dump describes
// physically-captured byte ranges with no names. Reconciliation pairs
// them by spatial containment, because the dump format does not
// preserve section identity, only raw address ranges.
package memmap

import (
	"fmt"

	"github.com/muurk/espcore/internal/elfcore"
	"github.com/muurk/espcore/internal/logging"
	"go.uber.org/zap"
)

// Synthetic names for captured ranges with no corresponding section in
// the program ELF. Executable leftovers come from ROM; the rest are
// task control blocks and stacks, which the executable never names.
const (
	RomTextRegion   = ".coredump.rom.text"
	TasksDataRegion = ".coredump.tasks.data"
)

// Region is one entry of the reconciled memory map. Regions never
// overlap; their union need not cover the full executable or dump.
type Region struct {
	Name  string
	Addr  uint64
	Size  uint64
	Attrs string

	// Merged is true when the region is backed by both the program
	// ELF and the core dump, false for section-only and core-only
	// entries.
	Merged bool
}

func (r Region) String() string {
	return fmt.Sprintf("%s 0x%x 0x%x %s", r.Name, r.Addr, r.Size, r.Attrs)
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Addr + r.Size
}

// ValidationError reports a malformed address/length pair found before
// reconciliation begins. Reconciliation itself cannot fail once inputs
// are validated.
type ValidationError struct {
	Kind   string // "section" or "segment"
	Name   string
	Addr   uint64
	Size   uint64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid %s %s at 0x%x (size 0x%x): %s",
			e.Kind, e.Name, e.Addr, e.Size, e.Reason)
	}
	return fmt.Sprintf("invalid %s at 0x%x (size 0x%x): %s",
		e.Kind, e.Addr, e.Size, e.Reason)
}

// Reconcile merges the executable's sections against the core dump's
// segment pool and returns the combined memory map:
//
//   - Each section claims at most one overlapping segment (first match
//     in pool order); the merged region spans the union of the two
//     ranges.
//   - Sections with no captured counterpart are emitted unmerged at
//     their own address (code never captured, or excluded regions).
//   - Segments left unclaimed after all sections are processed are
//     core-only: ROM code when executable, task data otherwise.
//
// The segment pool is a stable snapshot with a claimed flag per entry;
// inputs are never mutated, so reconciling the same inputs twice
// yields identical output.
func Reconcile(sections []elfcore.Section, segments []elfcore.Segment) ([]Region, error) {
	if err := validate(sections, segments); err != nil {
		return nil, err
	}

	claimed := make([]bool, len(segments))
	regions := make([]Region, 0, len(sections)+len(segments))

	for _, sec := range sections {
		region, idx, ok := matchSegment(sec, segments, claimed)
		if ok {
			claimed[idx] = true
			regions = append(regions, region)
			continue
		}
		regions = append(regions, Region{
			Name:  sec.Name,
			Addr:  sec.Addr,
			Size:  sec.Size,
			Attrs: sec.AttrString(),
		})
	}

	for i, seg := range segments {
		if claimed[i] {
			continue
		}
		name := TasksDataRegion
		if seg.Executable() {
			name = RomTextRegion
		}
		regions = append(regions, Region{
			Name:  name,
			Addr:  seg.Addr,
			Size:  seg.Size,
			Attrs: seg.AttrString(),
		})
	}

	logging.Debug("reconciled memory map",
		zap.Int("sections", len(sections)),
		zap.Int("segments", len(segments)),
		zap.Int("regions", len(regions)),
	)

	return regions, nil
}

// matchSegment scans the pool in order for the first unclaimed segment
// overlapping the section and computes the merged span. A segment
// genuinely spanning two adjacent sections is attributed to whichever
// section is encountered first; it is never split across two merged
// regions.
func matchSegment(sec elfcore.Section, segments []elfcore.Segment, claimed []bool) (Region, int, bool) {
	secEnd := sec.Addr + sec.Size

	for i, seg := range segments {
		if claimed[i] {
			continue
		}
		segEnd := seg.Addr + seg.Size

		var start, end uint64
		switch {
		case seg.Addr <= sec.Addr && sec.Addr <= segEnd:
			// sec:    |XXXXXXXXXX|
			// seg: |...XXX.............|
			start = seg.Addr
			if segEnd <= secEnd {
				// seg ends inside the section: span to the section's end.
				end = secEnd
			} else {
				// seg extends past the section: span the whole segment.
				end = segEnd
			}

		case sec.Addr <= seg.Addr && seg.Addr <= secEnd:
			// sec: |XXXXXXXXXX|
			// seg:    |...XXX.............|
			start = sec.Addr
			if segEnd >= secEnd {
				// seg reaches past the section's end.
				end = segEnd
			} else {
				// seg fully inside: span the whole section.
				end = secEnd
			}

		default:
			continue
		}

		return Region{
			Name:   sec.Name,
			Addr:   start,
			Size:   end - start,
			Attrs:  sec.AttrString(),
			Merged: true,
		}, i, true
	}

	return Region{}, 0, false
}

func validate(sections []elfcore.Section, segments []elfcore.Segment) error {
	for _, sec := range sections {
		if sec.Size == 0 {
			return &ValidationError{Kind: "section", Name: sec.Name, Addr: sec.Addr, Reason: "zero length"}
		}
		if sec.Addr+sec.Size < sec.Addr {
			return &ValidationError{Kind: "section", Name: sec.Name, Addr: sec.Addr, Size: sec.Size, Reason: "address range wraps around"}
		}
	}
	for _, seg := range segments {
		if seg.Size == 0 {
			return &ValidationError{Kind: "segment", Addr: seg.Addr, Reason: "zero length"}
		}
		if seg.Addr+seg.Size < seg.Addr {
			return &ValidationError{Kind: "segment", Addr: seg.Addr, Size: seg.Size, Reason: "address range wraps around"}
		}
	}
	return nil
}
