// Package region models physical address ranges and builds the authoritative
// partition of physical memory that the memory manager is allowed to trust.
package region

import (
	"strconv"

	"github.com/dancrossnyc/hypatia/kernel/mm"
)

// Type classifies what occupies a Region.
type Type uint8

const (
	// RAM is memory that is free for general use.
	RAM Type = iota

	// Reserved memory must not be touched.
	Reserved

	// ACPI holds firmware tables that can be reclaimed once parsed.
	ACPI

	// NonVolatile memory must be preserved across hibernation.
	NonVolatile

	// Defective marks RAM that the firmware found to be bad.
	Defective

	// Loader is the image of the running kernel/loader.
	Loader

	// Module is a payload loaded by the boot loader.
	Module
)

// String implements fmt.Stringer for Type.
func (t Type) String() string {
	switch t {
	case RAM:
		return "RAM"
	case Reserved:
		return "reserved"
	case ACPI:
		return "ACPI"
	case NonVolatile:
		return "NVS"
	case Defective:
		return "defective"
	case Loader:
		return "loader"
	case Module:
		return "module"
	default:
		return "unknown"
	}
}

// Priority returns the rank of t when regions of different types claim the
// same addresses; the higher rank keeps the overlap. Ranks only ever grow
// with how dangerous it would be to hand the memory to the allocator:
//
//	RAM < ACPI < NonVolatile < Reserved < Defective < Module < Loader
//
// Ranges the kernel claimed for itself therefore always beat anything the
// firmware reported.
func (t Type) Priority() int {
	switch t {
	case RAM:
		return 0
	case ACPI:
		return 1
	case NonVolatile:
		return 2
	case Reserved:
		return 3
	case Defective:
		return 4
	case Module:
		return 5
	case Loader:
		return 6
	default:
		// Unknown types are never produced; rank them as reserved memory.
		return 3
	}
}

// Region is the half-open physical address interval [Start, End) tagged
// with the Type of its contents.
type Region struct {
	Start, End uint64
	Type       Type
}

// Size returns the length of the region in bytes.
func (r Region) Size() mm.Size {
	if r.End < r.Start {
		return 0
	}
	return mm.Size(r.End - r.Start)
}

// Empty returns true if the region covers no address.
func (r Region) Empty() bool {
	return r.End <= r.Start
}

// Overlaps returns true if r and other share at least one address. An empty
// region overlaps nothing.
func (r Region) Overlaps(other Region) bool {
	return !r.Empty() && !other.Empty() && r.Start < other.End && other.Start < r.End
}

// Frames returns the first and last page frame that fit entirely inside the
// region. Region boundaries need not be page aligned: the start is rounded up
// and the end rounded down. ok is false if no whole frame fits.
func (r Region) Frames() (first, last mm.Frame, ok bool) {
	pageSizeMinus1 := mm.PageSize - 1
	if r.Empty() || r.Start > ^pageSizeMinus1 {
		return mm.InvalidFrame, mm.InvalidFrame, false
	}

	start := (r.Start + pageSizeMinus1) & ^pageSizeMinus1
	end := r.End & ^pageSizeMinus1
	if end <= start {
		return mm.InvalidFrame, mm.InvalidFrame, false
	}

	return mm.FrameFromAddress(start), mm.FrameFromAddress(end) - 1, true
}

// String returns the region as "[0xstart - 0xend) type".
func (r Region) String() string {
	return "[0x" + strconv.FormatUint(r.Start, 16) + " - 0x" + strconv.FormatUint(r.End, 16) + ") " + r.Type.String()
}

// Total sums the sizes of all regions of type typ.
func Total(regions []Region, typ Type) mm.Size {
	var total mm.Size
	for _, r := range regions {
		if r.Type == typ {
			total += r.Size()
		}
	}
	return total
}
