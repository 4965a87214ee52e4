// Package mm defines the address-space constants and the page frame type
// shared by the memory discovery code.
package mm

import "math"

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uint64(1 << PageShift)

	// PhysMapBase is the virtual address at which the loader maps physical
	// address zero. All of physical memory, up to PhysMapSize bytes, is
	// linearly mapped from here on.
	PhysMapBase = uintptr(0xffff800000000000)

	// PhysMapSize is the length of the linear physical memory mapping.
	PhysMapSize = uint64(512 * Gb)
)

// Frame describes a physical memory page index.
type Frame uint64

// InvalidFrame is returned when no frame fits the request.
const InvalidFrame = Frame(math.MaxUint64)

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uint64) Frame {
	return Frame(physAddr >> PageShift)
}
