// Package physwin provides byte views of physical memory through the linear
// mapping that the loader sets up before entering the kernel.
//
// This is the only package that turns raw physical addresses into Go slices.
// Everything else consumes the views it hands out.
package physwin

import (
	"unsafe"

	"github.com/dancrossnyc/hypatia/kernel"
)

var (
	// active is the boot-time window. It is set once by Init and is not
	// safe for concurrent use; it only exists while the boot CPU runs the
	// memory discovery code.
	active *Window

	errUnmapped           = &kernel.Error{Module: "physwin", Message: "physical range is not covered by the window"}
	errAlreadyInitialized = &kernel.Error{Module: "physwin", Message: "window already initialized"}
	errNoRelease          = &kernel.Error{Module: "physwin", Message: "window memory cannot be released"}
)

// Window maps physical address p to virtual address base+p for every p below
// size.
type Window struct {
	base uintptr
	size uint64
}

// New returns a window over size bytes of physical memory mapped at base.
func New(base uintptr, size uint64) *Window {
	return &Window{base: base, size: size}
}

// Over returns a window whose physical address zero is buf[0]. Host tools
// use it to run the boot code over a memory image.
func Over(buf []byte) *Window {
	if len(buf) == 0 {
		return New(0, 0)
	}
	return New(uintptr(unsafe.Pointer(&buf[0])), uint64(len(buf)))
}

// Init installs the process-wide window. It must be called exactly once,
// before any other boot code asks for Active.
func Init(base uintptr, size uint64) *kernel.Error {
	if active != nil {
		return errAlreadyInitialized
	}

	active = New(base, size)
	return nil
}

// Active returns the window installed by Init or nil.
func Active() *Window {
	return active
}

// Size returns the number of physical bytes visible through the window.
func (w *Window) Size() uint64 {
	return w.size
}

// Read returns a view of length bytes starting at physical address phys. The
// view stays valid for as long as the mapping exists, which is the whole boot
// phase. Read fails if any part of the range lies outside the window.
func (w *Window) Read(phys, length uint64) ([]byte, *kernel.Error) {
	if w == nil || w.size == 0 {
		return nil, errUnmapped
	}

	end := phys + length
	if end < phys || end > w.size {
		return nil, errUnmapped
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(w.base+uintptr(phys))), int(length)), nil
}

// PhysicalOf returns the physical address of the first byte of view. The view
// must have been produced by Read on this window; no bounds check is done.
func (w *Window) PhysicalOf(view []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(view))) - w.base)
}

// Release rejects attempts to give memory back through the window. Metadata
// that the firmware placed in physical memory is reserved by the loader for
// the whole boot phase, so only the zero address is accepted.
func (w *Window) Release(phys uint64) {
	if phys != 0 {
		panic(errNoRelease)
	}
}
