package main

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/mm/physwin"
)

var errBelowImage = &kernel.Error{Module: "mbinspect", Message: "physical address is below the image base"}

// memoryImage is a read-only mapping of a physical memory dump. Byte i of the
// file holds physical address base+i.
type memoryImage struct {
	data []byte
	base uint64
	win  *physwin.Window
}

func openImage(path string, base uint64) (*memoryImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat image")
	}

	if fi.Size() == 0 {
		return nil, errors.Errorf("%s: image is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: mmap", path)
	}

	return &memoryImage{data: data, base: base, win: physwin.Over(data)}, nil
}

// Read implements multiboot.Window.
func (img *memoryImage) Read(phys, length uint64) ([]byte, *kernel.Error) {
	if phys < img.base {
		return nil, errBelowImage
	}
	return img.win.Read(phys-img.base, length)
}

// PhysicalOf implements multiboot.Window.
func (img *memoryImage) PhysicalOf(view []byte) uint64 {
	return img.win.PhysicalOf(view) + img.base
}

// Size returns the number of bytes in the image.
func (img *memoryImage) Size() uint64 {
	return img.win.Size()
}

// Close unmaps the image. Views obtained through Read become invalid.
func (img *memoryImage) Close() error {
	if img.data == nil {
		return nil
	}

	err := unix.Munmap(img.data)
	img.data = nil
	return errors.Wrap(err, "unmap image")
}
