package physwin

import (
	"math"
	"testing"
	"unsafe"
)

func TestWindowRead(t *testing.T) {
	physMem := make([]byte, 0x1000)
	for i := range physMem {
		physMem[i] = byte(i)
	}
	win := New(uintptr(unsafe.Pointer(&physMem[0])), uint64(len(physMem)))

	specs := []struct {
		phys, length uint64
		expErr       bool
	}{
		{0, 16, false},
		{0x10, 4, false},
		{0xffc, 4, false},
		{0x1000, 0, false},
		{0xffd, 4, true},
		{0x1000, 1, true},
		{math.MaxUint64 - 1, 4, true},
	}

	for specIndex, spec := range specs {
		view, err := win.Read(spec.phys, spec.length)
		if spec.expErr {
			if err != errUnmapped {
				t.Errorf("[spec %d] expected errUnmapped; got %v", specIndex, err)
			}
			continue
		}

		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if uint64(len(view)) != spec.length {
			t.Errorf("[spec %d] expected view length %d; got %d", specIndex, spec.length, len(view))
		}

		for i, b := range view {
			if exp := byte(spec.phys + uint64(i)); b != exp {
				t.Errorf("[spec %d] expected byte %d to be %d; got %d", specIndex, i, exp, b)
				break
			}
		}

		if got := win.PhysicalOf(view); got != spec.phys {
			t.Errorf("[spec %d] expected PhysicalOf to return 0x%x; got 0x%x", specIndex, spec.phys, got)
		}
	}
}

func TestWindowSharesMemory(t *testing.T) {
	physMem := make([]byte, 64)
	win := New(uintptr(unsafe.Pointer(&physMem[0])), uint64(len(physMem)))

	view, err := win.Read(8, 8)
	if err != nil {
		t.Fatal(err)
	}

	physMem[9] = 0xaa
	if view[1] != 0xaa {
		t.Fatal("expected the view to alias the underlying physical memory")
	}

	if win.base != uintptr(unsafe.Pointer(&physMem[0])) || win.Size() != 64 {
		t.Fatalf("unexpected window geometry: base 0x%x size %d", win.base, win.Size())
	}
}

func TestEmptyWindow(t *testing.T) {
	var nilWin *Window
	if _, err := nilWin.Read(0, 1); err != errUnmapped {
		t.Fatalf("expected errUnmapped for a nil window; got %v", err)
	}

	if _, err := New(0x1000, 0).Read(0, 0); err != errUnmapped {
		t.Fatalf("expected errUnmapped for a zero-sized window; got %v", err)
	}
}

func TestInit(t *testing.T) {
	defer func() {
		active = nil
	}()

	active = nil
	if Active() != nil {
		t.Fatal("expected Active to return nil before Init")
	}

	if err := Init(0xffff800000000000, 1<<30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if win := Active(); win == nil || win.base != 0xffff800000000000 || win.Size() != 1<<30 {
		t.Fatalf("unexpected active window: %+v", win)
	}

	if err := Init(0, 1); err != errAlreadyInitialized {
		t.Fatalf("expected errAlreadyInitialized; got %v", err)
	}
}

func TestRelease(t *testing.T) {
	win := New(0x1000, 0x1000)

	// releasing the zero address is a no-op
	win.Release(0)

	defer func() {
		if err := recover(); err != errNoRelease {
			t.Fatalf("expected Release to panic with errNoRelease; got %v", err)
		}
	}()

	win.Release(0x100000)
}

func TestOver(t *testing.T) {
	buf := []byte{0xde, 0xad, 0xbe, 0xef}
	win := Over(buf)

	view, err := win.Read(2, 2)
	if err != nil {
		t.Fatal(err)
	}

	if view[0] != 0xbe || view[1] != 0xef {
		t.Fatalf("unexpected view contents %x", view)
	}

	if got := win.PhysicalOf(view); got != 2 {
		t.Fatalf("expected PhysicalOf to return 2; got %d", got)
	}

	if _, err = Over(nil).Read(0, 1); err != errUnmapped {
		t.Fatalf("expected errUnmapped for an empty buffer; got %v", err)
	}
}
