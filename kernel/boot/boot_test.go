package boot

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"
	"unsafe"

	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/kfmt"
	"github.com/dancrossnyc/hypatia/kernel/mm/physwin"
	"github.com/dancrossnyc/hypatia/kernel/mm/region"
)

// Physical memory layout used by the tests. The module ends at the top of
// the fake physical memory.
const (
	infoAddr    = 0x1000
	mmapAddr    = 0x1100
	modsAddr    = 0x1200
	strAddr     = 0x1300
	modStart    = 0x300000
	modEnd      = 0x320000
	loaderStart = 0x100000
	loaderEnd   = 0x200000
)

const (
	flagMemory     uint32 = 1 << 0
	flagCmdLine    uint32 = 1 << 2
	flagModules    uint32 = 1 << 3
	flagMemoryMap  uint32 = 1 << 6
	flagLoaderName uint32 = 1 << 9
)

// scenarioMemoryMap is the firmware memory map of the boot image.
var scenarioMemoryMap = []struct {
	base, length uint64
	typ          uint32
}{
	{0, 0x9fc00, 1},
	{0x9fc00, 0x60400, 2},
	{0x100000, 0x7f00000, 1},
}

// bootImage builds a fake physical memory containing a Multiboot-1 info
// block with the scenario memory map and a single module.
func bootImage(mmapEntries int) (mem []byte, win *physwin.Window) {
	mem = make([]byte, modEnd)
	win = physwin.New(uintptr(unsafe.Pointer(&mem[0])), uint64(len(mem)))
	le := binary.LittleEndian

	addr := uint32(mmapAddr)
	for _, e := range scenarioMemoryMap[:mmapEntries] {
		le.PutUint32(mem[addr:], 20)
		le.PutUint64(mem[addr+4:], e.base)
		le.PutUint64(mem[addr+12:], e.length)
		le.PutUint32(mem[addr+20:], e.typ)
		addr += 24
	}

	copy(mem[strAddr:], "/boot/initrd.img\x00")
	copy(mem[strAddr+0x40:], "console=ttyS0 debug\x00")
	copy(mem[strAddr+0x80:], "GRUB 2.06\x00")

	le.PutUint32(mem[modsAddr:], modStart)
	le.PutUint32(mem[modsAddr+4:], modEnd)
	le.PutUint32(mem[modsAddr+8:], strAddr)

	le.PutUint32(mem[infoAddr:], flagMemory|flagCmdLine|flagModules|flagMemoryMap|flagLoaderName)
	le.PutUint32(mem[infoAddr+4:], 639)
	le.PutUint32(mem[infoAddr+8:], 129920)
	le.PutUint32(mem[infoAddr+16:], strAddr+0x40)
	le.PutUint32(mem[infoAddr+20:], 1)
	le.PutUint32(mem[infoAddr+24:], modsAddr)
	le.PutUint32(mem[infoAddr+44:], addr-mmapAddr)
	le.PutUint32(mem[infoAddr+48:], mmapAddr)
	le.PutUint32(mem[infoAddr+64:], strAddr+0x80)

	return mem, win
}

func TestInfo(t *testing.T) {
	mem, win := bootImage(len(scenarioMemoryMap))

	mb, err := New(win, infoAddr)
	if err != nil {
		t.Fatal(err)
	}

	info, err := mb.Info(LoaderRegion(loaderStart, loaderEnd))
	if err != nil {
		t.Fatal(err)
	}

	expMemRegions := []region.Region{
		{Start: 0, End: 0x9fc00, Type: region.RAM},
		{Start: 0x9fc00, End: 0x100000, Type: region.Reserved},
		{Start: 0x100000, End: 0x8000000, Type: region.RAM},
	}
	if !reflect.DeepEqual(info.MemoryRegions, expMemRegions) {
		t.Errorf("expected memory regions:\n%v\ngot:\n%v", expMemRegions, info.MemoryRegions)
	}

	expRegions := []region.Region{
		{Start: 0, End: 0x9fc00, Type: region.RAM},
		{Start: 0x9fc00, End: 0x100000, Type: region.Reserved},
		{Start: 0x100000, End: 0x200000, Type: region.Loader},
		{Start: 0x200000, End: 0x300000, Type: region.RAM},
		{Start: 0x300000, End: 0x320000, Type: region.Module},
		{Start: 0x320000, End: 0x8000000, Type: region.RAM},
	}
	if !reflect.DeepEqual(info.Regions, expRegions) {
		t.Errorf("expected normalized regions:\n%v\ngot:\n%v", expRegions, info.Regions)
	}

	if len(info.Modules) != 1 {
		t.Fatalf("expected 1 module; got %d", len(info.Modules))
	}

	if name, ok := info.Modules[0].Name(); !ok || name != "initrd.img" {
		t.Errorf("expected module name initrd.img; got (%q, %t)", name, ok)
	}

	if got, exp := info.ModuleRegion(0), (region.Region{Start: modStart, End: modEnd, Type: region.Module}); got != exp {
		t.Errorf("expected module region %v; got %v", exp, got)
	}

	if &info.Modules[0].Bytes[0] != &mem[modStart] {
		t.Error("expected module bytes to alias physical memory")
	}

	expCmdLine := map[string]string{"console": "ttyS0", "debug": "debug"}
	if !reflect.DeepEqual(info.CmdLine, expCmdLine) {
		t.Errorf("expected command line %v; got %v", expCmdLine, info.CmdLine)
	}

	if info.BootLoaderName != "GRUB 2.06" {
		t.Errorf("expected boot loader name %q; got %q", "GRUB 2.06", info.BootLoaderName)
	}
}

func TestInfoErrors(t *testing.T) {
	t.Run("unreadable info block", func(t *testing.T) {
		_, win := bootImage(len(scenarioMemoryMap))
		if _, err := New(win, modEnd); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("empty memory map", func(t *testing.T) {
		_, win := bootImage(0)
		mb, err := New(win, infoAddr)
		if err != nil {
			t.Fatal(err)
		}

		info, err := mb.Info(LoaderRegion(loaderStart, loaderEnd))
		if err == nil || err.Message != "memory map has no entries" {
			t.Fatalf("expected empty memory map error; got %v", err)
		}
		if info != nil {
			t.Fatal("expected no InitInfo on error")
		}
	})

	t.Run("module outside of physical memory", func(t *testing.T) {
		mem, win := bootImage(len(scenarioMemoryMap))
		binary.LittleEndian.PutUint32(mem[modsAddr+4:], modEnd+1)

		mb, err := New(win, infoAddr)
		if err != nil {
			t.Fatal(err)
		}

		if _, err = mb.Info(LoaderRegion(loaderStart, loaderEnd)); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestModuleRegionWithoutWindow(t *testing.T) {
	var info InitInfo
	if got := info.ModuleRegion(0); !got.Empty() || got.Type != region.Module {
		t.Fatalf("expected an empty module region; got %v", got)
	}
}

func mockActiveWindow(win *physwin.Window) func() {
	orig := activeWindowFn
	activeWindowFn = func() *physwin.Window { return win }
	return func() { activeWindowFn = orig }
}

func captureOutput() (*bytes.Buffer, func()) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	buf.Reset()
	return &buf, func() { kfmt.SetOutputSink(nil) }
}

func TestInit(t *testing.T) {
	_, win := bootImage(len(scenarioMemoryMap))
	defer mockActiveWindow(win)()
	buf, restore := captureOutput()
	defer restore()

	info := Init(infoAddr, loaderStart, loaderEnd)
	if len(info.Regions) != 6 {
		t.Fatalf("expected 6 normalized regions; got %d", len(info.Regions))
	}

	out := buf.String()
	if !strings.HasPrefix(out, "[boot] mbinfo: 0x00001000\n") {
		t.Fatalf("expected output to start with the info block address; got:\n%s", out)
	}

	for lineIndex, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if !strings.HasPrefix(line, "[boot] ") {
			t.Errorf("[line %d] expected line to be prefixed with [boot]; got %q", lineIndex, line)
		}
	}

	for _, exp := range []string{
		"[boot] \t[0x0000300000 - 0x0000320000], size:     131072, name: initrd.img\n",
		"[boot] \t[0x0000100000 - 0x0000200000], size:    1048576, type: loader\n",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out)
		}
	}
}

func TestInitFatal(t *testing.T) {
	specs := []struct {
		name   string
		win    func() *physwin.Window
		expErr string
	}{
		{
			"no physical window",
			func() *physwin.Window { return nil },
			errNoWindow.Message,
		},
		{
			"empty memory map",
			func() *physwin.Window {
				_, win := bootImage(0)
				return win
			},
			"memory map has no entries",
		},
	}

	for specIndex, spec := range specs {
		func() {
			defer mockActiveWindow(spec.win())()
			buf, restore := captureOutput()
			defer restore()

			defer func() {
				err, ok := recover().(*kernel.Error)
				if !ok || err.Message != spec.expErr {
					t.Errorf("[spec %d] %s: expected Init to panic with %q; got %v", specIndex, spec.name, spec.expErr, err)
				}

				if exp := "[boot] mbinfo: 0x00001000\n"; buf.String() != exp {
					t.Errorf("[spec %d] %s: expected no output besides %q; got %q", specIndex, spec.name, exp, buf.String())
				}
			}()

			Init(infoAddr, loaderStart, loaderEnd)
		}()
	}
}

func TestPrintInitInfo(t *testing.T) {
	regions := []region.Region{
		{Start: 0, End: 0x9fc00, Type: region.RAM},
		{Start: 0x9fc00, End: 0xa0000, Type: region.Reserved},
	}
	info := &InitInfo{
		MemoryRegions:  regions,
		Regions:        regions,
		BootLoaderName: "GRUB",
	}

	var buf bytes.Buffer
	PrintInitInfo(&buf, info)

	exp := "[boot] boot loader: GRUB\n" +
		"[boot] system memory map:\n" +
		"[boot] \t[0x0000000000 - 0x000009fc00], size:     654336, type: RAM\n" +
		"[boot] \t[0x000009fc00 - 0x00000a0000], size:       1024, type: reserved\n" +
		"[boot] modules: 0\n" +
		"[boot] normalized memory map:\n" +
		"[boot] \t[0x0000000000 - 0x000009fc00], size:     654336, type: RAM\n" +
		"[boot] \t[0x000009fc00 - 0x00000a0000], size:       1024, type: reserved\n" +
		"[boot] free memory: 639Kb in 159 frames\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected PrintInitInfo to generate the following output:\n%q\ngot:\n%q", exp, got)
	}
}
