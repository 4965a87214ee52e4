// Package boot turns the information handed over by the boot loader into the
// memory layout consumed by the memory manager.
package boot

import (
	"io"

	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/hal/multiboot"
	"github.com/dancrossnyc/hypatia/kernel/kfmt"
	"github.com/dancrossnyc/hypatia/kernel/mm"
	"github.com/dancrossnyc/hypatia/kernel/mm/physwin"
	"github.com/dancrossnyc/hypatia/kernel/mm/region"
)

var (
	errNoWindow = &kernel.Error{Module: "boot", Message: "physical memory window not initialized"}

	// activeWindowFn is mocked by tests.
	activeWindowFn = physwin.Active

	bootPrefix = []byte("[boot] ")

	// bootWriter is package-level so that printing does not allocate.
	bootWriter kfmt.PrefixWriter
)

// InitInfo describes physical memory as seen by the kernel at boot.
type InitInfo struct {
	// MemoryRegions is the firmware memory map in firmware order.
	MemoryRegions []region.Region

	// Regions partitions every address covered by the firmware map, the
	// loader image and the modules. It is sorted and free of overlaps.
	Regions []region.Region

	// Modules lists the payloads loaded next to the kernel.
	Modules []multiboot.Module

	// CmdLine holds the parsed kernel command line, if one was supplied.
	CmdLine map[string]string

	// BootLoaderName is empty if the boot loader did not identify itself.
	BootLoaderName string

	win multiboot.Window
}

// ModuleRegion returns the physical range of Modules[index].
func (info *InitInfo) ModuleRegion(index int) region.Region {
	if info.win == nil {
		return region.Region{Type: region.Module}
	}
	return info.Modules[index].Region(info.win)
}

// Multiboot1 assembles an InitInfo from a Multiboot-1 information block.
type Multiboot1 struct {
	win  multiboot.Window
	info *multiboot.Info
}

// New decodes the information block at physical address infoPhys.
func New(win multiboot.Window, infoPhys uint64) (*Multiboot1, *kernel.Error) {
	info, err := multiboot.Parse(win, infoPhys)
	if err != nil {
		return nil, err
	}

	return &Multiboot1{win: win, info: info}, nil
}

// LoaderRegion returns the region occupied by the loaded kernel image.
func LoaderRegion(start, end uint64) region.Region {
	return region.Region{Start: start, End: end, Type: region.Loader}
}

// Info collects the firmware memory map and the module list and merges them
// with the loader region into a normalized partition of physical memory.
func (m *Multiboot1) Info(loader region.Region) (*InitInfo, *kernel.Error) {
	memRegions, err := m.info.MemoryRegions()
	if err != nil {
		return nil, err
	}

	modules, err := m.info.Modules()
	if err != nil {
		return nil, err
	}

	regions, err := region.Normalize(m.usedRegions(memRegions, loader, modules))
	if err != nil {
		return nil, err
	}

	info := &InitInfo{
		MemoryRegions: memRegions,
		Regions:       regions,
		Modules:       modules,
		CmdLine:       m.info.CmdLine(),
		win:           m.win,
	}
	info.BootLoaderName, _ = m.info.BootLoaderName()

	return info, nil
}

// usedRegions returns the firmware map followed by the loader and module
// regions.
func (m *Multiboot1) usedRegions(memRegions []region.Region, loader region.Region, modules []multiboot.Module) []region.Region {
	regions := make([]region.Region, 0, len(memRegions)+len(modules)+1)
	regions = append(regions, memRegions...)
	regions = append(regions, loader)
	for i := range modules {
		regions = append(regions, modules[i].Region(m.win))
	}
	return regions
}

// Init builds the InitInfo for the Multiboot-1 information block at infoPhys
// using the active physical window. The kernel image occupies
// [loaderStart, loaderEnd). Any failure is fatal.
func Init(infoPhys, loaderStart, loaderEnd uintptr) *InitInfo {
	kfmt.Printf("[boot] mbinfo: 0x%8x\n", infoPhys)

	win := activeWindowFn()
	if win == nil {
		panic(errNoWindow)
	}

	mb, err := New(win, uint64(infoPhys))
	if err != nil {
		panic(err)
	}

	info, err := mb.Info(LoaderRegion(uint64(loaderStart), uint64(loaderEnd)))
	if err != nil {
		panic(err)
	}

	PrintInitInfo(kfmt.GetOutputSink(), info)
	return info
}

// PrintInitInfo writes the firmware memory map, the module list and the
// normalized memory map to w.
func PrintInitInfo(w io.Writer, info *InitInfo) {
	bootWriter = kfmt.PrefixWriter{Sink: w, Prefix: bootPrefix}

	if info.BootLoaderName != "" {
		kfmt.Fprintf(&bootWriter, "boot loader: %s\n", info.BootLoaderName)
	}

	kfmt.Fprintf(&bootWriter, "system memory map:\n")
	printRegions(info.MemoryRegions)

	kfmt.Fprintf(&bootWriter, "modules: %d\n", len(info.Modules))
	for i := range info.Modules {
		r := info.ModuleRegion(i)
		name, ok := info.Modules[i].Name()
		if !ok {
			name = "<unnamed>"
		}
		kfmt.Fprintf(&bootWriter, "\t[0x%10x - 0x%10x], size: %10d, name: %s\n", r.Start, r.End, uint64(r.Size()), name)
	}

	kfmt.Fprintf(&bootWriter, "normalized memory map:\n")
	printRegions(info.Regions)

	var freeFrames uint64
	for _, r := range info.Regions {
		if r.Type != region.RAM {
			continue
		}
		if first, last, ok := r.Frames(); ok {
			freeFrames += uint64(last-first) + 1
		}
	}
	kfmt.Fprintf(&bootWriter, "free memory: %dKb in %d frames\n", uint64(region.Total(info.Regions, region.RAM)/mm.Kb), freeFrames)
}

func printRegions(regions []region.Region) {
	for _, r := range regions {
		kfmt.Fprintf(&bootWriter, "\t[0x%10x - 0x%10x], size: %10d, type: %s\n", r.Start, r.End, uint64(r.Size()), r.Type.String())
	}
}
