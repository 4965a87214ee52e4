// Package multiboot decodes the Multiboot-1 information block that a
// compliant boot loader leaves in physical memory.
//
// All firmware-supplied pointers are dereferenced through a Window so the
// package never touches raw memory itself.
package multiboot

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/mm/region"
)

// BootloaderMagic is the value a Multiboot-1 loader leaves in EAX.
const BootloaderMagic = 0x2badb002

const (
	// headerSize covers the info block up to and including apm_table.
	headerSize = 72

	// mmapEntryMinSize is the smallest valid value of an entry's size
	// field; the field itself is not included in it.
	mmapEntryMinSize = 20

	moduleEntrySize = 16

	// maxStringLen bounds the scan for the NUL terminator of
	// firmware-supplied strings.
	maxStringLen = 4096
)

type infoFlag uint32

// nolint
const (
	flagMemory infoFlag = 1 << iota
	flagBootDevice
	flagCmdLine
	flagModules
	flagAoutSyms
	flagElfSections
	flagMemoryMap
	flagDrives
	flagConfigTable
	flagBootLoaderName
	flagAPMTable
	flagVBE
	flagFramebuffer
)

var (
	errBadMagic           = &kernel.Error{Module: "multiboot", Message: "boot loader is not Multiboot-1 compliant"}
	errUnreadableInfo     = &kernel.Error{Module: "multiboot", Message: "info block is not readable"}
	errNoMemoryMap        = &kernel.Error{Module: "multiboot", Message: "boot loader did not supply a memory map"}
	errEmptyMemoryMap     = &kernel.Error{Module: "multiboot", Message: "memory map has no entries"}
	errMalformedMemoryMap = &kernel.Error{Module: "multiboot", Message: "malformed memory map entry"}
	errUnknownMemoryType  = &kernel.Error{Module: "multiboot", Message: "unsupported memory map entry type"}
	errNoModules          = &kernel.Error{Module: "multiboot", Message: "boot loader did not supply a module list"}
	errModuleTable        = &kernel.Error{Module: "multiboot", Message: "module table is not readable"}
	errModuleRange        = &kernel.Error{Module: "multiboot", Message: "module contents are not readable"}
	errUnterminatedString = &kernel.Error{Module: "multiboot", Message: "unterminated string"}
)

// Window gives access to physical memory. It is implemented by
// *physwin.Window.
type Window interface {
	// Read returns a view of length bytes at physical address phys.
	Read(phys, length uint64) ([]byte, *kernel.Error)

	// PhysicalOf maps a view returned by Read back to its physical
	// address.
	PhysicalOf(view []byte) uint64
}

// header is the fixed part of the information block. Field order and sizes
// follow the Multiboot-1 specification.
type header struct {
	Flags          uint32
	MemLower       uint32
	MemUpper       uint32
	BootDevice     uint32
	CmdLine        uint32
	ModsCount      uint32
	ModsAddr       uint32
	Syms           [4]uint32
	MmapLength     uint32
	MmapAddr       uint32
	DrivesLength   uint32
	DrivesAddr     uint32
	ConfigTable    uint32
	BootLoaderName uint32
	APMTable       uint32
}

func (h *header) has(flag infoFlag) bool {
	return infoFlag(h.Flags)&flag != 0
}

// MemoryEntryType is the type code of a memory map entry as reported by the
// firmware.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemDefective marks RAM modules that failed their self test.
	MemDefective
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	case MemDefective:
		return "defective"
	default:
		return "unknown"
	}
}

// RegionType maps t onto region.Type. Values outside the five types defined
// by Multiboot are rejected.
func (t MemoryEntryType) RegionType() (region.Type, *kernel.Error) {
	switch t {
	case MemAvailable:
		return region.RAM, nil
	case MemReserved:
		return region.Reserved, nil
	case MemAcpiReclaimable:
		return region.ACPI, nil
	case MemNvs:
		return region.NonVolatile, nil
	case MemDefective:
		return region.Defective, nil
	default:
		return region.Reserved, errUnknownMemoryType
	}
}

// Info is a decoded Multiboot-1 information block.
type Info struct {
	win Window
	hdr header
}

// CheckMagic verifies the value that the boot loader left in EAX. Any value
// other than BootloaderMagic means the info block cannot be trusted.
func CheckMagic(magic uint32) *kernel.Error {
	if magic != BootloaderMagic {
		return errBadMagic
	}
	return nil
}

// Parse decodes the fixed header of the information block located at
// physical address phys.
func Parse(win Window, phys uint64) (*Info, *kernel.Error) {
	buf, err := win.Read(phys, headerSize)
	if err != nil {
		return nil, errUnreadableInfo
	}

	info := &Info{win: win}
	if _, decodeErr := binary.Decode(buf, binary.LittleEndian, &info.hdr); decodeErr != nil {
		return nil, errUnreadableInfo
	}

	return info, nil
}

// MemoryRegions decodes the firmware memory map. The entries are returned in
// firmware order and are not checked for overlaps. A missing or empty memory
// map is an error.
func (i *Info) MemoryRegions() ([]region.Region, *kernel.Error) {
	if !i.hdr.has(flagMemoryMap) {
		return nil, errNoMemoryMap
	}

	if i.hdr.MmapLength == 0 {
		return nil, errEmptyMemoryMap
	}

	buf, err := i.win.Read(uint64(i.hdr.MmapAddr), uint64(i.hdr.MmapLength))
	if err != nil {
		return nil, errMalformedMemoryMap
	}

	var regions []region.Region
	for len(buf) != 0 {
		if len(buf) < 4 {
			return nil, errMalformedMemoryMap
		}

		// The size field does not count itself.
		entrySize := uint64(binary.LittleEndian.Uint32(buf))
		if entrySize < mmapEntryMinSize || entrySize+4 > uint64(len(buf)) {
			return nil, errMalformedMemoryMap
		}

		var (
			entry  = buf[4:]
			base   = binary.LittleEndian.Uint64(entry)
			length = binary.LittleEndian.Uint64(entry[8:])
			typ    = MemoryEntryType(binary.LittleEndian.Uint32(entry[16:]))
		)

		regionType, err := typ.RegionType()
		if err != nil {
			return nil, err
		}

		end := base + length
		if end < base {
			end = math.MaxUint64
		}

		regions = append(regions, region.Region{Start: base, End: end, Type: regionType})
		buf = buf[entrySize+4:]
	}

	return regions, nil
}

// Modules decodes the list of modules loaded alongside the kernel. Module
// contents are not copied; each Module refers to its bytes through the
// window. A missing module list is an error; an empty one is not.
func (i *Info) Modules() ([]Module, *kernel.Error) {
	if !i.hdr.has(flagModules) {
		return nil, errNoModules
	}

	if i.hdr.ModsCount == 0 {
		return []Module{}, nil
	}

	table, err := i.win.Read(uint64(i.hdr.ModsAddr), uint64(i.hdr.ModsCount)*moduleEntrySize)
	if err != nil {
		return nil, errModuleTable
	}

	modules := make([]Module, 0, i.hdr.ModsCount)

	for ; len(table) != 0; table = table[moduleEntrySize:] {
		var (
			start   = uint64(binary.LittleEndian.Uint32(table))
			end     = uint64(binary.LittleEndian.Uint32(table[4:]))
			strAddr = binary.LittleEndian.Uint32(table[8:])
		)

		if end < start {
			return nil, errModuleRange
		}

		contents, err := i.win.Read(start, end-start)
		if err != nil {
			return nil, errModuleRange
		}

		mod := Module{Bytes: contents}
		if strAddr != 0 {
			path, err := i.readString(strAddr)
			if err != nil {
				return nil, err
			}
			mod.name, mod.hasName = baseName(path), true
		}

		modules = append(modules, mod)
	}

	return modules, nil
}

// BootLoaderName returns the name the boot loader reported for itself.
func (i *Info) BootLoaderName() (string, bool) {
	if !i.hdr.has(flagBootLoaderName) || i.hdr.BootLoaderName == 0 {
		return "", false
	}

	name, err := i.readString(i.hdr.BootLoaderName)
	return name, err == nil
}

// BasicMemory returns the amount of lower (below 1M) and upper (above 1M)
// memory in kilobytes, as probed by the BIOS.
func (i *Info) BasicMemory() (lowerKb, upperKb uint32, ok bool) {
	if !i.hdr.has(flagMemory) {
		return 0, 0, false
	}
	return i.hdr.MemLower, i.hdr.MemUpper, true
}

// CmdLine returns the kernel command line split into key/value pairs.
// "key=value" tokens map key to value and bare "key" tokens map key to
// itself. Tokens with more than one '=' are ignored.
func (i *Info) CmdLine() map[string]string {
	kv := make(map[string]string)
	if !i.hdr.has(flagCmdLine) || i.hdr.CmdLine == 0 {
		return kv
	}

	cmdLine, err := i.readString(i.hdr.CmdLine)
	if err != nil {
		return kv
	}

	for _, pair := range strings.Fields(cmdLine) {
		switch parts := strings.Split(pair, "="); len(parts) {
		case 2:
			kv[parts[0]] = parts[1]
		case 1:
			kv[parts[0]] = parts[0]
		}
	}

	return kv
}

// readString returns the NUL-terminated string at physical address addr.
func (i *Info) readString(addr uint32) (string, *kernel.Error) {
	for n := uint64(0); n < maxStringLen; n++ {
		ch, err := i.win.Read(uint64(addr)+n, 1)
		if err != nil {
			return "", errUnterminatedString
		}

		if ch[0] == 0 {
			str, _ := i.win.Read(uint64(addr), n)
			return string(str), nil
		}
	}

	return "", errUnterminatedString
}

// baseName returns the last '/'-separated component of path.
func baseName(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}
