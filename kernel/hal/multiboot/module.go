package multiboot

import "github.com/dancrossnyc/hypatia/kernel/mm/region"

// Module is a payload that the boot loader placed in memory next to the
// kernel.
type Module struct {
	// Bytes views the module contents through the physical window. It
	// is only valid while the window is.
	Bytes []byte

	name    string
	hasName bool
}

// Name returns the last path component of the module string supplied by the
// boot loader. ok is false if the boot loader did not supply one.
func (m *Module) Name() (name string, ok bool) {
	return m.name, m.hasName
}

// Region returns the physical range occupied by the module, tagged
// region.Module. win must be the window that produced m.Bytes.
func (m *Module) Region(win Window) region.Region {
	start := win.PhysicalOf(m.Bytes)
	return region.Region{
		Start: start,
		End:   start + uint64(len(m.Bytes)),
		Type:  region.Module,
	}
}
