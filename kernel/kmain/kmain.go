package kmain

import (
	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/boot"
	"github.com/dancrossnyc/hypatia/kernel/hal/multiboot"
	"github.com/dancrossnyc/hypatia/kernel/kfmt"
	"github.com/dancrossnyc/hypatia/kernel/mm"
	"github.com/dancrossnyc/hypatia/kernel/mm/physwin"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// Overridden by tests.
	physwinInitFn = physwin.Init
	bootInitFn    = boot.Init
	panicFn       = kfmt.Panic
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the magic value the boot loader
// left in EAX, the physical address of the multiboot info block and the
// physical extents of the kernel image.
//
// Kmain maps physical memory, builds the boot memory layout and hands it
// over to memory manager initialization. It is not expected to return.
//
//go:noinline
func Kmain(multibootMagic, multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	if err := multiboot.CheckMagic(uint32(multibootMagic)); err != nil {
		panic(err)
	}

	if err := physwinInitFn(mm.PhysMapBase, mm.PhysMapSize); err != nil {
		panic(err)
	}

	info := bootInitFn(multibootInfoPtr, kernelStart, kernelEnd)
	kfmt.Printf("[kmain] %d regions, %d modules\n", len(info.Regions), len(info.Modules))

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}
