package kfmt

import (
	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/cpu"
)

var (
	// cpuHaltFn is replaced by tests.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports e (a *kernel.Error, an error, a string or nil) on the active
// output sink and halts the CPU. Calls to Panic never return; the freestanding
// build redirects runtime.gopanic here so that panic(err) lands in this
// function.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** boot aborted: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
