package main

import "github.com/dancrossnyc/hypatia/kernel/kmain"

// Set by the rt0 code. Passing a variable keeps the compiler from proving
// anything about the arguments and folding the call away.
var (
	multibootMagic   uintptr
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

// main is never run on the target; rt0 jumps to Kmain directly. The call
// below only keeps Kmain and everything it reaches in the object file.
func main() {
	kmain.Kmain(multibootMagic, multibootInfoPtr, kernelStart, kernelEnd)
}
