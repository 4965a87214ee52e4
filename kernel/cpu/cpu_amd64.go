// Package cpu exposes the handful of processor primitives that the boot path
// needs.
package cpu

// Halt disables interrupts and stops instruction execution. It never returns.
func Halt()
