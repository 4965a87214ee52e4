//go:build !amd64

package cpu

// Halt spins forever. Architectures without an assembly port only run the
// boot code hosted (tools and tests) where halting means parking the caller.
func Halt() {
	for {
	}
}
