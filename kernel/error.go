// Package kernel holds the types shared by every early-boot package.
package kernel

// Error describes a boot-time failure. Errors are declared as package-level
// pointers to Error values so that reporting them never needs the Go
// allocator; callers compare against those pointers directly.
type Error struct {
	// The component that raised the error (e.g. "multiboot").
	Module string

	// A human readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error formatted as "[module] message".
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
