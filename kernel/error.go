// Package kernel contains the types shared by every kernel subsystem.
package kernel

// Error describes an error raised by kernel code. Errors are declared as
// package-level pointers so that returning them never touches the Go
// allocator, which is unavailable while paging is still being set up.
type Error struct {
	// Module identifies the subsystem that raised the error (e.g. "vmm").
	Module string

	// Message is a human readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
