package vmm

import (
	"jtos/kernel/mem"
	"unsafe"
)

// PhysMemory provides access to the physical frames that hold page tables.
type PhysMemory interface {
	// PagePtr returns a pointer through which the page starting at
	// physAddr can be read and written.
	PagePtr(physAddr mem.PhysAddr) unsafe.Pointer
}

// IdentityMemory accesses physical frames through the identity mapping that
// the firmware keeps active until the kernel loads its own page tables.
type IdentityMemory struct{}

// PagePtr implements PhysMemory.
func (IdentityMemory) PagePtr(physAddr mem.PhysAddr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(physAddr))
}
