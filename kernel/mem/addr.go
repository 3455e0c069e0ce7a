// Package mem defines the sizes and address types used by the memory
// management code.
package mem

// PhysAddr is an address in the physical address space. Page tables store
// and return physical addresses only.
type PhysAddr uint64

// VirtAddr is a linear address as seen by code running with paging enabled.
type VirtAddr uint64

// PageAligned returns true if the address lies on a page boundary.
func (a PhysAddr) PageAligned() bool {
	return a&PhysAddr(PageSize-1) == 0
}

// AlignDown rounds the address down to the start of the page containing it.
func (a PhysAddr) AlignDown() PhysAddr {
	return a &^ PhysAddr(PageSize-1)
}

// PageAligned returns true if the address lies on a page boundary.
func (a VirtAddr) PageAligned() bool {
	return a&VirtAddr(PageSize-1) == 0
}
