//go:build unix

// Package hostmem emulates a block of physical memory inside a hosted process
// so the paging code can build real page tables without access to the MMU.
package hostmem

import (
	"jtos/kernel/mem"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena is an anonymous memory mapping that stands in for the physical
// address range [Base, Base+Size). It implements vmm.PhysMemory.
type Arena struct {
	base mem.PhysAddr
	data []byte
}

// New maps size bytes of zeroed memory that back the physical addresses
// starting at base. Both base and size must be page-aligned.
func New(base mem.PhysAddr, size mem.Size) (*Arena, error) {
	if !base.PageAligned() || size == 0 || size&(mem.PageSize-1) != 0 {
		return nil, unix.EINVAL
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	return &Arena{base: base, data: data}, nil
}

// Size returns the number of bytes backed by the arena.
func (a *Arena) Size() mem.Size {
	return mem.Size(len(a.data))
}

// Contains returns true if the page starting at physAddr is backed by the
// arena.
func (a *Arena) Contains(physAddr mem.PhysAddr) bool {
	return physAddr >= a.base && uint64(physAddr-a.base)+uint64(mem.PageSize) <= uint64(len(a.data))
}

// PagePtr returns a pointer to the emulated page at physAddr. It panics if
// the page lies outside the arena; the caller handed out a frame that does
// not exist.
func (a *Arena) PagePtr(physAddr mem.PhysAddr) unsafe.Pointer {
	if !a.Contains(physAddr) {
		panic("hostmem: physical address outside of arena")
	}
	return unsafe.Pointer(&a.data[physAddr-a.base])
}

// Close releases the mapping. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}

	err := unix.Munmap(a.data)
	a.data = nil
	return err
}
