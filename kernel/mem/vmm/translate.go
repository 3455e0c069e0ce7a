package vmm

import (
	"jtos/kernel"
	"jtos/kernel/mem"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped. Once the address space is active,
	// accessing such an address faults.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Translate(virtAddr mem.VirtAddr) (mem.PhysAddr, *kernel.Error) {
	pte, err := as.pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.FrameAddress() + mem.PhysAddr(PageOffset(virtAddr)), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr mem.VirtAddr) uint64 {
	return uint64(virtAddr) & pageOffsetMask
}

// pteForAddress returns the leaf page table entry for a particular virtual
// address or ErrInvalidMapping if any table along the way is missing.
func (as *AddressSpace) pteForAddress(virtAddr mem.VirtAddr) (*pageTableEntry, *kernel.Error) {
	var entry *pageTableEntry

	as.walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.IsPresent() {
			return false
		}

		if pteLevel == pageLevels-1 {
			entry = pte
		}
		return true
	})

	if entry == nil {
		return nil, ErrInvalidMapping
	}
	return entry, nil
}

// MappingVisitor is invoked by VisitMappings for each mapped page. The
// visitor must return true to continue or false to abort the scan.
type MappingVisitor func(virtAddr mem.VirtAddr, physAddr mem.PhysAddr) bool

// VisitMappings invokes visitor for every present leaf entry in ascending
// virtual address order. Virtual addresses are reported in canonical form.
func (as *AddressSpace) VisitMappings(visitor MappingVisitor) {
	if as.root == nil {
		return
	}

	var la LinearAddress
	as.visitTable(as.root, 0, &la, visitor)
}

func (as *AddressSpace) visitTable(table *Table, level uint8, la *LinearAddress, visitor MappingVisitor) bool {
	for index := uint16(0); index < tableEntries; index++ {
		pte := table[index]
		if !pte.IsPresent() {
			continue
		}

		la.setIndex(level, index)
		if level == pageLevels-1 {
			if !visitor(la.Canonical(), pte.FrameAddress()) {
				return false
			}
			continue
		}

		if !as.visitTable(as.table(pte.FrameAddress()), level+1, la, visitor) {
			return false
		}
	}

	return true
}
