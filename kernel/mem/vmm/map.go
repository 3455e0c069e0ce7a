package vmm

import (
	"jtos/kernel"
	"jtos/kernel/mem"
	"math"
)

const (
	// maxPhysAddr is the last physical address that fits in the 40-bit
	// frame number field of an entry.
	maxPhysAddr = ptePhysPageMask | pageOffsetMask
)

var (
	errMisalignedRegion = &kernel.Error{Module: "vmm", Message: "region base address is not page-aligned"}
	errRegionOverflow   = &kernel.Error{Module: "vmm", Message: "region extends past the end of the address space"}
	errMappingExists    = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped to a different frame"}
	errPhysAddrTooLarge = &kernel.Error{Module: "vmm", Message: "physical address does not fit in a page table entry"}
)

// MapPage maps the virtual page starting at virtAddr to the physical page
// starting at physAddr, allocating any missing PDPT, PD and PT tables along
// the way. Leaf entries are created present and writable.
//
// Mapping a page to the frame it already points to is a no-op. Attempting to
// point an already mapped page to a different frame returns an error.
func (as *AddressSpace) MapPage(virtAddr mem.VirtAddr, physAddr mem.PhysAddr) *kernel.Error {
	if !virtAddr.PageAligned() || !physAddr.PageAligned() {
		return errMisalignedRegion
	}

	if uint64(physAddr) > maxPhysAddr {
		return errPhysAddrTooLarge
	}

	if err := as.checkPopulating(); err != nil {
		return err
	}

	la := Decode(virtAddr)

	pdpt, err := as.nextLevel(as.root, la.PML4)
	if err != nil {
		return err
	}

	pd, err := as.nextLevel(as.table(pdpt), la.PDPT)
	if err != nil {
		return err
	}

	pt, err := as.nextLevel(as.table(pd), la.PD)
	if err != nil {
		return err
	}

	leaf := &as.table(pt)[la.PT]
	if leaf.IsPresent() {
		if leaf.FrameAddress() == physAddr {
			return nil
		}
		return errMappingExists
	}

	leaf.init(physAddr)
	as.stats.Pages++
	return nil
}

// MapRegion maps pageCount consecutive virtual pages starting at virtBase to
// consecutive physical pages starting at physBase. Both base addresses must be
// page-aligned. Each page gets its own 4K leaf entry.
func (as *AddressSpace) MapRegion(virtBase mem.VirtAddr, physBase mem.PhysAddr, pageCount uint64) *kernel.Error {
	if !virtBase.PageAligned() || !physBase.PageAligned() {
		return errMisalignedRegion
	}

	if !regionFits(uint64(virtBase), pageCount, math.MaxUint64) || !regionFits(uint64(physBase), pageCount, maxPhysAddr) {
		return errRegionOverflow
	}

	for page := uint64(0); page < pageCount; page++ {
		offset := page << mem.PageShift
		if err := as.MapPage(virtBase+mem.VirtAddr(offset), physBase+mem.PhysAddr(offset)); err != nil {
			return err
		}
	}

	return nil
}

// MapRegionIdentity maps pageCount pages starting at addr so that each
// virtual address translates to the same physical address. It is used for
// regions that must stay addressable while paging gets enabled.
func (as *AddressSpace) MapRegionIdentity(addr mem.PhysAddr, pageCount uint64) *kernel.Error {
	return as.MapRegion(mem.VirtAddr(addr), addr, pageCount)
}

// regionFits returns true if pageCount pages starting at base do not extend
// past limit.
func regionFits(base, pageCount, limit uint64) bool {
	if pageCount == 0 {
		return true
	}
	if base > limit {
		return false
	}
	return pageCount-1 <= (limit-base)>>mem.PageShift
}
