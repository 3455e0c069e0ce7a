package vmm

import (
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm"
	"unsafe"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// pageTableEntry is the packed 64-bit entry format shared by all four paging
// levels. Bits 12-51 hold a frame number which points to the next-level table
// for the PML4, PDPT and PD levels and to the mapped page for the PT level.
type pageTableEntry uint64

// The CPU reads entries directly from memory so their size must match the
// hardware format.
var _ = [1]struct{}{}[unsafe.Sizeof(pageTableEntry(0))-8]

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// IsPresent returns true if the entry points to a table or page.
func (pte pageTableEntry) IsPresent() bool {
	return pte.HasFlags(FlagPresent)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uint64(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the page table entry to point to the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (pageTableEntry)((uint64(*pte) &^ ptePhysPageMask) | (uint64(frame.Address()) & ptePhysPageMask))
}

// FrameAddress returns the physical address stored in the entry.
func (pte pageTableEntry) FrameAddress() mem.PhysAddr {
	return pte.Frame().Address()
}

// ProtectionKey returns the protection key of a leaf entry.
func (pte pageTableEntry) ProtectionKey() uint8 {
	return uint8((uint64(pte) & pteProtKeyMask) >> pteProtKeyShift)
}

// init points the entry at physAddr and marks it as present and writable.
// All other bits are cleared.
func (pte *pageTableEntry) init(physAddr mem.PhysAddr) {
	*pte = 0
	pte.SetFrame(pmm.FrameFromAddress(physAddr))
	pte.SetFlags(FlagPresent | FlagRW)
}

// Table is a page-aligned array of entries that forms one level of the
// paging hierarchy.
type Table [tableEntries]pageTableEntry

var _ = [1]struct{}{}[unsafe.Sizeof(Table{})-uintptr(mem.PageSize)]

// clear zeroes every entry in the table.
func (t *Table) clear() {
	*t = Table{}
}
