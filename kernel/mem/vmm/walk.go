package vmm

import (
	"jtos/kernel"
	"jtos/kernel/mem"
)

var errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a read-only page table walk for the given virtual address,
// calling walkFn with the entry that corresponds to each page table level. The
// walk stops after the PT level, when walkFn returns false or when it reaches
// an entry that is not present.
func (as *AddressSpace) walk(virtAddr mem.VirtAddr, walkFn pageTableWalker) {
	if as.root == nil {
		return
	}

	la := Decode(virtAddr)
	table := as.root
	for level := uint8(0); level < pageLevels; level++ {
		pte := &table[la.Index(level)]
		if !walkFn(level, pte) || level == pageLevels-1 || !pte.IsPresent() {
			return
		}

		table = as.table(pte.FrameAddress())
	}
}

// nextLevel returns the physical address of the table referenced by
// table[index]. If the entry is not present, a frame is requested from the
// frame allocator, cleared and linked into the entry before returning its
// address. Walks that share a prefix of their index path therefore reuse the
// tables allocated by earlier walks.
func (as *AddressSpace) nextLevel(table *Table, index uint16) (mem.PhysAddr, *kernel.Error) {
	pte := &table[index]
	if pte.IsPresent() {
		if pte.HasFlags(FlagHugePage) {
			return 0, errNoHugePageSupport
		}
		return pte.FrameAddress(), nil
	}

	frame, err := as.allocTable()
	if err != nil {
		return 0, err
	}

	pte.init(frame.Address())
	return frame.Address(), nil
}

// table returns a pointer to the page table stored at physAddr.
func (as *AddressSpace) table(physAddr mem.PhysAddr) *Table {
	return (*Table)(as.physMem.PagePtr(physAddr))
}
