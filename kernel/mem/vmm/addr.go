package vmm

import "jtos/kernel/mem"

// LinearAddress is a virtual address broken down into the table index used at
// each paging level and the offset within the final page.
type LinearAddress struct {
	PML4   uint16
	PDPT   uint16
	PD     uint16
	PT     uint16
	Offset uint16
}

// Decode splits a virtual address into its paging components. The
// sign-extension bits (48-63) are ignored and never validated.
func Decode(virtAddr mem.VirtAddr) LinearAddress {
	return LinearAddress{
		PML4:   levelIndex(virtAddr, 0),
		PDPT:   levelIndex(virtAddr, 1),
		PD:     levelIndex(virtAddr, 2),
		PT:     levelIndex(virtAddr, 3),
		Offset: uint16(uint64(virtAddr) & pageOffsetMask),
	}
}

// levelIndex extracts the bits from virtAddr that correspond to the index in
// the page table for the given level.
func levelIndex(virtAddr mem.VirtAddr, level uint8) uint16 {
	return uint16((uint64(virtAddr) >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1))
}

// Index returns the table index used at the given page level (0 = PML4).
func (la LinearAddress) Index(level uint8) uint16 {
	switch level {
	case 0:
		return la.PML4
	case 1:
		return la.PDPT
	case 2:
		return la.PD
	default:
		return la.PT
	}
}

// setIndex updates the table index used at the given page level.
func (la *LinearAddress) setIndex(level uint8, index uint16) {
	switch level {
	case 0:
		la.PML4 = index
	case 1:
		la.PDPT = index
	case 2:
		la.PD = index
	default:
		la.PT = index
	}
}

// Address reassembles the linear address. The sign-extension bits of the
// result are always zero.
func (la LinearAddress) Address() mem.VirtAddr {
	return mem.VirtAddr(uint64(la.PML4)<<pageLevelShifts[0] |
		uint64(la.PDPT)<<pageLevelShifts[1] |
		uint64(la.PD)<<pageLevelShifts[2] |
		uint64(la.PT)<<pageLevelShifts[3] |
		uint64(la.Offset)&pageOffsetMask)
}

// Canonical reassembles the linear address and copies bit 47 into the
// sign-extension bits so the result can be dereferenced by the CPU.
func (la LinearAddress) Canonical() mem.VirtAddr {
	addr := la.Address()
	if addr&(1<<(signExtensionShift-1)) != 0 {
		addr |= mem.VirtAddr(0xffff) << signExtensionShift
	}
	return addr
}
