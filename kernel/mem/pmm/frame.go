// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"jtos/kernel/mem"
	"math"
)

// Frame describes a physical memory page index.
type Frame uint64

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte in this frame.
func (f Frame) Address() mem.PhysAddr {
	return mem.PhysAddr(f << mem.PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr mem.PhysAddr) Frame {
	return Frame(physAddr.AlignDown() >> mem.PageShift)
}
