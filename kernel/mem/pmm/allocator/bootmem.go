// Package allocator provides the physical frame allocators used by the
// kernel.
package allocator

import (
	"jtos/kernel"
	"jtos/kernel/hal/efi"
	"jtos/kernel/kfmt"
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm"
)

var (
	// earlyAllocator is a boot mem allocator instance used for page
	// allocations before switching to a more advanced allocator.
	earlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errBootAllocNoMemoryMap = &kernel.Error{Module: "boot_mem_alloc", Message: "no memory map available"}
)

// bootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator hands out the conventional memory frames reported by the
// firmware memory map in ascending order, skipping the frames occupied by the
// kernel image. Frame 0 is never returned so that a zero physical address can
// not be confused with an unset table pointer.
//
// Allocated frames can not be freed. The allocator expects the memory map to
// be sorted by physical address; regions that appear after a region with a
// higher address are ignored.
type bootMemAllocator struct {
	memoryMap *efi.MemoryMap

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// nextFrame is the lowest frame that may be returned by the next
	// allocation.
	nextFrame pmm.Frame

	// Keep track of kernel location so we exclude this region. The end
	// frame is exclusive.
	kernelStartAddr, kernelEndAddr   mem.PhysAddr
	kernelStartFrame, kernelEndFrame pmm.Frame
}

// init sets up the boot memory allocator internal state.
func (alloc *bootMemAllocator) init(memoryMap *efi.MemoryMap, kernelStart, kernelEnd mem.PhysAddr) {
	alloc.memoryMap = memoryMap
	alloc.allocCount = 0
	alloc.nextFrame = 1
	alloc.kernelStartAddr = kernelStart
	alloc.kernelEndAddr = kernelEnd
	alloc.kernelStartFrame = pmm.FrameFromAddress(kernelStart)
	alloc.kernelEndFrame = pmm.FrameFromAddress(kernelEnd + mem.PhysAddr(mem.PageSize-1))
}

// AllocFrame scans the conventional memory regions reported by the firmware
// and reserves the next available free frame.
//
// AllocFrame returns an error if no more memory can be allocated.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var (
		frame = pmm.InvalidFrame
		err   = errBootAllocOutOfMemory
	)

	if alloc.memoryMap == nil {
		return pmm.InvalidFrame, errBootAllocNoMemoryMap
	}

	alloc.memoryMap.VisitDescriptors(func(desc *efi.MemoryDescriptor) bool {
		if desc.Type != efi.ConventionalMemory || desc.NumberOfPages == 0 {
			return true
		}

		regionStartFrame := pmm.FrameFromAddress(mem.PhysAddr(desc.PhysicalStart))
		regionEndFrame := regionStartFrame + pmm.Frame(desc.NumberOfPages)

		candidate := alloc.nextFrame
		if candidate < regionStartFrame {
			candidate = regionStartFrame
		}

		if candidate >= alloc.kernelStartFrame && candidate < alloc.kernelEndFrame {
			candidate = alloc.kernelEndFrame
		}

		// The kernel may occupy the tail of the region
		if candidate >= regionEndFrame {
			return true
		}

		frame, err = candidate, nil
		return false
	})

	if err != nil {
		return pmm.InvalidFrame, err
	}

	alloc.nextFrame = frame + 1
	alloc.allocCount++
	return frame, nil
}

// printMemoryMap scans the memory region information provided by the
// firmware and prints out the system's memory map.
func (alloc *bootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	alloc.memoryMap.VisitDescriptors(func(desc *efi.MemoryDescriptor) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			desc.PhysicalStart, desc.End(), uint64(desc.Size()), desc.Type.String(),
		)

		if desc.Type == efi.ConventionalMemory {
			totalFree += desc.Size()
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
	kfmt.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", uint64(alloc.kernelStartAddr), uint64(alloc.kernelEndAddr))
	kfmt.Printf("[boot_mem_alloc] size: %d bytes, reserved pages: %d\n",
		uint64(alloc.kernelEndAddr-alloc.kernelStartAddr),
		uint64(alloc.kernelEndFrame-alloc.kernelStartFrame),
	)
}

// Init sets up the kernel physical memory allocation sub-system using the
// firmware memory map. The frames in [kernelStart, kernelEnd) are reserved
// for the kernel image.
func Init(memoryMap *efi.MemoryMap, kernelStart, kernelEnd mem.PhysAddr) *kernel.Error {
	if memoryMap == nil {
		return errBootAllocNoMemoryMap
	}

	earlyAllocator.init(memoryMap, kernelStart, kernelEnd)
	earlyAllocator.printMemoryMap()
	return nil
}

// AllocFrame is a helper that delegates a frame allocation request to the
// early allocator instance. It matches vmm.FrameAllocatorFn.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return earlyAllocator.AllocFrame()
}

// AllocCount returns the number of frames handed out since the last call to
// Init.
func AllocCount() uint64 {
	return earlyAllocator.allocCount
}
