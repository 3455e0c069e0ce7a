// Package vmm builds the four-level amd64 page table hierarchy used by the
// kernel and activates it.
//
// An AddressSpace moves through three states. It starts Uninitialized; Init
// allocates and clears the PML4 table which moves it to Populating where
// regions can be mapped. Activate loads the PML4 into CR3 and moves it to
// Active, a terminal state.
package vmm

import (
	"jtos/kernel"
	"jtos/kernel/hal/efi"
	"jtos/kernel/kfmt"
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	errNoFrameAllocator = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
	errInvalidFrame     = &kernel.Error{Module: "vmm", Message: "frame allocator returned an invalid frame"}
	errNoBootParams     = &kernel.Error{Module: "vmm", Message: "missing boot parameters"}
	errNotInitialized   = &kernel.Error{Module: "vmm", Message: "address space has not been initialized"}
	errAlreadyInit      = &kernel.Error{Module: "vmm", Message: "address space is already initialized"}
	errAlreadyActive    = &kernel.Error{Module: "vmm", Message: "address space is already active"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers a frame allocator function that will be used by
// Setup when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// PDTSwitcherFn loads the physical address of a PML4 table into the paging
// control register. On hardware this is cpu.SwitchPDT.
type PDTSwitcherFn func(pdtPhysAddr uintptr)

type addressSpaceState uint8

const (
	stateUninitialized addressSpaceState = iota
	statePopulating
	stateActive
)

// Stats reports the resources consumed by an AddressSpace.
type Stats struct {
	// Tables is the number of page tables allocated, including the PML4.
	Tables uint64

	// Pages is the number of leaf entries installed.
	Pages uint64
}

// AddressSpace owns a PML4 table and every table reachable from it.
// AddressSpace is not safe for concurrent use.
type AddressSpace struct {
	physMem     PhysMemory
	allocFn     FrameAllocatorFn
	switchPDTFn PDTSwitcherFn

	state     addressSpaceState
	rootFrame pmm.Frame
	root      *Table

	stats Stats
}

// NewAddressSpace returns an uninitialized AddressSpace that accesses tables
// through physMem, obtains new tables from allocFn and is activated by
// switchPDTFn.
func NewAddressSpace(physMem PhysMemory, allocFn FrameAllocatorFn, switchPDTFn PDTSwitcherFn) *AddressSpace {
	return &AddressSpace{
		physMem:     physMem,
		allocFn:     allocFn,
		switchPDTFn: switchPDTFn,
	}
}

// Init allocates a cleared PML4 table for the address space.
func (as *AddressSpace) Init() *kernel.Error {
	if as.state != stateUninitialized {
		return errAlreadyInit
	}

	frame, err := as.allocTable()
	if err != nil {
		return err
	}

	as.rootFrame = frame
	as.root = as.table(frame.Address())
	as.state = statePopulating
	return nil
}

// Root returns the physical address of the PML4 table.
func (as *AddressSpace) Root() mem.PhysAddr {
	return as.rootFrame.Address()
}

// Active returns true once the address space has been loaded into CR3.
func (as *AddressSpace) Active() bool {
	return as.state == stateActive
}

// Stats returns the number of tables allocated and pages mapped so far.
func (as *AddressSpace) Stats() Stats {
	return as.stats
}

// Activate loads the PML4 table into the paging control register. Activate
// must be called after all regions required by the running code have been
// mapped; any access to an unmapped address faults afterwards.
func (as *AddressSpace) Activate() *kernel.Error {
	if err := as.checkPopulating(); err != nil {
		return err
	}

	as.switchPDTFn(uintptr(as.Root()))
	as.state = stateActive
	return nil
}

func (as *AddressSpace) checkPopulating() *kernel.Error {
	switch as.state {
	case stateUninitialized:
		return errNotInitialized
	case stateActive:
		return errAlreadyActive
	default:
		return nil
	}
}

// allocTable obtains a frame from the frame allocator and clears it so it can
// be used as a page table.
func (as *AddressSpace) allocTable() (pmm.Frame, *kernel.Error) {
	if as.allocFn == nil {
		return pmm.InvalidFrame, errNoFrameAllocator
	}

	frame, err := as.allocFn()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	if !frame.Valid() {
		return pmm.InvalidFrame, errInvalidFrame
	}

	as.table(frame.Address()).clear()
	as.stats.Tables++
	return frame, nil
}

// Setup builds the kernel address space from the information passed by the
// loader and activates it. It identity-maps the firmware regions that must
// survive the switch and the framebuffer, maps the kernel image at its link
// address and finally loads the new PML4 using switchPDTFn.
//
// Tables are allocated with the allocator registered via SetFrameAllocator.
// Errors are not recoverable; callers are expected to halt.
func Setup(params *efi.BootParams, physMem PhysMemory, switchPDTFn PDTSwitcherFn) (*AddressSpace, *kernel.Error) {
	if params == nil {
		return nil, errNoBootParams
	}

	as := NewAddressSpace(physMem, frameAllocator, switchPDTFn)
	if err := as.Init(); err != nil {
		return nil, err
	}
	kfmt.Printf("[vmm] PML4 table at 0x%x\n", uint64(as.Root()))

	if err := as.MapFirmwareRegions(params.MemoryMap); err != nil {
		return nil, err
	}

	if err := as.MapFramebuffer(params.Framebuffer); err != nil {
		return nil, err
	}

	if err := as.MapKernelImage(params.KernelVirtAddr, params.KernelPhysAddr, params.KernelSize); err != nil {
		return nil, err
	}

	kfmt.Printf("[vmm] mapped %d pages using %d page tables\n", as.stats.Pages, as.stats.Tables)

	if err := as.Activate(); err != nil {
		return nil, err
	}
	kfmt.Printf("[vmm] paging enabled\n")

	return as, nil
}
