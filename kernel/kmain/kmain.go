package kmain

import (
	"jtos/kernel"
	"jtos/kernel/cpu"
	"jtos/kernel/hal/efi"
	"jtos/kernel/kfmt"
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm/allocator"
	"jtos/kernel/mem/vmm"
	"unsafe"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked after the loader has exited the boot
// services, with the firmware page tables still active.
//
// The rt0 code passes the address of the efi.BootParams block prepared by the
// loader.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(bootParamsPtr uintptr) {
	params := (*efi.BootParams)(unsafe.Pointer(bootParamsPtr))

	// No output sink is attached yet. Diagnostics stay in the early ring
	// buffer until a console driver calls kfmt.SetOutputSink.
	kfmt.Printf("[kmain] firmware PML4 at 0x%x\n", uint64(cpu.ActivePDT()))

	var err *kernel.Error
	if err = allocator.Init(params.MemoryMap, params.KernelPhysAddr, params.KernelPhysAddr+mem.PhysAddr(params.KernelSize)); err != nil {
		kfmt.Panic(err)
	}

	vmm.SetFrameAllocator(allocator.AllocFrame)
	if _, err = vmm.Setup(params, vmm.IdentityMemory{}, cpu.SwitchPDT); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Printf("* enabled paging\n")

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
