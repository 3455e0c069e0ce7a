package vmm

import (
	"jtos/kernel"
	"jtos/kernel/hal/efi"
	"jtos/kernel/kfmt"
	"jtos/kernel/mem"
)

// MapFirmwareRegions identity-maps the firmware memory regions that must stay
// addressable once the kernel tables are loaded: the loaded kernel image
// (loader code/data) and any region used by the runtime services. All other
// region types are left unmapped.
//
// Runtime regions are identity-mapped even though the runtime services may
// later be relocated with SetVirtualAddressMap.
func (as *AddressSpace) MapFirmwareRegions(memoryMap *efi.MemoryMap) *kernel.Error {
	var err *kernel.Error

	memoryMap.VisitDescriptors(func(desc *efi.MemoryDescriptor) bool {
		if !retainAcrossHandoff(desc) {
			return true
		}

		kfmt.Printf("[vmm] identity mapping %s region [0x%10x - 0x%10x], pages: %d\n",
			desc.Type.String(), desc.PhysicalStart, desc.End(), desc.NumberOfPages,
		)

		err = as.MapRegionIdentity(mem.PhysAddr(desc.PhysicalStart), desc.NumberOfPages)
		return err == nil
	})

	return err
}

// retainAcrossHandoff returns true if the region described by desc must
// remain mapped after the kernel activates its own page tables.
func retainAcrossHandoff(desc *efi.MemoryDescriptor) bool {
	if desc.Attribute&efi.MemoryRuntime != 0 {
		return true
	}

	switch desc.Type {
	case efi.LoaderCode, efi.LoaderData, efi.RuntimeServicesCode, efi.RuntimeServicesData:
		return true
	default:
		return false
	}
}

// MapFramebuffer identity-maps the framebuffer. One extra page is mapped past
// the rounded-up framebuffer size to cover a base address that is not
// page-aligned.
func (as *AddressSpace) MapFramebuffer(fb *efi.Framebuffer) *kernel.Error {
	if fb == nil {
		return nil
	}

	pageCount := fb.Size.Pages() + 1
	kfmt.Printf("[vmm] identity mapping framebuffer at 0x%x, pages: %d\n", uint64(fb.Base), pageCount)

	return as.MapRegionIdentity(fb.Base.AlignDown(), pageCount)
}

// MapKernelImage maps the kernel image loaded at physBase to the virtual
// address it was linked against. The size is rounded up to a whole number of
// pages. A zero size leaves the address space untouched.
func (as *AddressSpace) MapKernelImage(virtBase mem.VirtAddr, physBase mem.PhysAddr, size mem.Size) *kernel.Error {
	if size == 0 {
		return nil
	}

	kfmt.Printf("[vmm] mapping kernel image 0x%x -> 0x%x, size: %d\n", uint64(virtBase), uint64(physBase), uint64(size))

	return as.MapRegion(virtBase, physBase, size.Pages())
}
