// Package efi describes the data structures that the UEFI loader hands over
// to the kernel: the firmware memory map and the framebuffer set up by the
// graphics output protocol.
package efi

import "jtos/kernel/mem"

// MemoryType defines the type of a MemoryDescriptor.
type MemoryType uint32

// nolint
const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemory

	// Any value >= maxMemoryType is reported as unknown.
	maxMemoryType
)

var memoryTypeNames = [maxMemoryType]string{
	"reserved",
	"loader-code",
	"loader-data",
	"boot-services-code",
	"boot-services-data",
	"runtime-services-code",
	"runtime-services-data",
	"conventional",
	"unusable",
	"acpi-reclaim",
	"acpi-nvs",
	"mmio",
	"mmio-port-space",
	"pal-code",
	"persistent",
	"unaccepted",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	if t >= maxMemoryType {
		return "unknown"
	}
	return memoryTypeNames[t]
}

// MemoryTypeFromString returns the MemoryType whose String() value matches
// name. The second return value is false if no type matches.
func MemoryTypeFromString(name string) (MemoryType, bool) {
	for t, typeName := range memoryTypeNames {
		if typeName == name {
			return MemoryType(t), true
		}
	}
	return ReservedMemoryType, false
}

// MemoryAttribute describes the capability bits reported for a memory region.
type MemoryAttribute uint64

// Memory attribute bits as defined by the UEFI specification.
const (
	MemoryUC           MemoryAttribute = 0x1
	MemoryWC           MemoryAttribute = 0x2
	MemoryWT           MemoryAttribute = 0x4
	MemoryWB           MemoryAttribute = 0x8
	MemoryUCE          MemoryAttribute = 0x10
	MemoryWP           MemoryAttribute = 0x1000
	MemoryRP           MemoryAttribute = 0x2000
	MemoryXP           MemoryAttribute = 0x4000
	MemoryNV           MemoryAttribute = 0x8000
	MemoryMoreReliable MemoryAttribute = 0x10000
	MemoryRO           MemoryAttribute = 0x20000
	MemorySP           MemoryAttribute = 0x40000
	MemoryCPUCrypto    MemoryAttribute = 0x80000
	MemoryRuntime      MemoryAttribute = 0x8000000000000000
)

// MemoryDescriptor describes a single firmware memory region. The field
// layout matches EFI_MEMORY_DESCRIPTOR.
type MemoryDescriptor struct {
	// The type of this region.
	Type MemoryType

	pad uint32

	// The physical address of the first byte in the region. Always
	// aligned to a 4K boundary.
	PhysicalStart uint64

	// The virtual address assigned to the region by SetVirtualAddressMap.
	VirtualStart uint64

	// Number of 4K pages in the region.
	NumberOfPages uint64

	// Capability bits for the region.
	Attribute MemoryAttribute
}

// Size returns the size of the region in bytes.
func (d *MemoryDescriptor) Size() mem.Size {
	return mem.Size(d.NumberOfPages << mem.PageShift)
}

// End returns the physical address just past the last byte of the region.
func (d *MemoryDescriptor) End() uint64 {
	return d.PhysicalStart + uint64(d.Size())
}

// Framebuffer describes the linear framebuffer initialized by the loader.
type Framebuffer struct {
	// The framebuffer physical address.
	Base mem.PhysAddr

	// The framebuffer size in bytes.
	Size mem.Size

	// Visible resolution in pixels.
	Width, Height uint32

	// Number of pixels per video memory line.
	PixelsPerScanLine uint32
}

// BootParams collects everything the loader passes to the kernel entry point.
type BootParams struct {
	// The memory map obtained right before ExitBootServices.
	MemoryMap *MemoryMap

	// The framebuffer set up by the loader. May be nil.
	Framebuffer *Framebuffer

	// Where the kernel image was loaded, the address it was linked
	// against and its size in memory (including .bss).
	KernelPhysAddr mem.PhysAddr
	KernelVirtAddr mem.VirtAddr
	KernelSize     mem.Size
}
