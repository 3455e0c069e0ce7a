package efi

import "unsafe"

// DefaultDescriptorSize is the descriptor stride used by most firmware
// implementations. The firmware is free to report a larger stride than
// sizeof(MemoryDescriptor) so callers must always honor
// MemoryMap.DescriptorSize when walking the map.
const DefaultDescriptorSize = 48

// descriptorVersion is the only descriptor version defined by UEFI.
const descriptorVersion = 1

// MemoryMap wraps the raw memory map buffer returned by GetMemoryMap.
type MemoryMap struct {
	// The raw descriptor data.
	Data []byte

	// The size of each descriptor in Data.
	DescriptorSize uintptr

	// The version of the descriptors in Data.
	DescriptorVersion uint32
}

// DescriptorVisitor defines a visitor function that gets invoked by
// VisitDescriptors for each firmware memory region. The visitor must return
// true to continue or false to abort the scan.
type DescriptorVisitor func(desc *MemoryDescriptor) bool

// NewMemoryMap builds a MemoryMap containing the supplied descriptors using
// DefaultDescriptorSize as the stride.
func NewMemoryMap(descriptors ...MemoryDescriptor) *MemoryMap {
	mm := &MemoryMap{
		Data:              make([]byte, len(descriptors)*DefaultDescriptorSize),
		DescriptorSize:    DefaultDescriptorSize,
		DescriptorVersion: descriptorVersion,
	}

	for i := range descriptors {
		*mm.Descriptor(i) = descriptors[i]
	}

	return mm
}

// Len returns the number of descriptors in the map. Maps whose stride is
// smaller than a MemoryDescriptor are treated as empty.
func (m *MemoryMap) Len() int {
	if m == nil || m.DescriptorSize < unsafe.Sizeof(MemoryDescriptor{}) {
		return 0
	}

	return len(m.Data) / int(m.DescriptorSize)
}

// Descriptor returns a pointer to the i-th descriptor in the map. The
// pointer aliases the map data.
func (m *MemoryMap) Descriptor(i int) *MemoryDescriptor {
	return (*MemoryDescriptor)(unsafe.Pointer(&m.Data[uintptr(i)*m.DescriptorSize]))
}

// VisitDescriptors invokes the supplied visitor for each descriptor in the map
// in the order reported by the firmware.
func (m *MemoryMap) VisitDescriptors(visitor DescriptorVisitor) {
	for i, count := 0, m.Len(); i < count; i++ {
		if !visitor(m.Descriptor(i)) {
			return
		}
	}
}
