package main

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"

	"jtos/kernel/hal/efi"
	"jtos/kernel/mem"

	"github.com/BurntSushi/toml"
	"github.com/google/btree"
)

// btreeDegree is the branching factor of the region index.
const btreeDegree = 8

// address is a 64-bit value that can be written in TOML either as an integer
// or as a string. Strings accept any base understood by strconv.ParseUint so
// that upper-half virtual addresses, which overflow a TOML integer, can be
// expressed as "0xffffffff80000000".
type address uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *address) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", text, err)
	}
	*a = address(v)
	return nil
}

// regionConfig describes one entry of the emulated firmware memory map.
type regionConfig struct {
	Type    string  `toml:"type"`
	Start   address `toml:"start"`
	Pages   uint64  `toml:"pages"`
	Runtime bool    `toml:"runtime"`
}

func (r regionConfig) end() uint64 {
	return uint64(r.Start) + r.Pages<<mem.PageShift
}

// framebufferConfig describes the framebuffer handed over by the loader.
type framebufferConfig struct {
	Base   address `toml:"base"`
	Size   address `toml:"size"`
	Width  uint32  `toml:"width"`
	Height uint32  `toml:"height"`
}

// kernelConfig describes where the loader placed the kernel image.
type kernelConfig struct {
	Phys address `toml:"phys"`
	Virt address `toml:"virt"`
	Size address `toml:"size"`
}

// machineConfig is the TOML description of an emulated machine.
type machineConfig struct {
	// MemorySize is the amount of emulated physical memory starting at
	// address 0. Page tables are allocated from the conventional regions
	// that fall inside it.
	MemorySize address `toml:"memory_size"`

	// DescriptorSize overrides the memory map stride. Zero selects
	// efi.DefaultDescriptorSize.
	DescriptorSize uint64 `toml:"descriptor_size"`

	Regions     []regionConfig     `toml:"region"`
	Framebuffer *framebufferConfig `toml:"framebuffer"`
	Kernel      *kernelConfig      `toml:"kernel"`
}

// loadConfig parses and validates the machine description at path.
func loadConfig(path string) (*machineConfig, error) {
	var cfg machineConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.check(md); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseConfig parses and validates a machine description from a TOML
// document.
func parseConfig(data string) (*machineConfig, error) {
	var cfg machineConfig
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.check(md); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check rejects unknown keys and validates the decoded configuration.
func (cfg *machineConfig) check(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return fmt.Errorf("unknown configuration key %q", undecoded[0].String())
	}
	return cfg.validate()
}

// validate checks that regions are page-aligned, have a known type and do not
// overlap, and that the conventional regions are backed by emulated memory.
func (cfg *machineConfig) validate() error {
	if cfg.MemorySize == 0 || uint64(cfg.MemorySize)&uint64(mem.PageSize-1) != 0 {
		return fmt.Errorf("memory_size must be a non-zero multiple of %d", uint64(mem.PageSize))
	}

	minStride := uint64(unsafe.Sizeof(efi.MemoryDescriptor{}))
	if cfg.DescriptorSize != 0 && (cfg.DescriptorSize < minStride || cfg.DescriptorSize%8 != 0) {
		return fmt.Errorf("descriptor_size must be a multiple of 8 and at least %d", minStride)
	}

	if len(cfg.Regions) == 0 {
		return fmt.Errorf("no memory regions defined")
	}

	for i, r := range cfg.Regions {
		if _, ok := efi.MemoryTypeFromString(r.Type); !ok {
			return fmt.Errorf("region %d: unknown type %q", i, r.Type)
		}

		if !mem.PhysAddr(r.Start).PageAligned() {
			return fmt.Errorf("region %d: start address 0x%x is not page-aligned", i, uint64(r.Start))
		}

		if r.Pages == 0 {
			return fmt.Errorf("region %d: empty region", i)
		}

		if r.Pages > (math.MaxUint64-uint64(r.Start))>>mem.PageShift {
			return fmt.Errorf("region %d: region wraps around the address space", i)
		}

		if r.Type == efi.ConventionalMemory.String() && r.end() > uint64(cfg.MemorySize) {
			return fmt.Errorf("region %d: conventional region ends past memory_size", i)
		}
	}

	if _, err := cfg.sortedRegions(); err != nil {
		return err
	}

	if cfg.Kernel != nil && !mem.PhysAddr(cfg.Kernel.Phys).PageAligned() {
		return fmt.Errorf("kernel: physical address 0x%x is not page-aligned", uint64(cfg.Kernel.Phys))
	}

	return nil
}

// sortedRegions returns the regions in ascending address order. It fails if
// any two regions overlap.
func (cfg *machineConfig) sortedRegions() ([]regionConfig, error) {
	index := btree.NewG(btreeDegree, func(a, b regionConfig) bool {
		return a.Start < b.Start
	})

	for _, r := range cfg.Regions {
		if dup, found := index.ReplaceOrInsert(r); found {
			return nil, fmt.Errorf("regions at 0x%x overlap (%s and %s)", uint64(r.Start), dup.Type, r.Type)
		}

		// The closest region below r must end before r starts.
		var overlapErr error
		index.DescendLessOrEqual(r, func(prev regionConfig) bool {
			if prev.Start == r.Start {
				return true
			}
			if prev.end() > uint64(r.Start) {
				overlapErr = fmt.Errorf("region %s at 0x%x overlaps region %s at 0x%x", r.Type, uint64(r.Start), prev.Type, uint64(prev.Start))
			}
			return false
		})
		if overlapErr != nil {
			return nil, overlapErr
		}

		// The closest region above r must start after r ends.
		index.AscendGreaterOrEqual(r, func(next regionConfig) bool {
			if next.Start == r.Start {
				return true
			}
			if r.end() > uint64(next.Start) {
				overlapErr = fmt.Errorf("region %s at 0x%x overlaps region %s at 0x%x", r.Type, uint64(r.Start), next.Type, uint64(next.Start))
			}
			return false
		})
		if overlapErr != nil {
			return nil, overlapErr
		}
	}

	sorted := make([]regionConfig, 0, index.Len())
	index.Ascend(func(r regionConfig) bool {
		sorted = append(sorted, r)
		return true
	})
	return sorted, nil
}

// memoryMap encodes the configured regions as a firmware memory map using the
// configured descriptor stride.
func (cfg *machineConfig) memoryMap() (*efi.MemoryMap, error) {
	regions, err := cfg.sortedRegions()
	if err != nil {
		return nil, err
	}

	stride := cfg.DescriptorSize
	if stride == 0 {
		stride = efi.DefaultDescriptorSize
	}

	mm := &efi.MemoryMap{
		Data:              make([]byte, uint64(len(regions))*stride),
		DescriptorSize:    uintptr(stride),
		DescriptorVersion: 1,
	}

	for i, r := range regions {
		memType, _ := efi.MemoryTypeFromString(r.Type)
		desc := efi.MemoryDescriptor{
			Type:          memType,
			PhysicalStart: uint64(r.Start),
			NumberOfPages: r.Pages,
			Attribute:     efi.MemoryWB,
		}
		if r.Runtime {
			desc.Attribute |= efi.MemoryRuntime
		}
		*mm.Descriptor(i) = desc
	}

	return mm, nil
}

// bootParams assembles the parameter block that a loader would pass to the
// kernel for this machine.
func (cfg *machineConfig) bootParams() (*efi.BootParams, error) {
	mm, err := cfg.memoryMap()
	if err != nil {
		return nil, err
	}

	params := &efi.BootParams{MemoryMap: mm}

	if fb := cfg.Framebuffer; fb != nil {
		params.Framebuffer = &efi.Framebuffer{
			Base:              mem.PhysAddr(fb.Base),
			Size:              mem.Size(fb.Size),
			Width:             fb.Width,
			Height:            fb.Height,
			PixelsPerScanLine: fb.Width,
		}
	}

	if k := cfg.Kernel; k != nil {
		params.KernelPhysAddr = mem.PhysAddr(k.Phys)
		params.KernelVirtAddr = mem.VirtAddr(k.Virt)
		params.KernelSize = mem.Size(k.Size)
	}

	return params, nil
}
