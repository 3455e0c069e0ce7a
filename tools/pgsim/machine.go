package main

import (
	"bytes"
	"fmt"

	"jtos/kernel"
	"jtos/kernel/hal/efi"
	"jtos/kernel/hal/hostmem"
	"jtos/kernel/kfmt"
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm/allocator"
	"jtos/kernel/mem/vmm"

	"github.com/sirupsen/logrus"
)

// machine is an emulated boot of the paging code against a configuration.
type machine struct {
	cfg   *machineConfig
	arena *hostmem.Arena
	as    *vmm.AddressSpace

	// pdtSwitches records every value loaded into the emulated CR3.
	pdtSwitches []uintptr
}

// kernelHalt is raised by the halt hook that bootMachine installs. It unwinds
// a kfmt.Panic issued by the boot sequence back into bootMachine.
type kernelHalt struct {
	cause *kernel.Error
}

func (h *kernelHalt) Error() string {
	return fmt.Sprintf("kernel halted: [%s] %s", h.cause.Module, h.cause.Message)
}

// bootMachine allocates the emulated physical memory and runs the same
// allocator and paging setup sequence as the kernel entry point. Diagnostics
// printed by the kernel packages, including the panic banner, are forwarded
// to log.
func bootMachine(cfg *machineConfig, log *logrus.Entry) (*machine, error) {
	params, err := cfg.bootParams()
	if err != nil {
		return nil, err
	}

	arena, err := hostmem.New(0, mem.Size(cfg.MemorySize))
	if err != nil {
		return nil, fmt.Errorf("allocating %d bytes of emulated memory: %w", uint64(cfg.MemorySize), err)
	}

	kfmtLog := &logWriter{entry: log.WithField("source", "kernel")}
	kfmt.SetOutputSink(kfmtLog)
	defer func() {
		kfmtLog.Flush()
		kfmt.SetOutputSink(nil)
	}()

	m := &machine{cfg: cfg, arena: arena}
	if err = m.boot(params); err != nil {
		arena.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"root":   fmt.Sprintf("0x%x", uint64(m.as.Root())),
		"tables": m.as.Stats().Tables,
		"pages":  m.as.Stats().Pages,
		"frames": allocator.AllocCount(),
	}).Debug("address space active")

	return m, nil
}

// boot mirrors kmain.Kmain: failures are passed to kfmt.Panic and the halt
// hook turns the halt into a *kernelHalt error.
func (m *machine) boot(params *efi.BootParams) (err error) {
	var cause *kernel.Error

	kfmt.SetHaltFn(func() {
		panic(&kernelHalt{cause: cause})
	})
	defer func() {
		kfmt.SetHaltFn(nil)
		if r := recover(); r != nil {
			halt, ok := r.(*kernelHalt)
			if !ok {
				panic(r)
			}
			err = halt
		}
	}()

	kernelEnd := params.KernelPhysAddr + mem.PhysAddr(params.KernelSize)
	if cause = allocator.Init(params.MemoryMap, params.KernelPhysAddr, kernelEnd); cause != nil {
		kfmt.Panic(cause)
	}

	vmm.SetFrameAllocator(allocator.AllocFrame)
	if m.as, cause = vmm.Setup(params, m.arena, m.switchPDT); cause != nil {
		kfmt.Panic(cause)
	}

	return nil
}

func (m *machine) switchPDT(pdtPhysAddr uintptr) {
	m.pdtSwitches = append(m.pdtSwitches, pdtPhysAddr)
}

// Close releases the emulated physical memory.
func (m *machine) Close() error {
	return m.arena.Close()
}

// mappedRange is a run of virtually and physically contiguous pages.
type mappedRange struct {
	Virt  mem.VirtAddr
	Phys  mem.PhysAddr
	Pages uint64
}

// ranges coalesces the installed mappings into contiguous runs in ascending
// virtual address order.
func (m *machine) ranges() []mappedRange {
	var out []mappedRange
	m.as.VisitMappings(func(virtAddr mem.VirtAddr, physAddr mem.PhysAddr) bool {
		if n := len(out); n != 0 {
			last := &out[n-1]
			offset := last.Pages << mem.PageShift
			if last.Virt+mem.VirtAddr(offset) == virtAddr && last.Phys+mem.PhysAddr(offset) == physAddr {
				last.Pages++
				return true
			}
		}

		out = append(out, mappedRange{Virt: virtAddr, Phys: physAddr, Pages: 1})
		return true
	})
	return out
}

// logWriter turns the line-oriented output of kfmt into log entries.
type logWriter struct {
	entry *logrus.Entry
	buf   bytes.Buffer
}

// Write implements io.Writer. Complete lines are logged at debug level;
// partial lines are kept until the next newline or Flush.
func (w *logWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}

		line := string(w.buf.Next(idx + 1))
		w.emit(line[:idx])
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *logWriter) Flush() {
	if w.buf.Len() != 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *logWriter) emit(line string) {
	if line == "" {
		return
	}
	w.entry.Debug(line)
}
