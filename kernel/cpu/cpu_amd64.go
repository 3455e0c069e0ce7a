// Package cpu exposes the privileged instructions needed by the kernel. Each
// function is implemented in assembly and faults if invoked in user-mode, so
// callers should reference them through function variables that tests can
// override.
package cpu

// Halt disables interrupts and stops instruction execution.
func Halt()

// SwitchPDT loads the physical address of a PML4 table into CR3. Loading CR3
// activates the new address space and flushes all non-global TLB entries.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active PML4 table.
func ActivePDT() uintptr
