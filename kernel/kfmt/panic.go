package kfmt

import (
	"jtos/kernel"
	"jtos/kernel/cpu"
)

var (
	// cpuHaltFn is replaced by tests and by hosted tools that cannot halt
	// the CPU.
	cpuHaltFn = cpu.Halt

	errUnknownCause = &kernel.Error{Module: "kernel", Message: "unknown cause"}
)

// SetHaltFn overrides the function that Panic invokes after printing the
// error. Hosted tools use it to unwind out of a panic instead of halting. A
// nil haltFn restores cpu.Halt.
func SetHaltFn(haltFn func()) {
	if haltFn == nil {
		haltFn = cpu.Halt
	}
	cpuHaltFn = haltFn
}

// Panic outputs the supplied error (if not nil) to the active output sink and
// halts the CPU. On hardware, calls to Panic never return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errUnknownCause.Message = t
		err = errUnknownCause
	case error:
		errUnknownCause.Message = t.Error()
		err = errUnknownCause
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
