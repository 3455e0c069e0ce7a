package kfmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%12t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s region", "loader-code") },
			"loader-code region",
		},
		{
			func() { printfn("%s region", []byte("loader-data")) },
			"loader-data region",
		},
		{
			func() { printfn("'%6s' with padding", "mmio") },
			"'  mmio' with padding",
		},
		{
			func() { printfn("'%2s' longer than padding", "reserved") },
			"'reserved' longer than padding",
		},
		// uints
		{
			func() { printfn("pages: %d", uint8(16)) },
			"pages: 16",
		},
		{
			func() { printfn("mode: %o", uint16(0644)) },
			"mode: 644",
		},
		{
			func() { printfn("base: 0x%x", uint32(0x100000)) },
			"base: 0x100000",
		},
		{
			func() { printfn("'%8d'", uint64(4096)) },
			"'    4096'",
		},
		{
			func() { printfn("'%4o'", uint(7)) },
			"'0007'",
		},
		{
			func() { printfn("[0x%10x - 0x%10x]", uint64(0x100000), uint64(0x110000)) },
			"[0x0000100000 - 0x0000110000]",
		},
		{
			func() { printfn("'0x%4x'", uint64(0xfffff000)) },
			"'0xfffff000'",
		},
		{
			func() { printfn("cr3: 0x%x", uintptr(0x1000)) },
			"cr3: 0x1000",
		},
		{
			func() { printfn("max: %x", ^uint64(0)) },
			"max: ffffffffffffffff",
		},
		{
			func() { printfn("max: %o", ^uint64(0)) },
			"max: 1777777777777777777777",
		},
		// ints
		{
			func() { printfn("%d", int8(-10)) },
			"-10",
		},
		{
			func() { printfn("%x", int32(-0xbad)) },
			"-bad",
		},
		{
			func() { printfn("'%6d'", int64(-42)) },
			"'   -42'",
		},
		{
			func() { printfn("'%6x'", int(-0xf)) },
			"'-0000f'",
		},
		{
			func() { printfn("%d", 0) },
			"0",
		},
		{
			func() { printfn("'%40x'", uint64(0xf)) },
			"'" + strings.Repeat("0", 39) + "f'",
		},
		// multiple arguments
		{
			func() { printfn("%%%s%d%t", "foo", 123, true) },
			`%foo123true`,
		},
		// errors
		{
			func() { printfn("more args", "foo", "bar") },
			`more args%!(EXTRA)`,
		},
		{
			func() { printfn("missing args %s") },
			`missing args %!(MISSING)`,
		},
		{
			func() { printfn("bad verb %Q", 1) },
			`bad verb %!(NOVERB)%!(EXTRA)`,
		},
		{
			func() { printfn("trailing %") },
			`trailing %!(NOVERB)`,
		},
		{
			func() { printfn("not bool %t", "foo") },
			`not bool %!(WRONGTYPE)`,
		},
		{
			func() { printfn("not int %d", "foo") },
			`not int %!(WRONGTYPE)`,
		},
		{
			func() { printfn("not string %s", 123) },
			`not string %!(WRONGTYPE)`,
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get\n%q\ngot:\n%q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToEarlyBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	outputSink = nil
	earlyPrintBuffer = ringBuffer{}

	Printf("[vmm] PML4 table at 0x%x\n", uint64(0x1000))

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "[vmm] PML4 table at 0x1000\n", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if got := earlyPrintBuffer.Len(); got != 0 {
		t.Fatalf("expected early buffer to be drained; %d bytes left", got)
	}

	buf.Reset()
	Printf("direct")
	if exp, got := "direct", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	Fprintf(&buf, "pages: %d", 3)

	if exp, got := "pages: 3", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
