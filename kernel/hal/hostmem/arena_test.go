//go:build unix

package hostmem

import (
	"jtos/kernel/mem"
	"testing"
)

func TestArena(t *testing.T) {
	arena, err := New(0x100000, 4*mem.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer arena.Close()

	if got := arena.Size(); got != 4*mem.PageSize {
		t.Fatalf("expected arena size %d; got %d", 4*mem.PageSize, got)
	}

	specs := []struct {
		addr     mem.PhysAddr
		contains bool
	}{
		{0x0ff000, false},
		{0x100000, true},
		{0x103000, true},
		{0x104000, false},
		{0x103800, false},
	}

	for specIndex, spec := range specs {
		if got := arena.Contains(spec.addr); got != spec.contains {
			t.Errorf("[spec %d] expected Contains(0x%x) to return %t; got %t", specIndex, spec.addr, spec.contains, got)
		}
	}

	page := (*[mem.PageSize]byte)(arena.PagePtr(0x102000))
	for i, b := range page {
		if b != 0 {
			t.Fatalf("expected new arena to be zeroed; byte %d is 0x%x", i, b)
		}
	}

	*(*uint64)(arena.PagePtr(0x102000)) = 0xdeadbeef
	if got := page[0]; got != 0xef {
		t.Fatalf("expected write through PagePtr to be visible in the page contents; got 0x%x", got)
	}

	t.Run("out of range", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected PagePtr to panic")
			}
		}()
		arena.PagePtr(0x200000)
	})
}

func TestArenaInvalidArgs(t *testing.T) {
	specs := []struct {
		base mem.PhysAddr
		size mem.Size
	}{
		{0x1001, mem.PageSize},
		{0x1000, 0},
		{0x1000, mem.PageSize + 1},
	}

	for specIndex, spec := range specs {
		if _, err := New(spec.base, spec.size); err == nil {
			t.Errorf("[spec %d] expected an error", specIndex)
		}
	}
}

func TestArenaClose(t *testing.T) {
	arena, err := New(0, mem.PageSize)
	if err != nil {
		t.Fatal(err)
	}

	if err = arena.Close(); err != nil {
		t.Fatal(err)
	}

	if err = arena.Close(); err != nil {
		t.Fatalf("expected second Close to be a no-op; got %v", err)
	}
}
