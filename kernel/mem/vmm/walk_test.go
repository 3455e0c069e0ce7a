package vmm

import (
	"jtos/kernel/mem"
	"jtos/kernel/mem/pmm"
	"testing"
	"unsafe"
)

func TestIdentityMemory(t *testing.T) {
	if exp, got := unsafe.Pointer(uintptr(0x123000)), (IdentityMemory{}).PagePtr(0x123000); exp != got {
		t.Fatalf("expected PagePtr to return %v; got %v", exp, got)
	}
}

func TestNextLevel(t *testing.T) {
	t.Run("allocates missing table", func(t *testing.T) {
		as, alloc, _ := newTestAddressSpace(t)

		physAddr, err := as.nextLevel(as.root, 42)
		if err != nil {
			t.Fatal(err)
		}

		if exp := alloc.frames[1].Address(); physAddr != exp {
			t.Fatalf("expected new table at 0x%x; got 0x%x", exp, physAddr)
		}

		pte := as.root[42]
		if !pte.HasFlags(FlagPresent|FlagRW) || pte.FrameAddress() != physAddr {
			t.Fatalf("expected root entry 42 to point to 0x%x; got 0x%x", physAddr, pte)
		}

		// the fake memory fills new pages with garbage
		if got := *as.table(physAddr); got != (Table{}) {
			t.Fatal("expected new table to be cleared")
		}

		if exp, got := uint64(2), as.Stats().Tables; got != exp {
			t.Fatalf("expected %d tables; got %d", exp, got)
		}
	})

	t.Run("reuses present table", func(t *testing.T) {
		as, alloc, _ := newTestAddressSpace(t)

		first, err := as.nextLevel(as.root, 3)
		if err != nil {
			t.Fatal(err)
		}

		// Populate the child table and make sure a second visit keeps it
		as.table(first)[7].init(0x5000)

		second, err := as.nextLevel(as.root, 3)
		if err != nil {
			t.Fatal(err)
		}

		if first != second {
			t.Fatalf("expected table at 0x%x to be reused; got 0x%x", first, second)
		}

		if alloc.count != 2 {
			t.Fatalf("expected 2 allocations; got %d", alloc.count)
		}

		if got := as.table(second)[7].FrameAddress(); got != 0x5000 {
			t.Fatalf("expected existing entry to be preserved; got 0x%x", got)
		}
	})

	t.Run("allocator error", func(t *testing.T) {
		as, alloc, _ := newTestAddressSpace(t)
		alloc.limit = alloc.count

		if _, err := as.nextLevel(as.root, 0); err != errFakeOutOfMemory {
			t.Fatalf("expected errFakeOutOfMemory; got %v", err)
		}

		if as.root[0].IsPresent() {
			t.Fatal("expected entry to remain unpopulated")
		}
	})

	t.Run("huge page", func(t *testing.T) {
		as, _, _ := newTestAddressSpace(t)
		as.root[1].init(0x200000)
		as.root[1].SetFlags(FlagHugePage)

		if _, err := as.nextLevel(as.root, 1); err != errNoHugePageSupport {
			t.Fatalf("expected errNoHugePageSupport; got %v", err)
		}
	})
}

func TestWalk(t *testing.T) {
	as, alloc, _ := newTestAddressSpace(t)

	// This address breaks down to:
	// p4 index: 1
	// p3 index: 2
	// p2 index: 3
	// p1 index: 4
	// offset  : 1024
	targetAddr := mem.VirtAddr(0x8080604400)

	if err := as.MapPage(targetAddr&^mem.VirtAddr(mem.PageSize-1), 0xabc000); err != nil {
		t.Fatal(err)
	}

	// PML4, PDPT, PD, PT
	expEntries := [pageLevels]*pageTableEntry{
		&as.root[1],
		&as.table(alloc.frames[1].Address())[2],
		&as.table(alloc.frames[2].Address())[3],
		&as.table(alloc.frames[3].Address())[4],
	}

	var visited []uint8
	as.walk(targetAddr, func(level uint8, pte *pageTableEntry) bool {
		if pte != expEntries[level] {
			t.Errorf("[level %d] walk visited unexpected entry", level)
		}
		visited = append(visited, level)
		return true
	})

	if len(visited) != pageLevels {
		t.Fatalf("expected walk to visit %d levels; got %d", pageLevels, len(visited))
	}

	if got := expEntries[pageLevels-1].Frame(); got != pmm.Frame(0xabc) {
		t.Fatalf("expected leaf entry to point to frame 0xabc; got 0x%x", got)
	}

	t.Run("abort", func(t *testing.T) {
		calls := 0
		as.walk(targetAddr, func(uint8, *pageTableEntry) bool {
			calls++
			return calls != 2
		})

		if calls != 2 {
			t.Fatalf("expected walk to stop after 2 calls; got %d", calls)
		}
	})

	t.Run("stops at non-present entry", func(t *testing.T) {
		calls := 0
		as.walk(0x10000000000, func(uint8, *pageTableEntry) bool {
			calls++
			return true
		})

		if calls != 1 {
			t.Fatalf("expected walk to stop after 1 call; got %d", calls)
		}
	})
}
