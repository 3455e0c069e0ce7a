package vmm

import (
	"jtos/kernel/mem"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTranslate(t *testing.T) {
	as, _, _ := newTestAddressSpace(t)

	if err := as.MapRegion(0xffffffff80000000, 0x100000, 2); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		virtAddr mem.VirtAddr
		expPhys  mem.PhysAddr
		mapped   bool
	}{
		{0xffffffff80000000, 0x100000, true},
		{0xffffffff80000abc, 0x100abc, true},
		{0xffffffff80001fff, 0x101fff, true},
		{0xffffffff80002000, 0, false},
		// the sign-extension bits are ignored by the decoder
		{0x0000ffff80000010, 0x100010, true},
		{0x80000000, 0, false},
	}

	for specIndex, spec := range specs {
		got, err := as.Translate(spec.virtAddr)
		switch {
		case spec.mapped && err != nil:
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		case !spec.mapped && err != ErrInvalidMapping:
			t.Errorf("[spec %d] expected ErrInvalidMapping; got %v", specIndex, err)
		case got != spec.expPhys:
			t.Errorf("[spec %d] expected Translate(0x%x) to return 0x%x; got 0x%x", specIndex, spec.virtAddr, spec.expPhys, got)
		}
	}
}

func TestPageOffset(t *testing.T) {
	specs := []struct {
		virtAddr mem.VirtAddr
		exp      uint64
	}{
		{0x0, 0},
		{0x1234, 0x234},
		{0xffffffff80000fff, 0xfff},
	}

	for specIndex, spec := range specs {
		if got := PageOffset(spec.virtAddr); got != spec.exp {
			t.Errorf("[spec %d] expected PageOffset(0x%x) to return 0x%x; got 0x%x", specIndex, spec.virtAddr, spec.exp, got)
		}
	}
}

type visitedMapping struct {
	Virt mem.VirtAddr
	Phys mem.PhysAddr
}

func TestVisitMappings(t *testing.T) {
	as, _, _ := newTestAddressSpace(t)

	if err := as.MapRegion(0xffffffff80000000, 0x200000, 2); err != nil {
		t.Fatal(err)
	}

	if err := as.MapRegionIdentity(0x100000, 2); err != nil {
		t.Fatal(err)
	}

	if err := as.MapPage(0x7ffffffff000, 0x5000); err != nil {
		t.Fatal(err)
	}

	var got []visitedMapping
	as.VisitMappings(func(virtAddr mem.VirtAddr, physAddr mem.PhysAddr) bool {
		got = append(got, visitedMapping{virtAddr, physAddr})
		return true
	})

	exp := []visitedMapping{
		{0x100000, 0x100000},
		{0x101000, 0x101000},
		{0x7ffffffff000, 0x5000},
		{0xffffffff80000000, 0x200000},
		{0xffffffff80001000, 0x201000},
	}

	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected mappings (-want +got):\n%s", diff)
	}

	t.Run("abort", func(t *testing.T) {
		calls := 0
		as.VisitMappings(func(mem.VirtAddr, mem.PhysAddr) bool {
			calls++
			return calls != 3
		})

		if calls != 3 {
			t.Fatalf("expected visitor to be called 3 times; got %d", calls)
		}
	})
}
