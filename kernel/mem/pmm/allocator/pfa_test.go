package allocator

import (
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm/allocator/buddy"
	"testing"
)

func TestPromoteToBuddyAllocatorSeedsFreeFrames(t *testing.T) {
	defer func(saved BootMemoryManager) { earlyAllocator = saved }(earlyAllocator)
	defer func(saved *buddy.Allocator) { pageFrameAllocator = saved }(pageFrameAllocator)
	earlyAllocator = BootMemoryManager{}

	if err := earlyAllocator.AddFreeRegion(0x100000, mem.Size(4*mem.PageSize)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	PromoteToBuddyAllocator()

	if pageFrameAllocator == nil {
		t.Fatal("expected PromoteToBuddyAllocator to install a buddy allocator")
	}

	frame, err := AllocFrameFromBuddy()
	if err != nil {
		t.Fatalf("unexpected error reserving a handed-off frame: %v", err)
	}
	if frame.Address() < 0x100000 || frame.Address() >= 0x100000+4*uintptr(mem.PageSize) {
		t.Fatalf("expected the reserved frame to fall within the seeded region, got %#x", frame.Address())
	}
}

func TestAllocFrameAndFreeFrameRouteThroughBuddyAfterPromotion(t *testing.T) {
	defer func(saved BootMemoryManager) { earlyAllocator = saved }(earlyAllocator)
	defer func(saved *buddy.Allocator) { pageFrameAllocator = saved }(pageFrameAllocator)
	earlyAllocator = BootMemoryManager{}

	if err := earlyAllocator.AddFreeRegion(0x200000, mem.Size(2*mem.PageSize)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	PromoteToBuddyAllocator()

	frame, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Address() < 0x200000 || frame.Address() >= 0x200000+2*uintptr(mem.PageSize) {
		t.Fatalf("expected AllocFrame to draw from the promoted buddy allocator, got %#x", frame.Address())
	}

	if err := FreeFrame(frame); err != nil {
		t.Fatalf("unexpected error freeing: %v", err)
	}
	if err := FreeFrame(frame); err == nil {
		t.Fatal("expected a double free through FreeFrame to fail")
	}
}

func TestPromoteToBuddyAllocatorNoOpWhenNothingFree(t *testing.T) {
	defer func(saved BootMemoryManager) { earlyAllocator = saved }(earlyAllocator)
	earlyAllocator = BootMemoryManager{}
	pageFrameAllocator = nil
	PromoteToBuddyAllocator()

	if pageFrameAllocator != nil {
		t.Fatal("expected no buddy allocator to be installed when nothing is free")
	}
}
