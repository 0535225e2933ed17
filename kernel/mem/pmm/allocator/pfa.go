package allocator

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/pmm/allocator/buddy"
)

// pageFrameAllocator is the singleton buddy allocator that takes over frame
// management once the boot memory manager has been consumed.
var pageFrameAllocator *buddy.Allocator

// PromoteToBuddyAllocator consumes the package-level boot memory manager,
// seeding a buddy.Allocator with every frame still in its free set, and
// switches AllocFrame over to the buddy allocator for all subsequent calls.
// kmain calls it exactly once, after vmm.Init and goruntime.Init and before
// any slab cache is created. No permanent physical-remap window covering all
// of RAM exists in this kernel.
func PromoteToBuddyAllocator() {
	var (
		minBase, maxEnd uintptr
		first           = true
	)

	earlyAllocator.AvailableRegions(func(base uintptr, size mem.Size) bool {
		end := base + uintptr(size)
		if first {
			minBase, maxEnd, first = base, end, false
			return true
		}
		if base < minBase {
			minBase = base
		}
		if end > maxEnd {
			maxEnd = end
		}
		return true
	})

	if first {
		// Nothing left to hand off; leave the boot allocator in charge.
		return
	}

	baseFrame := pmm.FrameFromAddress(minBase)
	frameCnt := uint(pmm.FrameFromAddress(maxEnd) - baseFrame)
	buddyAlloc := buddy.New(baseFrame, frameCnt)

	earlyAllocator.AvailableRegions(func(base uintptr, size mem.Size) bool {
		frame := pmm.FrameFromAddress(base)
		pageCnt := uint(size) >> mem.PageShift
		for i := uint(0); i < pageCnt; i++ {
			buddyAlloc.SeedFree(frame + pmm.Frame(i))
		}
		return true
	})

	pageFrameAllocator = buddyAlloc
}

// AllocFrameFromBuddy reserves a single physical page frame from the buddy
// allocator. It panics if PromoteToBuddyAllocator has not run yet; callers
// are expected to use AllocFrame (which transparently falls back to the
// boot memory manager) until the handoff has happened.
func AllocFrameFromBuddy() (pmm.Frame, *kernel.Error) {
	return pageFrameAllocator.Reserve(0)
}

// FreeFrame releases a single physical page frame previously returned by
// AllocFrame. Like AllocFrame, it routes to whichever allocator currently
// owns frame management.
func FreeFrame(frame pmm.Frame) *kernel.Error {
	if pageFrameAllocator != nil {
		return pageFrameAllocator.Free(frame)
	}
	return earlyAllocator.Deallocate(frame.Address())
}
