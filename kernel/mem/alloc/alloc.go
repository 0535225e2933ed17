// Package alloc is the global allocation façade other kernel subsystems
// call into for general-purpose heap memory. It routes a request by size:
// anything at or below slab.MaxSize is served by the slab allocator, and
// everything larger is mapped directly out of the page frame allocator.
package alloc

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/slab"
	"gopheros/kernel/mem/vmm"
	"unsafe"
)

// slabAllocFn/slabFreeFn and allocPagesFn/freePagesFn indirect the two
// routing destinations so tests can verify routing decisions without a
// live MMU backing either path.
var (
	slabAllocFn = slab.Alloc
	slabFreeFn  = slab.Free

	allocPagesFn = allocPages
	freePagesFn  = freePages
)

// Alloc reserves size bytes of general-purpose memory.
func Alloc(size uintptr) (unsafe.Pointer, *kernel.Error) {
	if size == 0 {
		return nil, nil
	}
	if size <= slab.MaxSize {
		return slabAllocFn(size)
	}
	return allocPagesFn(size)
}

// Free releases memory previously returned by Alloc for the same size.
func Free(ptr unsafe.Pointer, size uintptr) *kernel.Error {
	if ptr == nil || size == 0 {
		return nil
	}
	if size <= slab.MaxSize {
		return slabFreeFn(ptr, size)
	}
	return freePagesFn(ptr, size)
}

// pageCount returns how many whole pages are needed to cover size bytes.
func pageCount(size uintptr) uintptr {
	return (size + uintptr(mem.PageSize) - 1) >> mem.PageShift
}

// allocPages reserves a fresh virtual region and maps it one page at a
// time, each page backed by its own independently reserved physical frame.
// Frames handed out by the page frame allocator are not guaranteed to be
// physically contiguous, so unlike vmm.MapRegion this cannot assume a
// contiguous frame run.
func allocPages(size uintptr) (unsafe.Pointer, *kernel.Error) {
	pages := pageCount(size)

	regionStart, err := vmm.EarlyReserveRegion(mem.Size(pages) * mem.PageSize)
	if err != nil {
		return nil, err
	}
	startPage := vmm.PageFromAddress(regionStart)

	for i := uintptr(0); i < pages; i++ {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return nil, err
		}
		if err := vmm.Map(startPage+vmm.Page(i), frame, vmm.FlagPresent|vmm.FlagRW); err != nil {
			return nil, err
		}
	}

	return unsafe.Pointer(regionStart), nil
}

// freePages unmaps and releases the frames backing an oversized allocation.
// The virtual region itself is not reclaimed: this kernel's early virtual
// address space reservation is monotonic (see vmm.EarlyReserveRegion), so
// only the physical frames are given back.
func freePages(ptr unsafe.Pointer, size uintptr) *kernel.Error {
	pages := pageCount(size)
	page := vmm.PageFromAddress(uintptr(ptr))

	for i := uintptr(0); i < pages; i++ {
		p := page + vmm.Page(i)
		physAddr, err := vmm.Translate(p.Address())
		if err != nil {
			return err
		}
		if err := vmm.Unmap(p); err != nil {
			return err
		}
		if err := allocator.FreeFrame(pmm.FrameFromAddress(physAddr)); err != nil {
			return err
		}
	}

	return nil
}
