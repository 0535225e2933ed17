package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"unsafe"
)

var (
	// nextAddrFn is used by used by tests to override the nextTableAddr
	// calculations used by Map. When compiling the kernel this function
	// will be automatically inlined.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	earlyReserveRegionFn = EarlyReserveRegion

	// mapFn, unmapFn and mapTemporaryFn are used by tests and by the
	// PageDirectoryTable helpers to call into Map/Unmap/MapTemporary
	// indirectly so they can be swapped out.
	mapFn          = Map
	unmapFn        = Unmap
	mapTemporaryFn = MapTemporary

	errNoHugePageSupport       = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errIllegalPageSizeForLevel = &kernel.Error{Module: "vmm", Message: "page size not legal at the resolved page table level"}
)

// Map establishes a 4 KiB mapping between a virtual page and a physical
// memory frame using the currently active page directory table. It is
// equivalent to calling MapSize with SizeSmall.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return MapSize(page, frame, SizeSmall, flags)
}

// MapSize establishes a mapping between a virtual page and a physical memory
// frame at the page-table level appropriate for the requested page size
// (PT for Small, PD for Large, PDPT for Huge). Calls to MapSize will use the
// supplied physical frame allocator to initialize missing intermediate page
// tables.
func MapSize(page Page, frame pmm.Frame, size PageSize, flags PageTableEntryFlag) *kernel.Error {
	targetLevel := size.Level()
	if size != SizeSmall {
		flags |= FlagHugePage
	}

	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the target level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == targetLevel {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it map it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = frameAllocator()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			// The next pte entry becomes available but we need to
			// make sure that the new page is properly cleared
			nextTableAddr := (uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1])
			kernel.Memset(nextAddrFn(nextTableAddr), 0, uintptr(mem.PageSize))
		}

		return true
	})

	return err
}

// MapRegion establishes a mapping to the physical memory region which starts
// at the given frame and ends at frame + pages(size). The size argument is
// always rounded up to the nearest page boundary. MapRegion reserves the next
// available region in the active virtual address space, establishes the
// mapping and returns back the Page that corresponds to the region start.
func MapRegion(frame pmm.Frame, size mem.Size, flags PageTableEntryFlag) (Page, *kernel.Error) {
	// Reserve next free block in the address space
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)
	startPage, err := earlyReserveRegionFn(size)
	if err != nil {
		return 0, err
	}

	pageCount := size >> mem.PageShift
	for page := PageFromAddress(startPage); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := mapFn(page, frame, flags); err != nil {
			return 0, err
		}
	}

	return PageFromAddress(startPage), nil
}

// MapTemporary establishes a temporary RW mapping of a physical memory frame
// to a fixed virtual address overwriting any previous mapping. The temporary
// mapping mechanism is primarily used by the kernel to access and initialize
// inactive page tables.
func MapTemporary(frame pmm.Frame) (Page, *kernel.Error) {
	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagPresent|FlagRW); err != nil {
		return 0, err
	}

	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via a call to Map or MapTemporary.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}
