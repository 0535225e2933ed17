package allocator

import (
	"gopheros/kernel"
	"gopheros/kernel/hal/multiboot"
	"gopheros/kernel/kfmt/early"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/sync"
	"sort"
)

// maxMemblocks caps the number of disjoint extents that the boot memory
// manager can track in either its free or reserved set. The value mirrors
// the static allocation used by the original implementation; once either
// set is full, put calls that cannot be merged into an existing extent
// fail.
const maxMemblocks = 128

var (
	// earlyAllocator is the boot memory manager instance used for all
	// physical memory bookkeeping before the buddy allocator takes over.
	earlyAllocator BootMemoryManager

	errBootAllocOutOfMemory    = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errBootAllocBlockFull      = &kernel.Error{Module: "boot_mem_alloc", Message: "memblock set is full"}
	errBootAllocBadFree        = &kernel.Error{Module: "boot_mem_alloc", Message: "address does not refer to a reserved block"}
	errBootAllocBadReservation = &kernel.Error{Module: "boot_mem_alloc", Message: "reservation does not lie entirely inside a single free block"}
)

// memblock describes a contiguous, page-addressable extent of physical
// memory. A zero-value memblock (present == false) represents an empty slot
// inside a memblockSet's backing array.
type memblock struct {
	present bool
	base    uintptr
	size    mem.Size
}

func (b memblock) end() uintptr {
	return b.base + uintptr(b.size)
}

// memblockSet maintains a sorted-by-base array of disjoint, non-adjacent
// memblocks. Adjacent blocks are merged as they are inserted so the set
// never contains two entries that could be represented as one.
type memblockSet struct {
	blocks [maxMemblocks]memblock
	len    int
}

// search returns the index of the first present block whose base is >=
// addr, or set.len if no such block exists.
func (set *memblockSet) search(addr uintptr) int {
	return sort.Search(set.len, func(i int) bool {
		return set.blocks[i].base >= addr
	})
}

// put inserts block into the set, merging it with an adjacent predecessor
// and/or successor if one exists. It returns false if block overlaps an
// existing entry or the set has no room left for a new, unmerged entry.
func (set *memblockSet) put(block memblock) bool {
	if !block.present || block.size == 0 {
		return true
	}

	pivot := set.search(block.base)

	var mergePrev, mergeNext bool

	if pivot > 0 {
		prev := set.blocks[pivot-1]
		if block.base < prev.end() {
			// overlaps the previous block
			return false
		}
		mergePrev = block.base == prev.end()
	}

	if pivot < set.len {
		next := set.blocks[pivot]
		if block.end() > next.base {
			// overlaps the following block
			return false
		}
		mergeNext = block.end() == next.base
	}

	switch {
	case mergePrev && mergeNext:
		set.blocks[pivot-1].size += block.size + set.blocks[pivot].size
		copy(set.blocks[pivot:set.len-1], set.blocks[pivot+1:set.len])
		set.blocks[set.len-1] = memblock{}
		set.len--
	case mergePrev:
		set.blocks[pivot-1].size += block.size
	case mergeNext:
		set.blocks[pivot].base = block.base
		set.blocks[pivot].size += block.size
	default:
		if set.len == maxMemblocks {
			return false
		}
		copy(set.blocks[pivot+1:set.len+1], set.blocks[pivot:set.len])
		set.blocks[pivot] = block
		set.len++
	}

	return true
}

// take removes and returns the block whose base address is exactly addr.
func (set *memblockSet) take(addr uintptr) (memblock, bool) {
	idx := set.search(addr)
	if idx == set.len || set.blocks[idx].base != addr {
		return memblock{}, false
	}

	removed := set.blocks[idx]
	copy(set.blocks[idx:set.len-1], set.blocks[idx+1:set.len])
	set.blocks[set.len-1] = memblock{}
	set.len--
	return removed, true
}

// cut locates a block large enough to satisfy size and align and carves off
// the trailing, aligned portion of it. When hint is non-nil, blocks whose
// base is at or above hint are searched first, then the ones below it. The remainder (if any) stays in the set.
func (set *memblockSet) cut(size mem.Size, align uintptr, hint *uintptr) (memblock, bool) {
	find := func(lo, hi int) (int, uintptr, bool) {
		for i := lo; i < hi; i++ {
			b := set.blocks[i]
			if mem.Size(b.size) < size {
				continue
			}
			unalignedBase := b.base + uintptr(b.size-size)
			alignedBase := unalignedBase &^ (align - 1)
			if alignedBase >= b.base {
				return i, alignedBase, true
			}
		}
		return 0, 0, false
	}

	var (
		idx     int
		cutBase uintptr
		found   bool
	)

	if hint != nil {
		atIdx := set.search(*hint)
		if idx, cutBase, found = find(atIdx, set.len); !found {
			idx, cutBase, found = find(0, atIdx)
		}
	} else {
		idx, cutBase, found = find(0, set.len)
	}

	if !found {
		return memblock{}, false
	}

	b := set.blocks[idx]
	residual := mem.Size(cutBase - b.base)

	if residual != 0 {
		set.blocks[idx].size = residual
	} else {
		copy(set.blocks[idx:set.len-1], set.blocks[idx+1:set.len])
		set.blocks[set.len-1] = memblock{}
		set.len--
	}

	return memblock{present: true, base: cutBase, size: size}, true
}

// cutRange removes exactly [base, base+size) from the set, splitting the
// containing block into a prefix and/or suffix residual as needed. It
// returns false if no single present block fully contains the range.
func (set *memblockSet) cutRange(base uintptr, size mem.Size) bool {
	if size == 0 {
		return true
	}
	end := base + uintptr(size)

	idx := set.search(base)

	var containerIdx int
	switch {
	case idx < set.len && set.blocks[idx].base == base:
		containerIdx = idx
	case idx > 0 && base < set.blocks[idx-1].end():
		containerIdx = idx - 1
	default:
		return false
	}

	b := set.blocks[containerIdx]
	if base < b.base || end > b.end() {
		return false
	}

	switch {
	case base == b.base && end == b.end():
		copy(set.blocks[containerIdx:set.len-1], set.blocks[containerIdx+1:set.len])
		set.blocks[set.len-1] = memblock{}
		set.len--
	case base == b.base:
		set.blocks[containerIdx].base = end
		set.blocks[containerIdx].size -= size
	case end == b.end():
		set.blocks[containerIdx].size = mem.Size(base - b.base)
	default:
		if set.len == maxMemblocks {
			return false
		}
		tail := memblock{present: true, base: end, size: mem.Size(b.end() - end)}
		set.blocks[containerIdx].size = mem.Size(base - b.base)
		copy(set.blocks[containerIdx+2:set.len+1], set.blocks[containerIdx+1:set.len])
		set.blocks[containerIdx+1] = tail
		set.len++
	}

	return true
}

// visit invokes fn for every block in the set in ascending base order,
// stopping early if fn returns false.
func (set *memblockSet) visit(fn func(base uintptr, size mem.Size) bool) {
	for i := 0; i < set.len; i++ {
		if !fn(set.blocks[i].base, set.blocks[i].size) {
			return
		}
	}
}

// BootMemoryManager is the physical memory allocator used from the moment
// the bootloader's memory map becomes available until the buddy allocator
// and slab caches are online. It tracks free and reserved physical memory
// as two disjoint sets of at most maxMemblocks extents each, so every
// allocate/deallocate is a search-and-splice over a small sorted array
// rather than a scan of the raw bootloader memory map.
type BootMemoryManager struct {
	mu       sync.Spinlock
	free     memblockSet
	reserved memblockSet
}

// AddFreeRegion registers [base, base+size) as available for allocation.
// Adjacent free regions are merged automatically; a region overlapping one
// already registered is rejected with errBootAllocBlockFull.
func (m *BootMemoryManager) AddFreeRegion(base uintptr, size mem.Size) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()

	if !m.free.put(memblock{present: true, base: base, size: size}) {
		return errBootAllocBlockFull
	}
	return nil
}

// AddReservedRegion marks [base, base+size) as already in use and therefore
// unavailable to Allocate/AllocateAt. The range must lie entirely inside a
// single free extent; it is carved out of the free set so the free and
// reserved sets remain disjoint, mirroring how Allocate moves a cut block
// from free to reserved.
func (m *BootMemoryManager) AddReservedRegion(base uintptr, size mem.Size) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()

	if !m.free.cutRange(base, size) {
		return errBootAllocBadReservation
	}

	if !m.reserved.put(memblock{present: true, base: base, size: size}) {
		m.free.put(memblock{present: true, base: base, size: size})
		return errBootAllocBlockFull
	}
	return nil
}

// Allocate reserves and returns the base address of a size-byte, aligned
// extent of free memory. It returns errBootAllocOutOfMemory if no free
// extent is large enough.
func (m *BootMemoryManager) Allocate(size mem.Size, align uintptr) (uintptr, *kernel.Error) {
	return m.allocate(size, align, nil)
}

// AllocateAt behaves like Allocate but first searches the extents whose base
// is at or above at; if none of them is large enough, it falls back to the
// extents below at. The returned address is not otherwise tied to at.
func (m *BootMemoryManager) AllocateAt(size mem.Size, align uintptr, at uintptr) (uintptr, *kernel.Error) {
	return m.allocate(size, align, &at)
}

func (m *BootMemoryManager) allocate(size mem.Size, align uintptr, at *uintptr) (uintptr, *kernel.Error) {
	if align == 0 {
		align = uintptr(mem.PageSize)
	}

	m.mu.Acquire()
	defer m.mu.Release()

	block, ok := m.free.cut(size, align, at)
	if !ok {
		return 0, errBootAllocOutOfMemory
	}

	if !m.reserved.put(block) {
		// Put the block back; the reserved set being full is the
		// caller's problem to diagnose, not silent memory loss.
		m.free.put(block)
		return 0, errBootAllocBlockFull
	}

	return block.base, nil
}

// Deallocate releases a block previously returned by Allocate/AllocateAt,
// returning it to the free set.
func (m *BootMemoryManager) Deallocate(addr uintptr) *kernel.Error {
	m.mu.Acquire()
	defer m.mu.Release()

	block, ok := m.reserved.take(addr)
	if !ok {
		return errBootAllocBadFree
	}

	if !m.free.put(block) {
		m.reserved.put(block)
		return errBootAllocBlockFull
	}

	return nil
}

// AvailableRegions invokes fn once for every free extent, in ascending base
// order, stopping early if fn returns false.
func (m *BootMemoryManager) AvailableRegions(fn func(base uintptr, size mem.Size) bool) {
	m.mu.Acquire()
	defer m.mu.Release()

	m.free.visit(fn)
}

// AllocFrame reserves and returns a single physical page frame. It exists so
// that BootMemoryManager can act as a drop-in frame source for the paging
// bootstrap code, which only ever needs one frame at a time.
func (m *BootMemoryManager) AllocFrame() (pmm.Frame, *kernel.Error) {
	base, err := m.Allocate(mem.Size(mem.PageSize), uintptr(mem.PageSize))
	if err != nil {
		return pmm.InvalidFrame, err
	}
	return pmm.FrameFromAddress(base), nil
}

// Init seeds the package-level boot memory manager from the bootloader's
// memory map, reserving the pages occupied by the kernel image itself.
func Init(kernelStart, kernelEnd uintptr) {
	earlyAllocator.initFromMultibootMemoryMap(kernelStart, kernelEnd)
	earlyAllocator.printMemoryMap()
}

// AllocFrame reserves a single physical page frame. Before
// PromoteToBuddyAllocator runs it draws from the package-level boot memory
// manager; afterwards it draws from the buddy page-frame allocator. Callers
// such as vmm.FrameAllocatorFn and the slab allocator can use it unchanged
// across the handoff.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	if pageFrameAllocator != nil {
		return AllocFrameFromBuddy()
	}
	return earlyAllocator.AllocFrame()
}

// initFromMultibootMemoryMap seeds the manager's free set from the
// bootloader-provided memory map and reserves the pages occupied by the
// kernel image itself, rounding outwards to whole pages.
func (m *BootMemoryManager) initFromMultibootMemoryMap(kernelStart, kernelEnd uintptr) {
	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	kernelStartFrame := kernelStart &^ pageSizeMinus1
	kernelEndFrame := (kernelEnd + pageSizeMinus1) &^ pageSizeMinus1

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mem.PageSize) {
			return true
		}

		regionStart := uintptr(region.PhysAddress) &^ pageSizeMinus1
		regionEnd := (uintptr(region.PhysAddress+region.Length) + pageSizeMinus1) &^ pageSizeMinus1

		if regionEnd <= regionStart {
			return true
		}

		m.free.put(memblock{present: true, base: regionStart, size: mem.Size(regionEnd - regionStart)})
		return true
	})

	if kernelEndFrame > kernelStartFrame {
		// Reserve the kernel image range so it can never be handed out
		// by Allocate; AddReservedRegion carves it back out of the free
		// set it was just registered in above.
		if err := m.AddReservedRegion(kernelStartFrame, mem.Size(kernelEndFrame-kernelStartFrame)); err != nil {
			early.Printf("[boot_mem_alloc] failed to reserve kernel image range: %s\n", err)
		}
	}
}

// printMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func (m *BootMemoryManager) printMemoryMap() {
	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
}
