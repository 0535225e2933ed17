// +build amd64

package vmm

import "math"

const (
	// pageLevels is the depth of the x86-64 page table tree: PML4, PDPT, PD, PT.
	pageLevels = 4

	// ptePhysPageMask isolates the physical frame address bits of a page
	// table entry, excluding the flag bits at both ends.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is the last page of the recursively mapped address
	// space. It is reserved for establishing temporary mappings used while
	// bootstrapping page tables that are not yet active.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// pdtVirtualAddr is the virtual address of the top-most page table
	// (PML4) as seen through the recursive self-mapping slot.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))
)

// pageLevelBits holds the number of virtual address bits consumed by the
// index at each page table level (PML4, PDPT, PD, PT).
var pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

// pageLevelShifts holds the bit offset of the index field for each page
// table level inside a virtual address.
var pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}

// PageTableEntryFlag values understood by the paging engine. MapSize adds
// FlagHugePage itself for large and huge pages; no other combination of
// flags is checked against the page table level.
const (
	FlagPresent             PageTableEntryFlag = 1 << 0
	FlagRW                  PageTableEntryFlag = 1 << 1
	FlagUserAccessible      PageTableEntryFlag = 1 << 2
	FlagWriteThroughCaching PageTableEntryFlag = 1 << 3
	FlagDoNotCache          PageTableEntryFlag = 1 << 4
	FlagAccessed            PageTableEntryFlag = 1 << 5
	FlagDirty               PageTableEntryFlag = 1 << 6
	FlagHugePage            PageTableEntryFlag = 1 << 7
	FlagGlobal              PageTableEntryFlag = 1 << 8
	FlagNoExecute           PageTableEntryFlag = 1 << 63
)
