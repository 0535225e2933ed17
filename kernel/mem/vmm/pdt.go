package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

var (
	// switchPDTFn is used by tests to mock calls to cpu.SwitchPDT.
	switchPDTFn = cpu.SwitchPDT

	// activePDTFn is used by tests to mock calls to cpu.ActivePDT.
	activePDTFn = cpu.ActivePDT

	errNoFrameAllocator = &kernel.Error{Module: "vmm", Message: "no frame allocator registered"}
)

// PageDirectoryTable represents the top-most page table (PML4) for an
// address space. A PageDirectoryTable is either the currently active one
// (reachable through the recursive self-map) or an inactive one, manipulated
// through a temporary mapping.
type PageDirectoryTable struct {
	// pdtFrame is the physical frame backing the PML4 table.
	pdtFrame pmm.Frame
}

// Init clears the supplied frame and installs the recursive self-map entry
// that makes the table reachable at pdtVirtualAddr once active.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	tmp, err := mapTemporaryFn(pdtFrame)
	if err != nil {
		return err
	}

	kernel.Memset(tmp.Address(), 0, uintptr(mem.PageSize))

	// Install the recursive self-map: the last PML4 entry points back to
	// the PML4 frame itself.
	lastEntry := (*pageTableEntry)(ptePtrFn(tmp.Address() + (511 << mem.PointerShift)))
	*lastEntry = 0
	lastEntry.SetFrame(pdtFrame)
	lastEntry.SetFlags(FlagPresent | FlagRW)

	return unmapFn(tmp)
}

// Map installs a mapping for this page directory table. If the table is not
// currently active, the mapping is installed through a temporary swap of the
// recursive self-map slot.
func (pdt *PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if pdt.isActive() {
		return mapFn(page, frame, flags)
	}

	return pdt.withTemporarySelfMap(func() *kernel.Error {
		return mapFn(page, frame, flags)
	})
}

// Unmap removes a mapping previously installed via Map.
func (pdt *PageDirectoryTable) Unmap(page Page) *kernel.Error {
	if pdt.isActive() {
		return unmapFn(page)
	}

	return pdt.withTemporarySelfMap(func() *kernel.Error {
		return unmapFn(page)
	})
}

// Activate installs this page directory table as the active one for the
// current CPU.
func (pdt *PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}

func (pdt *PageDirectoryTable) isActive() bool {
	return activePDTFn() == pdt.pdtFrame.Address()
}

// withTemporarySelfMap swaps the active PDT's last (self-map) entry to
// point to pdt's frame for the duration of fn, then restores it. This lets
// Map/Unmap reuse the regular walk-based implementation against an inactive
// table.
func (pdt *PageDirectoryTable) withTemporarySelfMap(fn func() *kernel.Error) *kernel.Error {
	selfMapEntry := (*pageTableEntry)(ptePtrFn(pdtVirtualAddr + (511 << mem.PointerShift)))
	saved := *selfMapEntry

	*selfMapEntry = 0
	selfMapEntry.SetFrame(pdt.pdtFrame)
	selfMapEntry.SetFlags(FlagPresent | FlagRW)
	flushTLBEntryFn(pdtVirtualAddr)

	err := fn()

	*selfMapEntry = saved
	flushTLBEntryFn(pdtVirtualAddr)

	return err
}
