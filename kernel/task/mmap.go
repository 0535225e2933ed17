package task

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/vmm"
)

// userWindowStart and userWindowEnd bound the user window: the low half of
// the virtual address space. Every region a task reserves must fall inside
// it.
const (
	userWindowStart = uintptr(0)
	userWindowEnd   = uintptr(0x0000800000000000)
)

var (
	errRegionOutOfWindow = &kernel.Error{Module: "task", Message: "requested region falls outside the user window"}
	errRegionOverlaps    = &kernel.Error{Module: "task", Message: "requested region overlaps an already-reserved region"}
)

// region is a reserved, page-aligned [start, end) range of user-virtual
// addresses.
type region struct {
	start, end uintptr
}

// MMap is a task's virtual memory map: an ordered list of non-overlapping
// user-virtual regions, each mapped into the task's own page directory
// table.
type MMap struct {
	pdt     *vmm.PageDirectoryTable
	regions []region
}

func newMMap(pdt *vmm.PageDirectoryTable) *MMap {
	return &MMap{pdt: pdt}
}

// mapPageFn indirects *vmm.PageDirectoryTable.Map so tests can exercise
// MMap's reservation bookkeeping without a live MMU backing the mapping.
var mapPageFn = func(pdt *vmm.PageDirectoryTable, page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
	return pdt.Map(page, frame, flags)
}

// reserve inserts [addr, addr+size) into the sorted region list. size is
// rounded up to a page boundary. Overlapping an existing region, or falling
// outside the user window, fails the reservation.
func (m *MMap) reserve(addr, size uintptr) *kernel.Error {
	size = (size + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	end := addr + size
	if end < addr || addr < userWindowStart || end > userWindowEnd {
		return errRegionOutOfWindow
	}

	idx := 0
	for ; idx < len(m.regions); idx++ {
		if end <= m.regions[idx].start {
			break
		}
		if addr < m.regions[idx].end {
			return errRegionOverlaps
		}
	}

	m.regions = append(m.regions, region{})
	copy(m.regions[idx+1:], m.regions[idx:])
	m.regions[idx] = region{start: addr, end: end}
	return nil
}

// Map reserves a region starting at addr sized to cover len(frames) pages
// and maps each frame in order, applying flags.
func (m *MMap) Map(addr uintptr, frames []pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
	size := uintptr(len(frames)) * uintptr(mem.PageSize)
	if err := m.reserve(addr, size); err != nil {
		return err
	}

	page := vmm.PageFromAddress(addr)
	for i, frame := range frames {
		if err := mapPageFn(m.pdt, page+vmm.Page(i), frame, flags); err != nil {
			return err
		}
	}
	return nil
}
