package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
)

// kernelMappingLo and kernelMappingHi bound the PML4 entries a freshly
// initialized task address space inherits from the currently active one:
// every index except the recursive self-map slot (511), which
// PageDirectoryTable.Init already installs pointing at dst's own frame.
const (
	kernelMappingLo = 256
	kernelMappingHi = 511
)

// CopyKernelMappings copies the high-half PML4 entries of the currently
// active page directory table into dst. A task's address space shares the
// kernel-image window and any early-reserved mappings with every other
// address space (there is no permanent physical-remap window of all RAM); only the low half (the user
// window) differs between tasks, so seeding a new table is a matter of
// duplicating these top-level entries rather than walking every
// intermediate table.
func CopyKernelMappings(dst *PageDirectoryTable) *kernel.Error {
	tmp, err := mapTemporaryFn(dst.pdtFrame)
	if err != nil {
		return err
	}

	for i := kernelMappingLo; i < kernelMappingHi; i++ {
		src := (*pageTableEntry)(ptePtrFn(pdtVirtualAddr + (uintptr(i) << mem.PointerShift)))
		entry := (*pageTableEntry)(ptePtrFn(tmp.Address() + (uintptr(i) << mem.PointerShift)))
		*entry = *src
	}

	return unmapFn(tmp)
}
