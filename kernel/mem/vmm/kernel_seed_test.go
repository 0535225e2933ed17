package vmm

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"testing"
	"unsafe"
)

func TestCopyKernelMappings(t *testing.T) {
	defer func() {
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		ptePtrFn = func(entryAddr uintptr) unsafe.Pointer { return unsafe.Pointer(entryAddr) }
	}()

	var activeTable, dstTable [512]pageTableEntry
	for i := range activeTable {
		activeTable[i] = pageTableEntry(0xf00d0000 + uintptr(i))
	}

	activeBase := uintptr(unsafe.Pointer(&activeTable[0]))
	dstBase := uintptr(unsafe.Pointer(&dstTable[0]))

	mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) {
		return PageFromAddress(dstBase), nil
	}
	unmappedPage := Page(0)
	unmapFn = func(p Page) *kernel.Error {
		unmappedPage = p
		return nil
	}
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		switch {
		case entryAddr >= pdtVirtualAddr:
			idx := (entryAddr - pdtVirtualAddr) >> mem.PointerShift
			return unsafe.Pointer(&activeTable[idx])
		default:
			idx := (entryAddr - dstBase) >> mem.PointerShift
			return unsafe.Pointer(&dstTable[idx])
		}
	}

	var dst PageDirectoryTable
	dst.pdtFrame = pmm.FrameFromAddress(dstBase)
	dstTable[511] = pageTableEntry(0xdeadbeef) // recursive self-map slot, must survive untouched

	if err := CopyKernelMappings(&dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := kernelMappingLo; i < kernelMappingHi; i++ {
		if dstTable[i] != activeTable[i] {
			t.Fatalf("entry %d: expected %#x, got %#x", i, activeTable[i], dstTable[i])
		}
	}
	if dstTable[511] != pageTableEntry(0xdeadbeef) {
		t.Fatal("expected the recursive self-map slot to be left untouched")
	}
	if unmappedPage != PageFromAddress(dstBase) {
		t.Fatal("expected the temporary mapping to be released")
	}
}
