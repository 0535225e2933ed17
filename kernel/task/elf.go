package task

import (
	"bytes"
	"debug/elf"
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/vmm"
	"unsafe"
)

// userSegmentFlags are the page table entry flags every PT_LOAD segment is
// mapped with: present, writeable, and reachable from ring 3. This kernel
// loads images eagerly and does not honor a segment's own read/write/exec
// bits; see the design notes on why (no demand paging, no W^X split).
const userSegmentFlags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible

var (
	errNotELF64      = &kernel.Error{Module: "task", Message: "image is not a valid ELF64 executable"}
	errNoEntryPoint  = &kernel.Error{Module: "task", Message: "elf image has no entry point"}
	errSegmentTooBig = &kernel.Error{Module: "task", Message: "elf segment extends past the end of the image"}
)

// memsetFn and memcopyFn indirect the raw-memory writes loadSegment performs
// against a freshly mapped user address so tests can exercise segment
// bookkeeping without writing through an address only a live MMU can back.
var (
	memsetFn  = kernel.Memset
	memcopyFn = kernel.Memcopy
)

// loadELF walks every PT_LOAD segment of image, allocates physical frames
// sized by p_memsz (aligned to p_align), reserves a matching user-virtual
// range at p_vaddr in mm, maps it user+writeable+write-back, zeroes it and
// then copies p_filesz bytes from the file image over the front of it,
// leaving the remainder (bss) zeroed. It returns the image's entry point.
func loadELF(mm *MMap, image []byte) (uintptr, *kernel.Error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil || f.Class != elf.ELFCLASS64 {
		return 0, errNotELF64
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(mm, image, prog); err != nil {
			return 0, err
		}
	}

	if f.Entry == 0 {
		return 0, errNoEntryPoint
	}
	return uintptr(f.Entry), nil
}

func loadSegment(mm *MMap, image []byte, prog *elf.Prog) *kernel.Error {
	align := uintptr(prog.Align)
	if align == 0 {
		align = uintptr(mem.PageSize)
	}
	vaddr := uintptr(prog.Vaddr) &^ (uintptr(mem.PageSize) - 1)
	memSize := alignUp(uintptr(prog.Vaddr)-vaddr+uintptr(prog.Memsz), align)

	pageCount := memSize / uintptr(mem.PageSize)
	if memSize%uintptr(mem.PageSize) != 0 {
		pageCount++
	}
	if pageCount == 0 {
		return nil
	}

	frames := make([]pmm.Frame, pageCount)
	for i := range frames {
		frame, err := allocFrameFn()
		if err != nil {
			return err
		}
		frames[i] = frame
	}

	if err := mm.Map(vaddr, frames, userSegmentFlags); err != nil {
		return err
	}

	off, fileSize := prog.Off, prog.Filesz
	if off+fileSize > uint64(len(image)) {
		return errSegmentTooBig
	}

	memsetFn(vaddr, 0, memSize)
	if fileSize > 0 {
		memcopyFn(uintptr(unsafe.Pointer(&image[off])), uintptr(prog.Vaddr), uintptr(fileSize))
	}

	return nil
}

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
