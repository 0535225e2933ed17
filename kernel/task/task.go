// Package task implements user-mode processes: a per-task virtual memory
// map, an ELF64 loader restricted to PT_LOAD segments, and the kernel-thread
// trampoline that performs the privilege-lowering transition into user mode.
package task

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/vmm"
	"gopheros/kernel/sched"
	"gopheros/kernel/sync"
)

// userStackTop is the fixed high user-window address the initial user
// stack's top page ends at; the stack itself occupies the four pages below
// it.
const (
	userStackTop   = uintptr(0x00007ffffffff000)
	userStackPages = 4
	userStackSize  = uintptr(userStackPages) * uintptr(mem.PageSize)

	// taskPriority is the dispatcher priority every task's kernel-mode
	// trampoline thread runs at.
	taskPriority = 1
)

// Task owns a per-process virtual memory map and the image it was launched
// from. Its thread is attached through sched.AttachTask so the scheduler
// installs its page table whenever that thread is dispatched.
type Task struct {
	ID    sched.ThreadID
	mmap  *MMap
	pdt   vmm.PageDirectoryTable
	image []byte
}

var (
	tasksMu sync.Spinlock
	tasks   = map[sched.ThreadID]*Task{}
)

// allocFrameFn indirects physical frame allocation so tests can exercise
// Launch without a live page frame allocator.
var allocFrameFn = allocator.AllocFrame

// enterUserFn indirects the privilege-lowering transition so tests can
// observe a launch reaching user mode without actually executing iretq.
var enterUserFn = enterUser

// initPDTFn and copyKernelMappingsFn indirect the address-space bring-up
// steps Launch performs on a fresh page directory table so tests can
// exercise task bookkeeping without a live MMU.
var (
	initPDTFn = func(pdt *vmm.PageDirectoryTable, frame pmm.Frame) *kernel.Error {
		return pdt.Init(frame)
	}
	copyKernelMappingsFn = vmm.CopyKernelMappings
)

// launchUserFn and attachTaskFn indirect the scheduler calls Launch makes so
// tests can exercise task bring-up without a running scheduler.
var (
	launchUserFn = sched.LaunchUser
	attachTaskFn = sched.AttachTask
)

// Launch creates a fresh address space seeded with the kernel mappings, maps
// a user stack at the fixed user-window address, and starts a kernel thread
// that loads image as an ELF64 executable and transitions into it. image
// holds the whole executable, already read by the caller; a Task keeps no
// open files.
func Launch(image []byte) (sched.ThreadID, *kernel.Error) {
	pdtFrame, err := allocFrameFn()
	if err != nil {
		return 0, err
	}

	t := &Task{image: image}
	if err := initPDTFn(&t.pdt, pdtFrame); err != nil {
		return 0, err
	}
	if err := copyKernelMappingsFn(&t.pdt); err != nil {
		return 0, err
	}
	t.mmap = newMMap(&t.pdt)

	stackFrames := make([]pmm.Frame, userStackPages)
	for i := range stackFrames {
		f, err := allocFrameFn()
		if err != nil {
			return 0, err
		}
		stackFrames[i] = f
	}
	stackAttrs := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible
	if err := t.mmap.Map(userStackTop-userStackSize, stackFrames, stackAttrs); err != nil {
		return 0, err
	}

	id, err := launchUserFn(t.entry, taskPriority)
	if err != nil {
		return 0, err
	}
	t.ID = id

	if err := attachTaskFn(id, pdtFrame.Address()); err != nil {
		return 0, err
	}

	tasksMu.Acquire()
	tasks[id] = t
	tasksMu.Release()

	return id, nil
}

// entry is the kernel-thread entry point Launch starts. By the time it
// runs, the scheduler has already installed this task's page table on the
// CPU (see sched.AttachTask and installAddressSpace), so the ELF image can
// be loaded by writing straight through its mapped user addresses.
func (t *Task) entry() {
	entryPoint, err := loadELF(t.mmap, t.image)
	if err != nil {
		panic(err.Error())
	}
	enterUserFn(userStackTop, entryPoint)
}
