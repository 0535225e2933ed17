package sched

import (
	"gopheros/kernel"
	"gopheros/kernel/mem/alloc"
	"reflect"
	"unsafe"
)

// ThreadID identifies a thread for the lifetime of the kernel.
type ThreadID uint32

// ThreadState is the current execution state of a thread.
type ThreadState uint8

const (
	// Running threads are the one currently executing on the CPU. Exactly
	// one thread is Running at any time.
	Running ThreadState = iota
	// Ready threads are runnable and waiting on a dispatcher queue.
	Ready
	// Zombie threads have returned from their entry point and will never
	// run again; they remain in the thread table until reaped.
	Zombie
)

// idlePriority is reserved for the per-CPU idle thread. It never sits on the
// ready queue; the dispatcher keeps it in a dedicated slot and only hands it
// out when no other thread is runnable.
const idlePriority = 255

// KernelStackSize is the size, in bytes, of a thread's kernel stack. The
// source this is grounded on packs an intrusive link, a small metadata
// struct and the stack itself into one page-aligned, 2-page allocation so
// that a saved stack pointer can be masked down to recover the owning
// thread with no lookup. This port keeps TCBs as ordinary Go values tracked
// in the scheduler's thread table instead (see Scheduler.running), so only
// the raw stack bytes need the page-backed allocation; the 2-page sizing is
// kept as-is.
const KernelStackSize = 2 * 4096

// savedRegs is the number of callee-saved registers switchTo pushes and
// pops around a context switch: r15, r14, r13, r12, rbx, rbp.
const savedRegs = 6

// TCB is a thread control block: the scheduler's metadata for one thread.
// The stack it points at is the only part of a thread backed by real
// memory; everything else lives in this struct.
type TCB struct {
	ID       ThreadID
	State    ThreadState
	IsUser   bool
	Priority uint8

	entry func()
	rsp   uint64
	stack unsafe.Pointer

	// pdtRoot is the physical address of this thread's page-table root.
	// It is zero for ordinary kernel threads; AttachTask sets it for the
	// kernel-mode trampoline a task is launched on, and forceSwitch /
	// Reschedule install it on the CPU whenever such a thread is
	// dispatched.
	pdtRoot uintptr

	next, prev *TCB
}

// kernelStackTop returns the address the CPU's kernel-entry stack pointer
// should be set to while this thread is running, i.e. the top of its own
// kernel stack (stacks grow down from there).
func (t *TCB) kernelStackTop() uintptr {
	return uintptr(t.stack) + KernelStackSize
}

// allocStackFn indirects the stack allocation so tests can back threads
// with plain Go memory instead of requiring the allocator façade's full
// page-frame/MMU machinery.
var allocStackFn = alloc.Alloc

// newTCB allocates a kernel stack for entry and lays down the initial
// register frame switchTo expects to find on first switching into it.
func newTCB(id ThreadID, entry func(), priority uint8, isUser bool) (*TCB, *kernel.Error) {
	stack, err := allocStackFn(KernelStackSize)
	if err != nil {
		return nil, err
	}

	t := &TCB{
		ID:       id,
		State:    Ready,
		IsUser:   isUser,
		Priority: priority,
		entry:    entry,
		stack:    stack,
	}
	t.rsp = writeInitStack(stack, KernelStackSize)
	return t, nil
}

// writeInitStack pushes the frame switchTo's epilogue pops on a thread's
// very first switch-in: six zeroed callee-saved registers, kthreadEntry as
// the return address, and a padding slot to keep the stack 16-byte aligned
// once kthreadEntry is reached.
func writeInitStack(stack unsafe.Pointer, size uintptr) uint64 {
	words := *(*[]uint64)(unsafe.Pointer(&reflect.SliceHeader{
		Data: uintptr(stack),
		Len:  int(size / 8),
		Cap:  int(size / 8),
	}))

	n := len(words)
	words[n-1] = 0 // padding
	words[n-2] = uint64(reflect.ValueOf(kthreadEntry).Pointer())
	for i := 3; i <= 2+savedRegs; i++ {
		words[n-i] = 0
	}

	return uint64(uintptr(stack) + size - uintptr(savedRegs+2)*8)
}
