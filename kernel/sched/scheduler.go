// Package sched implements kernel thread scheduling: ready queues bucketed
// by priority serving a single dispatcher, cooperative and timer-driven preemptive
// switches, and the context-switch primitive threads are launched and
// resumed through.
package sched

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"gopheros/kernel/sync"
)

var (
	errNotInitialized   = &kernel.Error{Module: "sched", Message: "scheduler is not initialized"}
	errNoRunnableThread = &kernel.Error{Module: "sched", Message: "no runnable thread"}
	errUnknownThread    = &kernel.Error{Module: "sched", Message: "unknown thread id"}
)

// Scheduler owns the thread table and the ready/zombie queues for this CPU.
// The source this is grounded on keeps an array of per-CPU dispatchers;
// this kernel targets a single CPU so there is exactly one.
type Scheduler struct {
	mu      sync.Spinlock
	threads map[ThreadID]*TCB
	nextID  ThreadID

	// readyHead/readyTail are bucketed by priority so dispatch can give
	// lower numeric priorities strict precedence while staying FIFO
	// within a priority: idlePriority buckets, one per non-idle priority
	// value (0..idlePriority-1).
	readyHead, readyTail   [idlePriority]*TCB
	zombieHead, zombieTail *TCB
	idle                   *TCB
	running                *TCB
}

var sched *Scheduler

// switchToFn and cpuHaltFn indirect the assembly-backed primitives so tests
// can exercise dispatch decisions without a real stack switch. switchPDTFn,
// activePDTFn and setKernelEntryStackFn indirect the address-space install
// a task-carrying thread needs on dispatch.
var (
	switchToFn = switchTo
	cpuHaltFn  = cpu.Halt

	switchPDTFn           = cpu.SwitchPDT
	activePDTFn           = cpu.ActivePDT
	setKernelEntryStackFn = cpu.SetKernelEntryStack
)

// Init creates the scheduler, launches the idle thread and schedules main
// as the first runnable thread. It must run exactly once, before Launch,
// InitSwitch or Preempt are used.
func Init(main func()) {
	sched = &Scheduler{threads: map[ThreadID]*TCB{}}

	idle, err := sched.spawn(idleLoop, idlePriority, false)
	if err != nil {
		panic(err.Error())
	}
	sched.idle = idle

	if _, err := sched.spawn(main, 1, false); err != nil {
		panic(err.Error())
	}

	irq.SetTimerHandler(onTick)
	sync.SetYieldFn(Yield)
}

// Yield voluntarily gives up the CPU, rescheduling the current thread as
// Ready. It is installed as the sync package's spinlock yield hook so a
// thread spinning on a contended Spinlock reschedules instead of burning
// the CPU indefinitely.
func Yield() {
	Reschedule(Ready, nil)
}

// Launch creates a new thread running entry and schedules it Ready. Lower
// priority values run before higher ones on an otherwise-empty ready queue.
func Launch(entry func(), priority uint8) (ThreadID, *kernel.Error) {
	if sched == nil {
		return 0, errNotInitialized
	}
	t, err := sched.spawn(entry, priority, false)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// LaunchUser creates a new thread marked IsUser and schedules it Ready.
// kernel/task uses this for the kernel-mode trampoline that performs the
// ring transition into a loaded ELF image.
func LaunchUser(entry func(), priority uint8) (ThreadID, *kernel.Error) {
	if sched == nil {
		return 0, errNotInitialized
	}
	t, err := sched.spawn(entry, priority, true)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// AttachTask records the physical address of a page-table root that must be
// installed on the CPU whenever the given thread is dispatched. kernel/task
// calls this once, right after LaunchUser returns and before the thread can
// possibly run.
func AttachTask(id ThreadID, pdtRootPhysAddr uintptr) *kernel.Error {
	if sched == nil {
		return errNotInitialized
	}

	sched.mu.Acquire()
	t, ok := sched.threads[id]
	sched.mu.Release()
	if !ok {
		return errUnknownThread
	}

	t.pdtRoot = pdtRootPhysAddr
	return nil
}

// installAddressSpace activates next's page table and kernel-entry stack if
// it carries a task and its table is not already the one active on this CPU.
func installAddressSpace(next *TCB) {
	if next.pdtRoot == 0 {
		return
	}
	if activePDTFn() != next.pdtRoot {
		switchPDTFn(next.pdtRoot)
	}
	setKernelEntryStackFn(next.kernelStackTop())
}

func (s *Scheduler) spawn(entry func(), priority uint8, isUser bool) (*TCB, *kernel.Error) {
	s.mu.Acquire()
	id := s.nextID
	s.nextID++
	s.mu.Release()

	t, err := newTCB(id, entry, priority, isUser)
	if err != nil {
		return nil, err
	}

	s.mu.Acquire()
	s.threads[id] = t
	s.enqueue(t)
	s.mu.Release()
	return t, nil
}

// enqueue places t on the queue matching its current state. The idle
// thread is never queued: the dispatcher keeps it in a dedicated slot and
// only hands it out once every ready bucket runs dry. Callers must hold
// s.mu.
func (s *Scheduler) enqueue(t *TCB) {
	if t.Priority == idlePriority {
		return
	}
	switch t.State {
	case Ready:
		pushBack(&s.readyHead[t.Priority], &s.readyTail[t.Priority], t)
	case Zombie:
		pushBack(&s.zombieHead, &s.zombieTail, t)
	}
}

// next picks the thread the dispatcher hands control to next: the oldest
// ready thread in the lowest-numbered non-empty priority bucket, falling
// back to idle once every bucket is empty. Lower priority values always
// take precedence over higher ones; there is no fairness across buckets.
// Callers must hold s.mu.
func (s *Scheduler) next() *TCB {
	for p := 0; p < idlePriority; p++ {
		if t := popFront(&s.readyHead[p], &s.readyTail[p]); t != nil {
			return t
		}
	}
	return s.idle
}

// InitSwitch performs the first context switch on this CPU. Preemption
// starts disabled by one count specifically to cover the window between
// Init and this call; InitSwitch reclaims and releases that initial guard
// immediately before switching away so ordinary preemption accounting
// applies to every thread launched from here on.
func InitSwitch() {
	ReclaimPreemptGuard().Release()
	forceSwitch(nil)
}

func forceSwitch(guard *irq.Guard) {
	if sched == nil {
		panic(errNotInitialized.Error())
	}

	sched.mu.Acquire()
	next := sched.next()
	if next == nil {
		sched.mu.Release()
		panic(errNoRunnableThread.Error())
	}
	next.State = Running
	sched.running = next
	sched.mu.Release()

	installAddressSpace(next)

	if guard == nil {
		guard = irq.EnterGuard()
	}
	guard.Leak()

	var discard uint64
	switchToFn(&discard, next.rsp)

	irq.Reclaim().Release()
}

// Reschedule switches away from the currently running thread after first
// moving it to newState. Passing Running is a no-op. guard, if non-nil, is
// the interrupt guard already held by the caller (e.g. the timer top-half);
// Reschedule consumes it, leaking it across the switch and releasing it
// once this thread is resumed. Pass nil when calling from a context with no
// guard already held, such as a thread voluntarily yielding.
//
// This call blocks until the thread is switched back, or never returns if
// newState is Zombie.
func Reschedule(newState ThreadState, guard *irq.Guard) {
	if newState == Running {
		return
	}
	if sched == nil {
		panic(errNotInitialized.Error())
	}

	sched.mu.Acquire()
	next := sched.next()
	if next == nil {
		sched.mu.Release()
		return
	}
	next.State = Running

	cur := sched.running
	cur.State = newState
	sched.enqueue(cur)
	sched.running = next
	sched.mu.Release()

	installAddressSpace(next)

	if guard == nil {
		guard = irq.EnterGuard()
	}
	guard.Leak()

	switchToFn(&cur.rsp, next.rsp)

	irq.Reclaim().Release()
}

// Preempt reschedules the running thread as Ready, provided no
// PreemptGuard is currently held. It is installed as the reserved Timer
// vector's top-half by Init.
func Preempt(guard *irq.Guard) {
	if PreemptCount() == 0 {
		Reschedule(Ready, guard)
	}
}

func onTick(_ *irq.Info, guard *irq.Guard) {
	Preempt(guard)
}

// kthreadEntry is the landing pad every thread resumes at on its first
// switch-in. It reclaims and releases the interrupt guard that was leaked
// across that first switch, runs the thread's entry point to completion,
// and reschedules the thread as a Zombie.
func kthreadEntry() {
	irq.Reclaim().Release()

	sched.running.entry()

	Reschedule(Zombie, nil)
	panic("sched: a zombie thread was switched back to")
}

func idleLoop() {
	for {
		cpuHaltFn()
	}
}

func pushBack(head, tail **TCB, t *TCB) {
	t.next, t.prev = nil, *tail
	if *tail != nil {
		(*tail).next = t
	} else {
		*head = t
	}
	*tail = t
}

func popFront(head, tail **TCB) *TCB {
	t := *head
	if t == nil {
		return nil
	}
	*head = t.next
	if *head != nil {
		(*head).prev = nil
	} else {
		*tail = nil
	}
	t.next, t.prev = nil, nil
	return t
}
