package irq

import "gopheros/kernel/cpu"

var (
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// Guard is a scoped interrupt-disable guard. Constructing the outermost
// Guard disables interrupts on the current CPU; releasing the outermost
// Guard re-enables them. Nested guards only adjust a counter so that code
// paths that each independently need interrupts disabled can be composed
// without accidentally re-enabling interrupts while an outer caller still
// needs them off.
type Guard struct {
	released bool
}

// depth counts the number of Guards currently held. It is not safe for
// concurrent use by multiple CPUs; this kernel runs a single dispatcher per
// the scheduler design and protects depth with interrupts already disabled
// for any code path that mutates it.
var depth uint32

// EnterGuard disables interrupts, if they are not already disabled by an
// outer guard, and returns a new Guard tracking the nesting depth.
func EnterGuard() *Guard {
	if depth == 0 {
		disableInterruptsFn()
	}
	depth++
	return &Guard{}
}

// Release drops the guard. Once the outermost guard is released, interrupts
// are re-enabled. Releasing an already-released guard has no effect.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true

	depth--
	if depth == 0 {
		enableInterruptsFn()
	}
}

// Leak detaches the guard from its nesting depth without decrementing the
// counter or re-enabling interrupts. It is used when a guard must cross a
// context switch: the outgoing thread leaks its guard instead of releasing
// it, and the incoming thread calls Reclaim to obtain a Guard representing
// the same nesting depth. The depth counter itself is untouched by Leak, so
// it is already correct on the other side of the switch.
func (g *Guard) Leak() {
	g.released = true
}

// Reclaim reconstructs a Guard previously detached via Leak across a
// context switch. It must only be called when depth already reflects the
// nesting level the leaked guard represented.
func Reclaim() *Guard {
	return &Guard{}
}

// Depth returns the current nesting depth. It is primarily useful for tests
// and for the preempt guard, which needs to know whether any interrupt
// guard is currently held.
func Depth() uint32 {
	return depth
}
