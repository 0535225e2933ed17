package sched

import "sync/atomic"

// preemptGuardCnt is the reentrant preempt-disable counter. It starts at 1
// so nothing preempts the very first thread launched by Init before
// InitSwitch explicitly reclaims that initial guard.
var preemptGuardCnt uint32 = 1

// PreemptGuard is an RAII-style handle on the preempt-disable counter.
// Holding one guarantees Preempt will not reschedule the current thread.
type PreemptGuard struct {
	released bool
}

// EnterPreemptGuard increments the reentrant preempt-disable counter and
// returns a guard tracking it.
func EnterPreemptGuard() *PreemptGuard {
	atomic.AddUint32(&preemptGuardCnt, 1)
	return &PreemptGuard{}
}

// Release decrements the counter once. Releasing an already-released or
// leaked guard has no effect.
func (g *PreemptGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	atomic.AddUint32(&preemptGuardCnt, ^uint32(0))
}

// Leak detaches the guard from the counter without decrementing it.
func (g *PreemptGuard) Leak() {
	g.released = true
}

// ReclaimPreemptGuard reconstructs a guard previously detached with Leak.
// It must only be called when preemptGuardCnt already reflects the leaked
// guard's contribution.
func ReclaimPreemptGuard() *PreemptGuard {
	return &PreemptGuard{}
}

// PreemptCount returns the current reentrant preempt-disable depth. Preempt
// only reschedules the running thread when this is zero.
func PreemptCount() uint32 {
	return atomic.LoadUint32(&preemptGuardCnt)
}
