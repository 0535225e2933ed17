package irq

import "testing"

func withFakeInterruptState(t *testing.T) *int {
	origDisable, origEnable := disableInterruptsFn, enableInterruptsFn
	origDepth := depth
	t.Cleanup(func() {
		disableInterruptsFn, enableInterruptsFn = origDisable, origEnable
		depth = origDepth
	})

	depth = 0
	calls := 0
	disableInterruptsFn = func() { calls++ }
	enableInterruptsFn = func() { calls-- }
	return &calls
}

func TestGuardDisablesOnlyOutermost(t *testing.T) {
	calls := withFakeInterruptState(t)

	outer := EnterGuard()
	if *calls != 1 {
		t.Fatalf("expected outermost guard to disable interrupts, calls=%d", *calls)
	}

	inner := EnterGuard()
	if *calls != 1 {
		t.Fatalf("expected nested guard not to touch interrupt state, calls=%d", *calls)
	}
	if Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", Depth())
	}

	inner.Release()
	if *calls != 1 {
		t.Fatalf("expected releasing an inner guard not to re-enable interrupts, calls=%d", *calls)
	}

	outer.Release()
	if *calls != 0 {
		t.Fatalf("expected releasing the outermost guard to re-enable interrupts, calls=%d", *calls)
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	withFakeInterruptState(t)

	g := EnterGuard()
	g.Release()
	g.Release()

	if Depth() != 0 {
		t.Fatalf("expected depth 0 after a double release, got %d", Depth())
	}
}

func TestGuardLeakAndReclaimPreserveDepth(t *testing.T) {
	calls := withFakeInterruptState(t)

	g := EnterGuard()
	EnterGuard()
	if Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", Depth())
	}

	// Simulate a context switch: the outgoing thread leaks its guard
	// instead of releasing it, so interrupts stay disabled and the depth
	// counter is untouched.
	g.Leak()
	if Depth() != 2 || *calls != 1 {
		t.Fatalf("expected leak to preserve depth and interrupt state, depth=%d calls=%d", Depth(), *calls)
	}

	reclaimed := Reclaim()
	if Depth() != 2 {
		t.Fatalf("expected reclaim to observe the preserved depth, got %d", Depth())
	}
	reclaimed.Release()
	if Depth() != 1 {
		t.Fatalf("expected depth 1 after releasing the reclaimed guard, got %d", Depth())
	}
}
