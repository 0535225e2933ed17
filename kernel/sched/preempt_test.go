package sched

import "testing"

func withFakePreemptCount(t *testing.T) {
	t.Helper()
	saved := preemptGuardCnt
	t.Cleanup(func() { preemptGuardCnt = saved })
	preemptGuardCnt = 0
}

func TestEnterPreemptGuardIncrementsAndReleaseDecrements(t *testing.T) {
	withFakePreemptCount(t)

	g := EnterPreemptGuard()
	if PreemptCount() != 1 {
		t.Fatalf("expected count 1, got %d", PreemptCount())
	}

	g.Release()
	if PreemptCount() != 0 {
		t.Fatalf("expected count 0 after release, got %d", PreemptCount())
	}
}

func TestPreemptGuardReleaseIsIdempotent(t *testing.T) {
	withFakePreemptCount(t)

	g := EnterPreemptGuard()
	g.Release()
	g.Release()

	if PreemptCount() != 0 {
		t.Fatalf("expected count 0, got %d", PreemptCount())
	}
}

func TestPreemptGuardLeakAndReclaimPreserveCount(t *testing.T) {
	withFakePreemptCount(t)

	g := EnterPreemptGuard()
	g.Leak()
	if PreemptCount() != 1 {
		t.Fatalf("expected leak to preserve the count, got %d", PreemptCount())
	}

	reclaimed := ReclaimPreemptGuard()
	if PreemptCount() != 1 {
		t.Fatalf("expected reclaim not to touch the count, got %d", PreemptCount())
	}

	reclaimed.Release()
	if PreemptCount() != 0 {
		t.Fatalf("expected release after reclaim to decrement, got %d", PreemptCount())
	}
}
