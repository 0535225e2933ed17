package ps2

import (
	"gopheros/kernel"
	"gopheros/kernel/irq"
	"testing"
)

func TestDecodeMakeAndBreak(t *testing.T) {
	k := NewKeyboard()
	k.decode(0x1e) // make: 'a'
	k.decode(0x9e) // break: 'a'

	ev, ok := k.Next()
	if !ok || ev.Code != 0x1e || !ev.Pressed {
		t.Fatalf("expected make event for 0x1e, got %+v ok=%v", ev, ok)
	}
	ev, ok = k.Next()
	if !ok || ev.Code != 0x1e || ev.Pressed {
		t.Fatalf("expected break event for 0x1e, got %+v ok=%v", ev, ok)
	}
	if _, ok := k.Next(); ok {
		t.Fatal("expected the queue to be empty")
	}
}

func TestDecodeExtraSequenceIsStubbed(t *testing.T) {
	k := NewKeyboard()
	k.decode(0xe0) // lead byte for an Extra sequence
	k.decode(0x1c) // would be numpad-enter; discarded as the sequence's continuation

	if _, ok := k.Next(); ok {
		t.Fatal("expected no event to be produced for an Extra sequence")
	}
}

func TestDecodePauseSequenceIsStubbed(t *testing.T) {
	k := NewKeyboard()
	k.decode(0xe1)
	k.decode(0x1d)

	if _, ok := k.Next(); ok {
		t.Fatal("expected no event to be produced for a Pause sequence")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	k := NewKeyboard()
	for i := 0; i < eventQueueSize+1; i++ {
		k.decode(0x1e)
	}

	count := 0
	for {
		if _, ok := k.Next(); !ok {
			break
		}
		count++
	}
	if count != eventQueueSize {
		t.Fatalf("expected the queue to cap at %d events, got %d", eventQueueSize, count)
	}
}

func TestDriverInitRegistersIRQHandler(t *testing.T) {
	saved := registerHandlerFn
	defer func() { registerHandlerFn = saved }()

	var gotVec irq.IRQVector
	registerHandlerFn = func(vec irq.IRQVector, handler irq.Handler) *kernel.Error {
		gotVec = vec
		return nil
	}

	k := NewKeyboard()
	if err := k.DriverInit(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotVec != irq.Keyboard {
		t.Fatalf("expected the handler to be registered on the Keyboard vector, got %v", gotVec)
	}
}

func TestHandleIRQReadsDataPortAndDecodes(t *testing.T) {
	saved := portReadByteFn
	defer func() { portReadByteFn = saved }()
	portReadByteFn = func(uint16) uint8 { return 0x1e }

	k := NewKeyboard()
	k.handleIRQ()

	ev, ok := k.Next()
	if !ok || ev.Code != 0x1e || !ev.Pressed {
		t.Fatalf("expected a decoded make event, got %+v ok=%v", ev, ok)
	}
}
