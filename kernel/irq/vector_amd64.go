package irq

import "gopheros/kernel"

// IRQVector identifies a hardware interrupt line after the legacy PIC remap
// performed by Init; valid values are 32 (timer) through 47 (IRQ 15).
type IRQVector uint8

const (
	// Timer is the vector the preemption timer fires on. It cannot be
	// registered via RegisterHandler; the scheduler owns it exclusively.
	Timer = IRQVector(vectorBase + irqTimer)

	// Keyboard is the vector the PS/2 keyboard controller fires on.
	Keyboard = IRQVector(vectorBase + irqKeyboard)

	minRegistrableVector = vectorBase + 1
	maxRegistrableVector = vectorBase + 15
)

var errBadIRQVector = &kernel.Error{Module: "irq", Message: "vector is not registrable"}

// Info describes the context an IRQ handler is invoked with: the line that
// fired and the location execution was interrupted at.
type Info struct {
	Vector         IRQVector
	InterruptedRIP uintptr
	InterruptedRSP uintptr
}

// Handler is a top-half invoked with interrupts already disabled. It must
// not re-enable interrupts; the supplied Guard tracks the nesting depth that
// was already in effect when the handler was entered.
type Handler func(*Info, *Guard)

// handlerChain holds the registered top-halves for a single IRQ line. A line
// may have more than one handler (e.g. shared PCI lines); they run in
// registration order.
type handlerChain struct {
	handlers []Handler
}

var chains [16]handlerChain

// timerHandlerFn is the Timer vector's top-half. It defaults to a no-op so
// the timer can fire harmlessly before the scheduler installs itself.
var timerHandlerFn Handler = func(*Info, *Guard) {}

// SetTimerHandler installs handler as the reserved Timer vector's top-half.
// Only the scheduler should call this; everyone else registers through
// RegisterHandler, which rejects the Timer vector outright.
func SetTimerHandler(handler Handler) {
	timerHandlerFn = handler
}

// RegisterHandler installs handler as a top-half for vec. Only vectors
// 33..47 (minRegistrableVector..maxRegistrableVector) may be registered;
// vector 32 is reserved for the scheduler's preemption timer. Registering
// an out-of-range vector installs nothing and returns errBadIRQVector.
func RegisterHandler(vec IRQVector, handler Handler) *kernel.Error {
	if vec < minRegistrableVector || vec > maxRegistrableVector {
		return errBadIRQVector
	}

	line := uint8(vec) - vectorBase
	chains[line].handlers = append(chains[line].handlers, handler)
	Unmask(line)
	return nil
}

// dispatchIRQ is called by dispatchInterrupt for every vector in
// 32..47. It runs every registered top-half for the line, in order, with a
// freshly entered interrupt guard, then acknowledges the interrupt.
func dispatchIRQ(vector uint8, interruptedRIP, interruptedRSP uintptr) {
	line := vector - vectorBase
	guard := EnterGuard()

	info := &Info{
		Vector:         IRQVector(vector),
		InterruptedRIP: interruptedRIP,
		InterruptedRSP: interruptedRSP,
	}

	if IRQVector(vector) == Timer {
		timerHandlerFn(info, guard)
	} else {
		for _, h := range chains[line].handlers {
			h(info, guard)
		}
	}

	guard.Release()
	sendEOI(vector)
}
