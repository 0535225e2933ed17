package irq

// Init installs the interrupt descriptor table, remaps the legacy 8259
// controllers so that hardware IRQs land on vectors 32..47 and masks every
// line except the timer (IRQ 0) and the keyboard (IRQ 1).
func Init() {
	installIDT()
	remapPIC()
}

// installIDT populates the IDT with the generated gate entries and loads it
// into the CPU. All gate entries are initially marked as non-present; they
// become usable once a handler is registered for the corresponding vector
// via HandleException, HandleExceptionWithCode or RegisterHandler.
func installIDT()

// dispatchInterrupt is the common entrypoint invoked by every interrupt gate
// stub generated by interruptGateEntries. It routes the interrupt to the
// registered exception handler or, for vectors 32..47, to dispatchIRQ.
func dispatchInterrupt()

// interruptGateEntries emits one gate stub per usable interrupt vector. Each
// stub saves the register file, pushes the vector number and falls through
// to dispatchInterrupt.
func interruptGateEntries()
