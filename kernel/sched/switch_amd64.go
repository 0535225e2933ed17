package sched

// switchTo saves the callee-saved registers and the current stack pointer
// to *oldRSP, switches the stack pointer to newRSP, and resumes execution
// there. If the thread switched to is new, it resumes in kthreadEntry; if
// it was switched out earlier by a previous switchTo call, it resumes right
// after that call returned.
//
// This function blocks until the thread switched away from one is switched
// back to. Callers release the scheduler's lock before the call and keep an
// interrupt guard leaked across it, reclaiming it afterwards, as Reschedule
// and forceSwitch do.
func switchTo(oldRSP *uint64, newRSP uint64)
