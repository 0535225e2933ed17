package task

// enterUser places ip in the instruction pointer and sp in the stack
// pointer, loads the user-mode segment selectors into the segment
// registers, and issues the privilege-lowering return into ring 3. It never
// returns.
func enterUser(sp, ip uintptr)
