package kernel

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to the Error structure. This requirement
// stems from the fact that the Go allocator is not available to us during
// early boot so we cannot rely on errors.New or fmt.Errorf.
type Error struct {
	Module  string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Module + ": " + e.Message
}
