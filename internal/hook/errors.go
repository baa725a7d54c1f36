package hook

import (
	"errors"
	"fmt"
)

// ErrHookCreation is matched by every install failure.
var ErrHookCreation = errors.New("hook creation failed")

// Causes carried by CreationError.
var (
	ErrDecode           = errors.New("cannot decode instruction")
	ErrBranchIntoPatch  = errors.New("branch lands inside patched region")
	ErrRIPOutOfRange    = errors.New("rip-relative operand out of reach of trampoline")
	ErrReturnInPatch    = errors.New("function ends inside patched region")
	ErrUnsupportedInst  = errors.New("instruction cannot be relocated")
	ErrTrampolineTooBig = errors.New("relocated prologue exceeds trampoline slot")
	ErrNotWritable      = errors.New("target memory not writable")
	ErrAlreadyHooked    = errors.New("target already hooked")
	ErrNullTarget       = errors.New("null target address")
)

// CreationError describes why Install failed. The target is untouched.
type CreationError struct {
	Target uintptr
	Err    error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("hook %#x: %v", e.Target, e.Err)
}

// Unwrap exposes both ErrHookCreation and the cause.
func (e *CreationError) Unwrap() []error {
	return []error{ErrHookCreation, e.Err}
}
