package vm

import (
	"errors"
	"fmt"
)

// Runtime errors surfaced by the allocator, the boxed accessors and the code
// server. Language-level exceptions are *Exception values instead.
var (
	ErrHeapIsFull  = errors.New("heap is full")
	ErrStackIsFull = errors.New("stack is full")
	ErrStackIndex  = errors.New("stack index out of range")

	ErrTermIsNotABoxed    = errors.New("term is not boxed")
	ErrBoxedIsNotATuple   = errors.New("boxed value is not a tuple")
	ErrBoxedIsNotAnExport = errors.New("boxed value is not an export")
	ErrBoxedIsNotAClosure = errors.New("boxed value is not a closure")
	ErrBoxedIsNotABinary  = errors.New("boxed value is not a binary")
	ErrIncompleteBox      = errors.New("boxed object is not fully initialized")

	ErrNotFound   = errors.New("not found")
	ErrBadArity   = errors.New("bad arity")
	ErrBadOperand = errors.New("bad operand")
)

// CapacityError reports a failed heap or stack reservation. It unwraps to
// ErrHeapIsFull or ErrStackIsFull.
type CapacityError struct {
	Site  string // where the reservation was attempted
	Need  int    // words requested
	Live  int    // live registers at the time, for the collector
	Stack bool   // true when the stack side ran out
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d words (%s)", e.Unwrap(), e.Need, e.Site)
}

func (e *CapacityError) Unwrap() error {
	if e.Stack {
		return ErrStackIsFull
	}
	return ErrHeapIsFull
}

func heapFull(site string, need, live int) error {
	return &CapacityError{Site: site, Need: need, Live: live}
}

func stackFull(site string, need, live int) error {
	return &CapacityError{Site: site, Need: need, Live: live, Stack: true}
}

// IsCapacityError reports whether err is a heap or stack capacity failure.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrHeapIsFull) || errors.Is(err, ErrStackIsFull)
}
