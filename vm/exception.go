package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Language exceptions
// ---------------------------------------------------------------------------

// ExceptionKind is the class of a raised exception.
type ExceptionKind uint8

const (
	KindError ExceptionKind = iota
	KindExit
	KindThrow
)

func (k ExceptionKind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindExit:
		return "exit"
	case KindThrow:
		return "throw"
	}
	return fmt.Sprintf("ExceptionKind(%d)", uint8(k))
}

// Atom returns the class atom placed in X0 when a catch handler runs.
func (k ExceptionKind) Atom() Term {
	switch k {
	case KindExit:
		return AtomExit
	case KindThrow:
		return AtomThrow
	}
	return AtomError
}

// Exception is a raised language exception. Reason lives in the heap of the
// process that raised it. BIFs return it as an error; the dispatcher turns it
// into catch unwinding or process termination.
type Exception struct {
	Kind   ExceptionKind
	Reason Term
	// Site names the instruction or BIF that raised it, for logs only.
	Site string
}

func (e *Exception) Error() string {
	if e.Site != "" {
		return fmt.Sprintf("%s:%s in %s", e.Kind, e.Reason, e.Site)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Reason)
}

// Raise builds an exception error.
func Raise(kind ExceptionKind, reason Term) *Exception {
	return &Exception{Kind: kind, Reason: reason}
}

// Badarg is error:badarg.
func Badarg() *Exception {
	return &Exception{Kind: KindError, Reason: AtomBadarg}
}

// SystemLimit is error:system_limit, raised when memory cannot be found
// even after a collection.
func SystemLimit() *Exception {
	return &Exception{Kind: KindError, Reason: AtomSystemLimit}
}

// AsException extracts an *Exception from err.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}
