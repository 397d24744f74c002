package vm

import (
	"fmt"
	"sync"
)

// BIF is a built-in function. args aliases the caller's X registers and is
// only valid during the call; the result goes to X0. A returned *Exception
// is raised in the calling process.
type BIF func(vm *VM, p *Process, args []Term) (Term, error)

// bifTable maps MFAs to built-ins. Registration happens while the VM is set
// up; lookups run on every call_ext.
type bifTable struct {
	mu   sync.RWMutex
	byFn map[MFArity]BIF
}

func newBIFTable() *bifTable {
	return &bifTable{byFn: make(map[MFArity]BIF)}
}

func (bt *bifTable) register(mfa MFArity, fn BIF) {
	bt.mu.Lock()
	bt.byFn[mfa] = fn
	bt.mu.Unlock()
}

func (bt *bifTable) lookup(mfa MFArity) (BIF, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	fn, ok := bt.byFn[mfa]
	return fn, ok
}

func (bt *bifTable) len() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return len(bt.byFn)
}

// RegisterBIF installs fn as module:function/arity, replacing any earlier
// registration. Calls to a BIF never reach loaded code of the same name.
func (vm *VM) RegisterBIF(module, function string, arity int, fn BIF) {
	vm.bifs.register(vm.atoms.MFA(module, function, arity), fn)
}

// IsBIF reports whether mfa is served by a built-in.
func (vm *VM) IsBIF(mfa MFArity) bool {
	_, ok := vm.bifs.lookup(mfa)
	return ok
}

// CallBIF runs a built-in outside the dispatcher, for hosts and tests.
func (vm *VM) CallBIF(p *Process, mfa MFArity, args ...Term) (Term, error) {
	fn, ok := vm.bifs.lookup(mfa)
	if !ok {
		return NonValue, fmt.Errorf("%w: bif %s", ErrNotFound, mfa.Format(vm.atoms))
	}
	if len(args) != mfa.Arity {
		return NonValue, fmt.Errorf("%w: %s called with %d arguments", ErrBadArity, mfa.Format(vm.atoms), len(args))
	}
	return fn(vm, p, args)
}

func boolAtom(b bool) Term {
	if b {
		return AtomTrue
	}
	return AtomFalse
}
