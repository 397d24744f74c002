package vm

import (
	"errors"
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Loaded code
// ---------------------------------------------------------------------------

// Module is linked code ready to load: instruction words, exported entry
// points and the lambda table used by make_fun. Offsets index Code.
type Module struct {
	Name    Term
	Code    []Term
	Exports map[FunArity]uint32
	Lambdas []FunEntry

	slot uint32
}

// Slot returns the code server slot, 0 if the module is not loaded.
func (m *Module) Slot() uint32 {
	return m.slot
}

// Validate checks that Code is a sequence of well formed instructions and
// that every export and lambda points at an instruction start.
func (m *Module) Validate() error {
	starts := make(map[uint32]bool)
	for off := 0; off < len(m.Code); {
		w := m.Code[off]
		if !w.IsOpcode() {
			return fmt.Errorf("%w: word %d is %s, want an opcode", ErrBadOperand, off, w)
		}
		op := w.OpcodeValue()
		if !op.Valid() {
			return fmt.Errorf("%w: unknown opcode at %d", ErrBadOperand, off)
		}
		starts[uint32(off)] = true
		next := off + 1 + op.Arity()
		if next > len(m.Code) {
			return fmt.Errorf("%w: %s at %d is truncated", ErrBadOperand, op, off)
		}
		for _, arg := range m.Code[off+1 : next] {
			if arg.IsNonValue() || arg.IsOpcode() || arg.IsCP() {
				return fmt.Errorf("%w: %s at %d has operand %s", ErrBadOperand, op, off, arg)
			}
		}
		if err := checkCallArity(op, m.Code[off+1:next]); err != nil {
			return fmt.Errorf("%w at %d", err, off)
		}
		off = next
	}
	for fa, off := range m.Exports {
		if fa.Arity < 0 || fa.Arity > MaxXRegs {
			return fmt.Errorf("%w: export %s/%d exceeds %d registers", ErrBadOperand, fa.F, fa.Arity, MaxXRegs)
		}
		if !starts[off] {
			return fmt.Errorf("%w: export %s/%d at %d", ErrBadOperand, fa.F, fa.Arity, off)
		}
	}
	for i, fe := range m.Lambdas {
		if !starts[fe.Dst.Offset] {
			return fmt.Errorf("%w: lambda %d at %d", ErrBadOperand, i, fe.Dst.Offset)
		}
	}
	return nil
}

// checkCallArity bounds the argument count of a call instruction by the X
// registers. call_fun also needs X[arity] for the fun itself.
func checkCallArity(op Opcode, args []Term) error {
	limit := MaxXRegs
	switch op {
	case OpCall, OpCallOnly, OpCallLast, OpCallExt, OpCallExtOnly, OpCallExtLast:
	case OpCallFun:
		limit = MaxXRegs - 1
	default:
		return nil
	}
	if !args[0].IsSmall() {
		return fmt.Errorf("%w: %s arity %s", ErrBadOperand, op, args[0])
	}
	if n := args[0].SmallValue(); n < 0 || n > int64(limit) {
		return fmt.Errorf("%w: %s arity %d exceeds %d registers", ErrBadOperand, op, n, limit)
	}
	return nil
}

// CodeLocator resolves an MFA to an entry point, loading code on demand.
// Resolution failure is reported as ErrNotFound.
type CodeLocator interface {
	LookupAndLoad(mfa MFArity) (CodePtr, error)
}

// ModuleSource produces linked modules by name for lazy loading.
type ModuleSource interface {
	LoadModule(atoms *AtomTable, name string) (*Module, error)
}

// ---------------------------------------------------------------------------
// CodeServer
// ---------------------------------------------------------------------------

// CodeServer owns every loaded module. Each load gets a fresh slot, so a
// reloaded module never overwrites code a running process still points into;
// name lookup always finds the newest version.
type CodeServer struct {
	atoms  *AtomTable
	source ModuleSource

	mu      sync.RWMutex
	slots   []*Module // slot 0 stays empty, CodePtr{0, _} is invalid
	current map[Term]uint32
	loadMu  sync.Mutex
}

// NewCodeServer creates an empty code server. source may be nil.
func NewCodeServer(atoms *AtomTable, source ModuleSource) *CodeServer {
	return &CodeServer{
		atoms:   atoms,
		source:  source,
		slots:   make([]*Module, 1),
		current: make(map[Term]uint32),
	}
}

// SetSource replaces the lazy loading source.
func (cs *CodeServer) SetSource(source ModuleSource) {
	cs.loadMu.Lock()
	cs.source = source
	cs.loadMu.Unlock()
}

// Load validates m, assigns it a slot and makes it the current version of
// its module name.
func (cs *CodeServer) Load(m *Module) (uint32, error) {
	if !m.Name.IsAtom() {
		return 0, fmt.Errorf("%w: module name %s", ErrBadOperand, m.Name)
	}
	if err := m.Validate(); err != nil {
		return 0, fmt.Errorf("load %s: %w", atomName(cs.atoms, m.Name), err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.slots) >= maxCodeModules {
		return 0, fmt.Errorf("load %s: %w", atomName(cs.atoms, m.Name), SystemLimit())
	}
	slot := uint32(len(cs.slots))
	m.slot = slot
	for i := range m.Lambdas {
		m.Lambdas[i].Dst.Module = slot
	}
	old, reloaded := cs.current[m.Name]
	cs.slots = append(cs.slots, m)
	cs.current[m.Name] = slot
	if reloaded {
		log.Infof("reloaded module %s (slot %d replaces %d)", atomName(cs.atoms, m.Name), slot, old)
	} else {
		log.Debugf("loaded module %s in slot %d", atomName(cs.atoms, m.Name), slot)
	}
	return slot, nil
}

// Lookup resolves mfa among loaded modules only.
func (cs *CodeServer) Lookup(mfa MFArity) (CodePtr, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	slot, ok := cs.current[mfa.M]
	if !ok {
		return CodePtr{}, fmt.Errorf("%w: module %s", ErrNotFound, atomName(cs.atoms, mfa.M))
	}
	off, ok := cs.slots[slot].Exports[FunArity{F: mfa.F, Arity: mfa.Arity}]
	if !ok {
		return CodePtr{}, fmt.Errorf("%w: function %s", ErrNotFound, mfa.Format(cs.atoms))
	}
	return CodePtr{Module: slot, Offset: off}, nil
}

// LookupAndLoad resolves mfa, loading its module from the source when it is
// not loaded yet.
func (cs *CodeServer) LookupAndLoad(mfa MFArity) (CodePtr, error) {
	c, err := cs.Lookup(mfa)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return c, err
	}
	if cs.IsLoaded(mfa.M) {
		return CodePtr{}, err
	}

	cs.loadMu.Lock()
	defer cs.loadMu.Unlock()
	// Another caller may have loaded it while we waited.
	if cs.IsLoaded(mfa.M) {
		return cs.Lookup(mfa)
	}
	if cs.source == nil {
		return CodePtr{}, err
	}
	name, nerr := cs.atoms.ToStr(mfa.M)
	if nerr != nil {
		return CodePtr{}, fmt.Errorf("%w: %v", ErrNotFound, nerr)
	}
	m, lerr := cs.source.LoadModule(cs.atoms, name)
	if lerr != nil {
		return CodePtr{}, fmt.Errorf("%w: loading %s: %v", ErrNotFound, name, lerr)
	}
	if _, lerr = cs.Load(m); lerr != nil {
		return CodePtr{}, lerr
	}
	return cs.Lookup(mfa)
}

// IsLoaded reports whether any version of module name is loaded.
func (cs *CodeServer) IsLoaded(name Term) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.current[name]
	return ok
}

// Module returns the module in slot, nil for an unknown slot.
func (cs *CodeServer) Module(slot uint32) *Module {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if slot == 0 || int(slot) >= len(cs.slots) {
		return nil
	}
	return cs.slots[slot]
}

// Current returns the newest version of module name.
func (cs *CodeServer) Current(name Term) *Module {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	slot, ok := cs.current[name]
	if !ok {
		return nil
	}
	return cs.slots[slot]
}

// Modules returns the number of loaded module versions.
func (cs *CodeServer) Modules() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.slots) - 1
}
