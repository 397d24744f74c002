package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// AtomTable: Interned atoms
// ---------------------------------------------------------------------------

// Atom is the record the atom table keeps for each interned name.
type Atom struct {
	Name  string
	Index uint32
}

// AtomResolver is the read-only contract the term layer needs from the atom
// table.
type AtomResolver interface {
	// Lookup returns the atom record for t, or nil if t is not a known atom.
	Lookup(t Term) *Atom
	// ToStr returns the name of atom t.
	ToStr(t Term) (string, error)
}

// Indexes of atoms interned by every table at creation, in this order.
const (
	idxFalse Word = iota
	idxTrue
	idxUndefined
	idxOk
	idxError
	idxExit
	idxThrow
	idxNormal
	idxKill
	idxKilled
	idxBadarg
	idxBadfun
	idxBadarity
	idxBadmatch
	idxSystemLimit
	idxFunctionClause
	idxUndef
	idxNifError
	idxNocatch
	idxErlang
)

var wellKnownAtoms = []string{
	"false", "true", "undefined", "ok", "error", "exit", "throw", "normal",
	"kill", "killed", "badarg", "badfun", "badarity", "badmatch",
	"system_limit", "function_clause", "undef", "nif_error", "nocatch",
	"erlang",
}

// Well-known atom terms, valid in every AtomTable.
const (
	AtomFalse          = Term(idxFalse<<termTagBits | Word(TagAtom))
	AtomTrue           = Term(idxTrue<<termTagBits | Word(TagAtom))
	AtomUndefined      = Term(idxUndefined<<termTagBits | Word(TagAtom))
	AtomOk             = Term(idxOk<<termTagBits | Word(TagAtom))
	AtomError          = Term(idxError<<termTagBits | Word(TagAtom))
	AtomExit           = Term(idxExit<<termTagBits | Word(TagAtom))
	AtomThrow          = Term(idxThrow<<termTagBits | Word(TagAtom))
	AtomNormal         = Term(idxNormal<<termTagBits | Word(TagAtom))
	AtomKill           = Term(idxKill<<termTagBits | Word(TagAtom))
	AtomKilled         = Term(idxKilled<<termTagBits | Word(TagAtom))
	AtomBadarg         = Term(idxBadarg<<termTagBits | Word(TagAtom))
	AtomBadfun         = Term(idxBadfun<<termTagBits | Word(TagAtom))
	AtomBadarity       = Term(idxBadarity<<termTagBits | Word(TagAtom))
	AtomBadmatch       = Term(idxBadmatch<<termTagBits | Word(TagAtom))
	AtomSystemLimit    = Term(idxSystemLimit<<termTagBits | Word(TagAtom))
	AtomFunctionClause = Term(idxFunctionClause<<termTagBits | Word(TagAtom))
	AtomUndef          = Term(idxUndef<<termTagBits | Word(TagAtom))
	AtomNifError       = Term(idxNifError<<termTagBits | Word(TagAtom))
	AtomNocatch        = Term(idxNocatch<<termTagBits | Word(TagAtom))
	AtomErlang         = Term(idxErlang<<termTagBits | Word(TagAtom))
)

// AtomTable interns atom names to indexes. One table serves a whole VM; it is
// filled with the well-known atoms at creation and only grows afterwards.
// Writers are serialized, readers take a shared lock.
type AtomTable struct {
	mu     sync.RWMutex
	byName map[string]*Atom
	byID   []*Atom
}

// NewAtomTable creates a table holding the well-known atoms.
func NewAtomTable() *AtomTable {
	at := &AtomTable{
		byName: make(map[string]*Atom, 256),
		byID:   make([]*Atom, 0, 256),
	}
	for _, name := range wellKnownAtoms {
		at.Intern(name)
	}
	return at
}

// Intern returns the atom term for name, creating it if needed.
func (at *AtomTable) Intern(name string) Term {
	// Fast path: read-only lookup
	at.mu.RLock()
	if a, ok := at.byName[name]; ok {
		at.mu.RUnlock()
		return MakeAtom(a.Index)
	}
	at.mu.RUnlock()

	at.mu.Lock()
	defer at.mu.Unlock()

	// Double-check after acquiring write lock
	if a, ok := at.byName[name]; ok {
		return MakeAtom(a.Index)
	}

	a := &Atom{Name: name, Index: uint32(len(at.byID))}
	at.byName[name] = a
	at.byID = append(at.byID, a)
	return MakeAtom(a.Index)
}

// Find returns the atom term for an existing name.
func (at *AtomTable) Find(name string) (Term, bool) {
	at.mu.RLock()
	defer at.mu.RUnlock()
	a, ok := at.byName[name]
	if !ok {
		return NonValue, false
	}
	return MakeAtom(a.Index), true
}

func (at *AtomTable) Lookup(t Term) *Atom {
	if !t.IsAtom() {
		return nil
	}
	idx := t.AtomIndex()

	at.mu.RLock()
	defer at.mu.RUnlock()
	if int(idx) >= len(at.byID) {
		return nil
	}
	return at.byID[idx]
}

func (at *AtomTable) ToStr(t Term) (string, error) {
	if !t.IsAtom() {
		return "", fmt.Errorf("%w: %s is not an atom", ErrBadOperand, t)
	}
	a := at.Lookup(t)
	if a == nil {
		return "", fmt.Errorf("%w: atom %d", ErrNotFound, t.AtomIndex())
	}
	return a.Name, nil
}

// Len returns the number of interned atoms.
func (at *AtomTable) Len() int {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return len(at.byID)
}

// ---------------------------------------------------------------------------
// MFArity
// ---------------------------------------------------------------------------

// MFArity names a function: module and function atoms plus arity.
type MFArity struct {
	M     Term
	F     Term
	Arity int
}

// MFA builds an MFArity by interning both names.
func (at *AtomTable) MFA(module, function string, arity int) MFArity {
	return MFArity{M: at.Intern(module), F: at.Intern(function), Arity: arity}
}

// Format renders m as module:function/arity.
func (m MFArity) Format(atoms AtomResolver) string {
	return fmt.Sprintf("%s:%s/%d", atomName(atoms, m.M), atomName(atoms, m.F), m.Arity)
}

func (m MFArity) String() string {
	return fmt.Sprintf("%s:%s/%d", m.M, m.F, m.Arity)
}

// FunArity identifies a function inside a module.
type FunArity struct {
	F     Term
	Arity int
}

func atomName(atoms AtomResolver, t Term) string {
	if atoms != nil {
		if s, err := atoms.ToStr(t); err == nil {
			return s
		}
	}
	return t.String()
}
