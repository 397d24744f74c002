package vm

import (
	"bytes"
	"cmp"
	"strings"
)

// ---------------------------------------------------------------------------
// Structural comparison
// ---------------------------------------------------------------------------

// termClass ranks term kinds in the cross-kind total order:
//
//	number < atom < reference < fun < port < pid < tuple < map < list < binary < internal
//
// Reference and map keep their slots although no term of those kinds exists
// yet. Internal covers registers, labels, opcodes, catch markers, CPs,
// headers and the non-value; they are ordered by raw word.
type termClass int

const (
	classNumber termClass = iota
	classAtom
	classReference
	classFun
	classPort
	classPid
	classTuple
	classMap
	classList
	classBinary
	classInternal
)

func classify(mem Memory, t Term) termClass {
	switch t.Tag() {
	case TagSmall:
		return classNumber
	case TagAtom:
		return classAtom
	case TagLocalPid:
		return classPid
	case TagLocalPort:
		return classPort
	case TagCons:
		return classList
	case TagSpecial:
		switch t {
		case Nil:
			return classList
		case EmptyTuple:
			return classTuple
		case EmptyBinary:
			return classBinary
		}
		return classInternal
	case TagBoxed:
		if !t.IsBoxed() {
			return classInternal
		}
		bt, err := BoxTypeOf(mem, t)
		if err != nil {
			return classInternal
		}
		switch bt {
		case BoxTuple:
			return classTuple
		case BoxExport, BoxClosure:
			return classFun
		case BoxBinary:
			return classBinary
		}
	}
	return classInternal
}

// Comparator compares terms that may live in two different memories, such
// as a message before and after it was copied.
type Comparator struct {
	MemA  Memory // memory of the left operand
	MemB  Memory // memory of the right operand
	Atoms AtomResolver
	// Exact separates integers from equal floats (=:= versus ==). Only small
	// integers exist so far, so both modes agree.
	Exact bool
}

// Compare returns -1, 0 or +1 ordering a before, equal to, or after b.
// Terms of different kinds follow the termClass order; raw words decide only
// between internal terms.
func Compare(mem Memory, atoms AtomResolver, a, b Term, exact bool) int {
	return Comparator{MemA: mem, MemB: mem, Atoms: atoms, Exact: exact}.Compare(a, b)
}

// Equal reports whether a and b are structurally equal.
func Equal(mem Memory, atoms AtomResolver, a, b Term) bool {
	return Compare(mem, atoms, a, b, true) == 0
}

func (c Comparator) Compare(a, b Term) int {
	for {
		if a == b && (a.IsImmediate() || c.MemA == c.MemB) {
			return 0
		}
		ca, cb := classify(c.MemA, a), classify(c.MemB, b)
		if ca != cb {
			return cmp.Compare(ca, cb)
		}

		switch ca {
		case classNumber:
			return cmp.Compare(a.SmallValue(), b.SmallValue())
		case classAtom:
			return c.compareAtoms(a, b)
		case classPid:
			return cmp.Compare(a.PidIndex(), b.PidIndex())
		case classPort:
			return cmp.Compare(a.PortIndex(), b.PortIndex())
		case classFun:
			return c.compareFuns(a, b)
		case classTuple:
			return c.compareTuples(a, b)
		case classBinary:
			return c.compareBinaries(a, b)
		case classList:
			// [] sorts before any non-empty list
			if a == Nil {
				if b == Nil {
					return 0
				}
				return -1
			}
			if b == Nil {
				return 1
			}
			if r := c.Compare(Head(c.MemA, a), Head(c.MemB, b)); r != 0 {
				return r
			}
			a, b = Tail(c.MemA, a), Tail(c.MemB, b)
			continue
		}
		return cmp.Compare(a.Raw(), b.Raw())
	}
}

func (c Comparator) compareAtoms(a, b Term) int {
	if c.Atoms != nil {
		na, errA := c.Atoms.ToStr(a)
		nb, errB := c.Atoms.ToStr(b)
		if errA == nil && errB == nil {
			return strings.Compare(na, nb)
		}
	}
	return cmp.Compare(a.AtomIndex(), b.AtomIndex())
}

func (c Comparator) compareMFA(a, b MFArity) int {
	if r := c.compareAtoms(a.M, b.M); r != 0 {
		return r
	}
	if r := c.compareAtoms(a.F, b.F); r != 0 {
		return r
	}
	return cmp.Compare(a.Arity, b.Arity)
}

// compareFuns orders by MFA, then exports before closures, then closures by
// their frozen values.
func (c Comparator) compareFuns(a, b Term) int {
	ea, errA := ExportFromTerm(c.MemA, a)
	eb, errB := ExportFromTerm(c.MemB, b)
	switch {
	case errA == nil && errB == nil:
		return c.compareMFA(ea.MFA(), eb.MFA())
	case errA == nil:
		if r := c.compareMFA(ea.MFA(), mustClosure(c.MemB, b).MFA()); r != 0 {
			return r
		}
		return -1
	case errB == nil:
		if r := c.compareMFA(mustClosure(c.MemA, a).MFA(), eb.MFA()); r != 0 {
			return r
		}
		return 1
	}

	fa, fb := mustClosure(c.MemA, a), mustClosure(c.MemB, b)
	if r := c.compareMFA(fa.MFA(), fb.MFA()); r != 0 {
		return r
	}
	na, nb := fa.NFree(), fb.NFree()
	if na != nb {
		return cmp.Compare(na, nb)
	}
	for i := 0; i < na; i++ {
		if r := c.Compare(fa.Frozen(i), fb.Frozen(i)); r != 0 {
			return r
		}
	}
	return 0
}

func mustClosure(mem Memory, t Term) Closure {
	cl, err := ClosureFromTerm(mem, t)
	if err != nil {
		panic("compare: fun is neither export nor closure")
	}
	return cl
}

// compareTuples orders by arity first, then element by element.
func (c Comparator) compareTuples(a, b Term) int {
	ta, errA := TupleFromTerm(c.MemA, a)
	tb, errB := TupleFromTerm(c.MemB, b)
	if errA != nil || errB != nil {
		panic("compare: tuple class without tuple view")
	}
	if ta.Arity() != tb.Arity() {
		return cmp.Compare(ta.Arity(), tb.Arity())
	}
	for i := 0; i < ta.Arity(); i++ {
		if r := c.Compare(ta.Element(i), tb.Element(i)); r != 0 {
			return r
		}
	}
	return 0
}

func (c Comparator) compareBinaries(a, b Term) int {
	ba, errA := BinaryFromTerm(c.MemA, a)
	bb, errB := BinaryFromTerm(c.MemB, b)
	if errA != nil || errB != nil {
		panic("compare: binary class without binary view")
	}
	return bytes.Compare(ba.Bytes(), bb.Bytes())
}
