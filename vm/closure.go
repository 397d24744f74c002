package vm

import "fmt"

// Closure layout after the header: module, function, arity, destination,
// free variable count, then the frozen values.
const closureFixedArity = 5

// FunEntry describes a lambda as the loader sees it: the function it runs,
// how many values it captures and where its code starts.
type FunEntry struct {
	MFA   MFArity
	NFree int
	Dst   CodePtr
}

// Closure is a view of a boxed function value with captured variables.
type Closure struct {
	mem  Memory
	addr Addr
}

// CreateClosure places a closure for fe capturing frozen on h. Panics if the
// number of frozen values differs from fe.NFree.
func CreateClosure(h *Heap, fe FunEntry, frozen []Term) (Term, error) {
	if len(frozen) != fe.NFree {
		panic(fmt.Sprintf("CreateClosure: %d frozen values for nfree=%d", len(frozen), fe.NFree))
	}
	a, err := placeBoxed(h, BoxClosure, closureFixedArity+fe.NFree)
	if err != nil {
		return NonValue, err
	}
	writeMFA(h, a.Offset(1), fe.MFA)
	h.SetWord(a.Offset(4), destinationTerm(fe.Dst))
	h.SetWord(a.Offset(5), MakeSmall(int64(fe.NFree)))
	for i, v := range frozen {
		h.SetWord(a.Offset(1+closureFixedArity+i), v)
	}
	log.Debugf("new closure %s nfree=%d", fe.MFA, fe.NFree)
	return MakeBoxed(a), nil
}

// ClosureFromTerm returns a view of closure t.
func ClosureFromTerm(mem Memory, t Term) (Closure, error) {
	a, _, err := boxedOf(mem, t, BoxClosure, ErrBoxedIsNotAClosure)
	if err != nil {
		return Closure{}, err
	}
	return Closure{mem: mem, addr: a}, nil
}

func (c Closure) MFA() MFArity {
	return readMFA(c.mem, c.addr.Offset(1))
}

// Dst returns the code location, or false if it needs update.
func (c Closure) Dst() (CodePtr, bool) {
	return destination(c.mem.Word(c.addr.Offset(4)))
}

// NFree returns the number of frozen values.
func (c Closure) NFree() int {
	return int(c.mem.Word(c.addr.Offset(5)).SmallValue())
}

// Frozen returns captured value i.
func (c Closure) Frozen(i int) Term {
	if i < 0 || i >= c.NFree() {
		panic(fmt.Sprintf("Closure.Frozen: index %d out of range", i))
	}
	return c.mem.Word(c.addr.Offset(1 + closureFixedArity + i))
}
