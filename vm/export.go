package vm

// Export layout after the header: module, function, arity, destination.
const exportArity = 4

// Export is a view of a boxed module:function/arity reference: a function
// value without captured variables.
type Export struct {
	mem  Memory
	addr Addr
}

// CreateExport places an export on h. A zero dst leaves the reference
// unresolved; it is resolved on first call.
func CreateExport(h *Heap, mfa MFArity, dst CodePtr) (Term, error) {
	a, err := placeBoxed(h, BoxExport, exportArity)
	if err != nil {
		return NonValue, err
	}
	writeMFA(h, a.Offset(1), mfa)
	h.SetWord(a.Offset(4), destinationTerm(dst))
	return MakeBoxed(a), nil
}

// ExportFromTerm returns a view of export t.
func ExportFromTerm(mem Memory, t Term) (Export, error) {
	a, _, err := boxedOf(mem, t, BoxExport, ErrBoxedIsNotAnExport)
	if err != nil {
		return Export{}, err
	}
	return Export{mem: mem, addr: a}, nil
}

func (e Export) MFA() MFArity {
	return readMFA(e.mem, e.addr.Offset(1))
}

// Dst returns the resolved code location, or false if it needs update.
func (e Export) Dst() (CodePtr, bool) {
	return destination(e.mem.Word(e.addr.Offset(4)))
}

// Resolve records the code location the export calls. h must be the heap
// the view reads from.
func (e Export) Resolve(h *Heap, c CodePtr) {
	h.SetWord(e.addr.Offset(4), destinationTerm(c))
}
