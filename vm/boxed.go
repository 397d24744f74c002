package vm

// ---------------------------------------------------------------------------
// Boxed object helpers
// ---------------------------------------------------------------------------

// boxedOf checks that t is a boxed term whose header has box type bt and
// returns the object address and header. notThis is returned when t is boxed
// but of another type.
func boxedOf(mem Memory, t Term, bt BoxType, notThis error) (Addr, Term, error) {
	a, err := t.BoxPtrSafe()
	if err != nil {
		return 0, NonValue, err
	}
	hdr := mem.Word(a)
	if !hdr.IsHeader() || hdr.HeaderBoxType() != bt {
		return 0, NonValue, notThis
	}
	return a, hdr, nil
}

// placeBoxed allocates a boxed object with arity payload words, writes its
// header and returns its address. Payload words are zeroed so a partially
// written object never exposes stale words.
func placeBoxed(h *Heap, bt BoxType, arity int) (Addr, error) {
	a, err := h.Allocate(1+arity, true)
	if err != nil {
		return 0, err
	}
	h.SetWord(a, MakeHeader(bt, arity))
	return a, nil
}

// BoxTypeOf returns the box type of a boxed term.
func BoxTypeOf(mem Memory, t Term) (BoxType, error) {
	a, err := t.BoxPtrSafe()
	if err != nil {
		return 0, err
	}
	hdr := mem.Word(a)
	if !hdr.IsHeader() {
		return 0, ErrTermIsNotABoxed
	}
	return hdr.HeaderBoxType(), nil
}

// IsBoxedOf reports whether t is a boxed object of type bt.
func IsBoxedOf(mem Memory, t Term, bt BoxType) bool {
	if !t.IsBoxed() {
		return false
	}
	hdr := mem.Word(t.BoxPtr())
	return hdr.IsHeader() && hdr.HeaderBoxType() == bt
}

// IsTuple reports whether t is a tuple, the empty tuple constant included.
func IsTuple(mem Memory, t Term) bool {
	return t == EmptyTuple || IsBoxedOf(mem, t, BoxTuple)
}

// IsBinary reports whether t is a binary, the empty binary constant included.
func IsBinary(mem Memory, t Term) bool {
	return t == EmptyBinary || IsBoxedOf(mem, t, BoxBinary)
}

func IsExport(mem Memory, t Term) bool {
	return IsBoxedOf(mem, t, BoxExport)
}

func IsClosure(mem Memory, t Term) bool {
	return IsBoxedOf(mem, t, BoxClosure)
}

// IsFun reports whether t is callable: an export or a closure.
func IsFun(mem Memory, t Term) bool {
	return IsExport(mem, t) || IsClosure(mem, t)
}

// readMFA decodes three consecutive words as module, function, arity.
func readMFA(mem Memory, a Addr) MFArity {
	return MFArity{
		M:     mem.Word(a),
		F:     mem.Word(a.Offset(1)),
		Arity: int(mem.Word(a.Offset(2)).SmallValue()),
	}
}

func writeMFA(h *Heap, a Addr, mfa MFArity) {
	h.SetWord(a, mfa.M)
	h.SetWord(a.Offset(1), mfa.F)
	h.SetWord(a.Offset(2), MakeSmall(int64(mfa.Arity)))
}

// destination decodes a callable location word. The non-value means the
// reference has not been resolved yet.
func destination(w Term) (CodePtr, bool) {
	if !w.IsCP() {
		return CodePtr{}, false
	}
	return w.CPValue(), true
}

func destinationTerm(c CodePtr) Term {
	if !c.IsValid() {
		return NonValue
	}
	return MakeCP(c)
}
