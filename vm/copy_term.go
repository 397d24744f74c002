package vm

import "fmt"

// ---------------------------------------------------------------------------
// Deep copy between heaps
// ---------------------------------------------------------------------------

// TermSize returns the number of heap words a deep copy of t needs.
// Sharing inside t is not preserved by copying, so shared subterms count
// once per reference.
func TermSize(mem Memory, t Term) int {
	size := 0
	for {
		switch {
		case t.IsCons():
			size += 2 + TermSize(mem, Head(mem, t))
			t = Tail(mem, t)
			continue
		case t.IsBoxed():
			hdr := mem.Word(t.BoxPtr())
			size += 1 + hdr.HeaderArity()
			switch hdr.HeaderBoxType() {
			case BoxTuple:
				tp, _ := TupleFromTerm(mem, t)
				for i := 0; i < tp.Arity(); i++ {
					size += TermSize(mem, tp.Element(i))
				}
			case BoxClosure:
				c, _ := ClosureFromTerm(mem, t)
				for i := 0; i < c.NFree(); i++ {
					size += TermSize(mem, c.Frozen(i))
				}
			case BoxExport, BoxBinary:
				// payload holds no pointers
			}
		}
		return size
	}
}

// CopyTerm deep-copies t from src into dst and returns the new term.
// Capacity for the whole copy is checked first so dst is never left with a
// partial copy.
func CopyTerm(src Memory, t Term, dst *Heap) (Term, error) {
	need := TermSize(src, t)
	if !dst.HeapHasAvailable(need) {
		return NonValue, heapFull("CopyTerm", need, 0)
	}
	return copyTerm(src, t, dst)
}

func copyTerm(src Memory, t Term, dst *Heap) (Term, error) {
	switch {
	case t.IsCons():
		return copyList(src, t, dst)
	case t.IsBoxed():
		return copyBoxed(src, t, dst)
	case t.IsCP(), t.IsHeader():
		return NonValue, fmt.Errorf("%w: cannot copy %s", ErrBadOperand, t)
	}
	return t, nil
}

func copyList(src Memory, t Term, dst *Heap) (Term, error) {
	var first Term
	var prev Addr
	for t.IsCons() {
		hd, err := copyTerm(src, Head(src, t), dst)
		if err != nil {
			return NonValue, err
		}
		cell, err := dst.Cons(hd, Nil)
		if err != nil {
			return NonValue, err
		}
		if prev == 0 {
			first = cell
		} else {
			dst.SetWord(prev.Offset(1), cell)
		}
		prev = cell.ConsPtr()
		t = Tail(src, t)
	}
	tl, err := copyTerm(src, t, dst)
	if err != nil {
		return NonValue, err
	}
	dst.SetWord(prev.Offset(1), tl)
	return first, nil
}

func copyBoxed(src Memory, t Term, dst *Heap) (Term, error) {
	from := t.BoxPtr()
	hdr := src.Word(from)
	arity := hdr.HeaderArity()
	to, err := dst.Allocate(1+arity, false)
	if err != nil {
		return NonValue, err
	}
	dst.SetWord(to, hdr)

	// Words that may hold pointers are copied deeply, the rest verbatim.
	deepFrom := arity
	switch hdr.HeaderBoxType() {
	case BoxTuple:
		deepFrom = 0
	case BoxClosure:
		deepFrom = closureFixedArity
	case BoxExport, BoxBinary:
	}
	for i := 0; i < arity; i++ {
		w := src.Word(from.Offset(1 + i))
		if i >= deepFrom {
			if w, err = copyTerm(src, w, dst); err != nil {
				return NonValue, err
			}
		}
		dst.SetWord(to.Offset(1+i), w)
	}
	return MakeBoxed(to), nil
}
