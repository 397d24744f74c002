package vm

import "fmt"

// ---------------------------------------------------------------------------
// Cons cells and lists
// ---------------------------------------------------------------------------

// Cons allocates a list cell [hd | tl].
func (h *Heap) Cons(hd, tl Term) (Term, error) {
	a, err := h.Allocate(2, false)
	if err != nil {
		return NonValue, err
	}
	h.SetWord(a, hd)
	h.SetWord(a.Offset(1), tl)
	return MakeCons(a), nil
}

// Head returns the head of cons t.
func Head(mem Memory, t Term) Term {
	return mem.Word(t.ConsPtr())
}

// Tail returns the tail of cons t.
func Tail(mem Memory, t Term) Term {
	return mem.Word(t.ConsPtr().Offset(1))
}

// ListFromSlice builds a proper list of elems. Space for the whole list is
// checked up front so a failure leaves nothing half built.
func ListFromSlice(h *Heap, elems []Term) (Term, error) {
	if !h.HeapHasAvailable(2 * len(elems)) {
		return NonValue, heapFull("ListFromSlice", 2*len(elems), 0)
	}
	list := Nil
	for i := len(elems) - 1; i >= 0; i-- {
		var err error
		if list, err = h.Cons(elems[i], list); err != nil {
			return NonValue, err
		}
	}
	return list, nil
}

// StringToList builds a list of character codes from s.
func StringToList(h *Heap, s string) (Term, error) {
	elems := make([]Term, 0, len(s))
	for _, r := range s {
		elems = append(elems, MakeSmall(int64(r)))
	}
	return ListFromSlice(h, elems)
}

// ListToSlice collects the elements of a proper list.
func ListToSlice(mem Memory, t Term) ([]Term, error) {
	var out []Term
	for t.IsCons() {
		out = append(out, Head(mem, t))
		t = Tail(mem, t)
	}
	if t != Nil {
		return nil, fmt.Errorf("%w: improper list", ErrBadOperand)
	}
	return out, nil
}

// ListLength returns the length of a proper list, or false if t is not one.
func ListLength(mem Memory, t Term) (int, bool) {
	n := 0
	for t.IsCons() {
		n++
		t = Tail(mem, t)
	}
	return n, t == Nil
}
