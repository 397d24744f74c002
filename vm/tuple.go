package vm

import "fmt"

// Tuple is a read-only view of a tuple on some heap.
type Tuple struct {
	mem   Memory
	addr  Addr
	arity int
}

// TupleFromTerm returns a view of tuple t. The empty tuple constant yields a
// zero-arity view.
func TupleFromTerm(mem Memory, t Term) (Tuple, error) {
	if t == EmptyTuple {
		return Tuple{mem: mem}, nil
	}
	a, hdr, err := boxedOf(mem, t, BoxTuple, ErrBoxedIsNotATuple)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{mem: mem, addr: a, arity: hdr.HeaderArity()}, nil
}

func (tp Tuple) Arity() int {
	return tp.arity
}

// Element returns element i, counting from 0. Panics when out of range.
func (tp Tuple) Element(i int) Term {
	if i < 0 || i >= tp.arity {
		panic(fmt.Sprintf("Tuple.Element: index %d out of range (arity %d)", i, tp.arity))
	}
	return tp.mem.Word(tp.addr.Offset(1 + i))
}

// ---------------------------------------------------------------------------
// TupleBuilder
// ---------------------------------------------------------------------------

// TupleBuilder reserves a tuple on a heap and fills it. The tuple term only
// becomes available through Build once every element is set.
type TupleBuilder struct {
	h     *Heap
	addr  Addr
	arity int
}

// NewTupleBuilder reserves space for a tuple of the given arity.
func NewTupleBuilder(h *Heap, arity int) (*TupleBuilder, error) {
	if arity == 0 {
		return &TupleBuilder{h: h}, nil
	}
	a, err := placeBoxed(h, BoxTuple, arity)
	if err != nil {
		return nil, err
	}
	return &TupleBuilder{h: h, addr: a, arity: arity}, nil
}

// SetElement stores element i, counting from 0.
func (b *TupleBuilder) SetElement(i int, t Term) {
	if i < 0 || i >= b.arity {
		panic(fmt.Sprintf("TupleBuilder.SetElement: index %d out of range (arity %d)", i, b.arity))
	}
	if t == NonValue {
		panic("TupleBuilder.SetElement: non-value element")
	}
	b.h.SetWord(b.addr.Offset(1+i), t)
}

// Build returns the tuple term, or ErrIncompleteBox if an element is unset.
func (b *TupleBuilder) Build() (Term, error) {
	if b.arity == 0 {
		return EmptyTuple, nil
	}
	for i := 0; i < b.arity; i++ {
		if b.h.Word(b.addr.Offset(1+i)) == NonValue {
			return NonValue, fmt.Errorf("%w: tuple element %d", ErrIncompleteBox, i)
		}
	}
	return MakeBoxed(b.addr), nil
}

// MakeTuple allocates a tuple holding elems.
func MakeTuple(h *Heap, elems ...Term) (Term, error) {
	b, err := NewTupleBuilder(h, len(elems))
	if err != nil {
		return NonValue, err
	}
	for i, e := range elems {
		b.SetElement(i, e)
	}
	return b.Build()
}
