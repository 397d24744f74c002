package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Term formatting
// ---------------------------------------------------------------------------

// Format renders t with its heap contents and atom names. Lists of printable
// ASCII small integers with a [] tail print as a quoted string; this is a
// display choice only and has no bearing on comparison or hashing.
func Format(mem Memory, atoms AtomResolver, t Term) string {
	var sb strings.Builder
	p := printer{mem: mem, atoms: atoms, sb: &sb}
	p.term(t)
	return sb.String()
}

type printer struct {
	mem   Memory
	atoms AtomResolver
	sb    *strings.Builder
}

func (p printer) term(t Term) {
	switch t.Tag() {
	case TagBoxed:
		if t.IsBoxed() {
			p.boxed(t)
			return
		}
	case TagCons:
		if p.isASCIIString(t) {
			p.asciiString(t)
		} else {
			p.cons(t)
		}
		return
	case TagAtom:
		if p.atoms != nil {
			if s, err := p.atoms.ToStr(t); err == nil {
				fmt.Fprintf(p.sb, "'%s'", s)
				return
			}
		}
		p.sb.WriteString("Atom?")
		return
	}
	p.sb.WriteString(t.String())
}

func (p printer) boxed(t Term) {
	hdr := p.mem.Word(t.BoxPtr())
	if !hdr.IsHeader() {
		fmt.Fprintf(p.sb, "<bad box 0x%x>", uint64(t))
		return
	}
	switch hdr.HeaderBoxType() {
	case BoxTuple:
		tp, _ := TupleFromTerm(p.mem, t)
		p.sb.WriteByte('{')
		for i := 0; i < tp.Arity(); i++ {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.term(tp.Element(i))
		}
		p.sb.WriteByte('}')
	case BoxExport:
		e, _ := ExportFromTerm(p.mem, t)
		mfa := e.MFA()
		fmt.Fprintf(p.sb, "fun %s:%s/%d", atomName(p.atoms, mfa.M), atomName(p.atoms, mfa.F), mfa.Arity)
	case BoxClosure:
		c, _ := ClosureFromTerm(p.mem, t)
		mfa := c.MFA()
		fmt.Fprintf(p.sb, "#Fun<%s.%s.%d>", atomName(p.atoms, mfa.M), atomName(p.atoms, mfa.F), mfa.Arity)
	case BoxBinary:
		b, _ := BinaryFromTerm(p.mem, t)
		p.sb.WriteString("<<")
		for i, c := range b.Bytes() {
			if i > 0 {
				p.sb.WriteByte(',')
			}
			fmt.Fprintf(p.sb, "%d", c)
		}
		p.sb.WriteString(">>")
	default:
		fmt.Fprintf(p.sb, "<box %s>", hdr.HeaderBoxType())
	}
}

func (p printer) cons(t Term) {
	p.sb.WriteByte('[')
	for {
		p.term(Head(p.mem, t))
		tl := Tail(p.mem, t)
		if tl == Nil {
			// Proper list ends here, do not show the tail
			break
		}
		if tl.IsCons() {
			p.sb.WriteString(", ")
			t = tl
			continue
		}
		p.sb.WriteString(" | ")
		p.term(tl)
		break
	}
	p.sb.WriteByte(']')
}

// isASCIIString reports whether every element is a small integer in 32..126
// and the list ends with [].
func (p printer) isASCIIString(t Term) bool {
	for {
		hd := Head(p.mem, t)
		if !hd.IsSmall() {
			return false
		}
		if v := hd.SmallValue(); v < 32 || v > 126 {
			return false
		}
		tl := Tail(p.mem, t)
		if !tl.IsCons() {
			return tl == Nil
		}
		t = tl
	}
}

func (p printer) asciiString(t Term) {
	p.sb.WriteByte('"')
	for t.IsCons() {
		p.sb.WriteByte(byte(Head(p.mem, t).SmallValue()))
		t = Tail(p.mem, t)
	}
	p.sb.WriteByte('"')
}
