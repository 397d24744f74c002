package vm

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// phash2Range is the default range of erlang:phash2/1.
const phash2Range = 1 << 27

// Hash returns a structural hash of t. Terms that compare equal hash equal;
// atoms hash by name so the value does not depend on interning order.
func Hash(mem Memory, atoms AtomResolver, t Term) uint64 {
	h := xxh3.New()
	th := termHasher{mem: mem, atoms: atoms, h: h}
	th.term(t)
	return h.Sum64()
}

type termHasher struct {
	mem   Memory
	atoms AtomResolver
	h     *xxh3.Hasher
	buf   [9]byte
}

func (th *termHasher) tagged(class termClass, v uint64) {
	th.buf[0] = byte(class)
	binary.LittleEndian.PutUint64(th.buf[1:], v)
	th.h.Write(th.buf[:])
}

func (th *termHasher) term(t Term) {
	for {
		class := classify(th.mem, t)
		switch class {
		case classNumber:
			th.tagged(class, uint64(t.SmallValue()))
		case classAtom:
			name := atomName(th.atoms, t)
			th.tagged(class, uint64(len(name)))
			th.h.Write([]byte(name))
		case classPid:
			th.tagged(class, t.PidIndex())
		case classPort:
			th.tagged(class, t.PortIndex())
		case classTuple:
			tp, _ := TupleFromTerm(th.mem, t)
			th.tagged(class, uint64(tp.Arity()))
			for i := 0; i < tp.Arity(); i++ {
				th.term(tp.Element(i))
			}
		case classBinary:
			b, _ := BinaryFromTerm(th.mem, t)
			th.tagged(class, uint64(b.Size()))
			th.h.Write(b.Bytes())
		case classFun:
			th.fun(t)
		case classList:
			if t == Nil {
				th.tagged(class, 0)
				return
			}
			th.tagged(class, 1)
			th.term(Head(th.mem, t))
			t = Tail(th.mem, t)
			continue
		default:
			th.tagged(class, t.Raw())
		}
		return
	}
}

func (th *termHasher) fun(t Term) {
	if e, err := ExportFromTerm(th.mem, t); err == nil {
		mfa := e.MFA()
		th.tagged(classFun, 0)
		th.term(mfa.M)
		th.term(mfa.F)
		th.tagged(classNumber, uint64(mfa.Arity))
		return
	}
	c := mustClosure(th.mem, t)
	mfa := c.MFA()
	th.tagged(classFun, 1)
	th.term(mfa.M)
	th.term(mfa.F)
	th.tagged(classNumber, uint64(mfa.Arity))
	for i := 0; i < c.NFree(); i++ {
		th.term(c.Frozen(i))
	}
}
