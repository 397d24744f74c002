package vm

import "fmt"

// ---------------------------------------------------------------------------
// BoxHeader: first word of every boxed heap object
// ---------------------------------------------------------------------------

// BoxType identifies the kind of a boxed object. The set is closed; code
// that inspects boxed objects switches over it exhaustively.
type BoxType uint8

const (
	BoxTuple BoxType = iota
	BoxExport
	BoxClosure
	BoxBinary

	numBoxTypes
)

const (
	boxTypeBits = 4
	boxTypeMask = Word(1)<<boxTypeBits - 1
	headerShift = termTagBits + boxTypeBits
	MaxBoxArity = int(^Word(0) >> headerShift)
)

func (bt BoxType) String() string {
	switch bt {
	case BoxTuple:
		return "Tuple"
	case BoxExport:
		return "Export"
	case BoxClosure:
		return "Closure"
	case BoxBinary:
		return "Binary"
	}
	return fmt.Sprintf("BoxType(%d)", uint8(bt))
}

// MakeHeader creates a header word. Arity is the number of words that
// physically follow the header; heap walkers rely on it to skip the object.
func MakeHeader(bt BoxType, arity int) Term {
	if bt >= numBoxTypes {
		panic(fmt.Sprintf("MakeHeader: unknown box type %d", bt))
	}
	if arity < 0 {
		panic("MakeHeader: negative arity")
	}
	return Term(Word(arity)<<headerShift | Word(bt)<<termTagBits | Word(TagHeader))
}

// HeaderArity returns the payload size of a header word in words.
func (t Term) HeaderArity() int {
	if !t.IsHeader() {
		panic("Term.HeaderArity: not a header")
	}
	return int(Word(t) >> headerShift)
}

// HeaderBoxType returns the box type of a header word.
func (t Term) HeaderBoxType() BoxType {
	if !t.IsHeader() {
		panic("Term.HeaderBoxType: not a header")
	}
	return BoxType((Word(t) >> termTagBits) & boxTypeMask)
}
