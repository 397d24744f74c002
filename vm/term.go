package vm

import (
	"fmt"
)

// Term represents a beamrt value in a single machine word.
//
// The low three bits are the primary tag. Pointer kinds keep a word-aligned
// heap address in the remaining bits, so the tag occupies bits that are
// always zero in the address.
//
// Encoding scheme:
//   - Boxed:     heap address of a block starting with a header word
//   - Header:    first word of a boxed block, box type + arity
//   - Cons:      heap address of a two-word [head, tail] cell
//   - Small:     signed integer, 60 bits of magnitude
//   - Atom:      index into the atom table
//   - LocalPid:  process index
//   - LocalPort: port index
//   - Special:   secondary tag for registers, labels, opcodes and constants
//
// A continuation pointer (CP) is Boxed-tagged with the highest bit set. The
// all-zero word is the non-value.
type Term uint64

// Word is an unsigned machine word.
type Word = uint64

// SWord is a signed machine word.
type SWord = int64

const (
	WordBits       = 64
	WordBytes      = 8
	WordAlignShift = 3
)

const (
	// MaxXRegs is the size of the X register file.
	MaxXRegs = 256
	// MaxFPRegs is the size of the float register file.
	MaxFPRegs = 8
)

// TermTag is the primary tag stored in the low bits of every term.
type TermTag uint8

const (
	TagBoxed TermTag = iota
	TagHeader
	TagCons
	// From here on values are immediate.
	TagSmall
	TagAtom
	TagLocalPid
	TagLocalPort
	TagSpecial
)

// SpecialTag is the secondary tag of Special terms.
type SpecialTag uint8

const (
	SpecialConst SpecialTag = iota
	SpecialRegX
	SpecialRegY
	SpecialRegFP
	SpecialOpcode
	SpecialLabel
	SpecialCatch
)

const (
	termTagBits    = 3
	termTagMask    = Word(1)<<termTagBits - 1
	specialTagBits = 3
	specialTagMask = Word(1)<<specialTagBits - 1
	specialShift   = termTagBits + specialTagBits

	highestBitCP = Word(1) << (WordBits - 1)
)

// Special constants.
const (
	constNil Word = iota
	constEmptyTuple
	constEmptyBinary
)

// SmallInt range. One bit of the payload is the sign.
const (
	LargestSmall  SWord = 1<<(WordBits-termTagBits-1) - 1
	SmallestSmall SWord = -LargestSmall
)

// Pre-defined constant terms
const (
	NonValue    Term = 0
	Nil         Term = Term(constNil<<specialShift | Word(SpecialConst)<<termTagBits | Word(TagSpecial))
	EmptyTuple  Term = Term(constEmptyTuple<<specialShift | Word(SpecialConst)<<termTagBits | Word(TagSpecial))
	EmptyBinary Term = Term(constEmptyBinary<<specialShift | Word(SpecialConst)<<termTagBits | Word(TagSpecial))
)

// ---------------------------------------------------------------------------
// Addresses
// ---------------------------------------------------------------------------

// Addr is a byte address inside a heap arena. Valid object addresses are
// word aligned and never zero.
type Addr uint64

// AddrOf returns the address of the word at index i.
func AddrOf(i int) Addr {
	return Addr(i) << WordAlignShift
}

// Index returns the word index of a.
func (a Addr) Index() int {
	return int(a >> WordAlignShift)
}

// Offset returns the address n words after a.
func (a Addr) Offset(n int) Addr {
	return a + Addr(n)<<WordAlignShift
}

// IsAligned reports whether a is word aligned.
func (a Addr) IsAligned() bool {
	return Word(a)&termTagMask == 0
}

// CodePtr locates an instruction: a loaded module slot and a word offset into
// its code. Module slots start at 1, so the zero CodePtr is "no code".
type CodePtr struct {
	Module uint32
	Offset uint32
}

// maxCodeModules bounds module slots so a packed CodePtr fits a Catch term.
const maxCodeModules = 1 << 24

// IsValid reports whether c points at loaded code.
func (c CodePtr) IsValid() bool {
	return c.Module != 0
}

// Next returns the pointer n words further into the same module.
func (c CodePtr) Next(n int) CodePtr {
	return CodePtr{Module: c.Module, Offset: c.Offset + uint32(n)}
}

func (c CodePtr) String() string {
	return fmt.Sprintf("%d:%d", c.Module, c.Offset)
}

func (c CodePtr) pack() Word {
	if c.Module >= maxCodeModules {
		panic("CodePtr: module slot out of range")
	}
	return Word(c.Module)<<32 | Word(c.Offset)
}

func unpackCodePtr(w Word) CodePtr {
	return CodePtr{Module: uint32(w >> 32), Offset: uint32(w)}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func makeFromTagAndValue(t TermTag, v Word) Term {
	return Term(v<<termTagBits | Word(t))
}

func makeSpecial(st SpecialTag, v Word) Term {
	return makeFromTagAndValue(TagSpecial, v<<specialTagBits|Word(st))
}

// FromRaw turns any word into a term, possibly an invalid one.
func FromRaw(w Word) Term {
	return Term(w)
}

// MakeSmall creates a small integer term.
// Panics if n is outside [SmallestSmall, LargestSmall].
func MakeSmall(n int64) Term {
	if !SmallFits(n) {
		panic("MakeSmall: value out of range")
	}
	return Term(Word(n<<termTagBits) | Word(TagSmall))
}

// TryMakeSmall creates a small integer, returning false if n does not fit.
func TryMakeSmall(n int64) (Term, bool) {
	if !SmallFits(n) {
		return NonValue, false
	}
	return Term(Word(n<<termTagBits) | Word(TagSmall)), true
}

// SmallFits reports whether n can be stored as a small integer.
func SmallFits(n int64) bool {
	return n >= SmallestSmall && n <= LargestSmall
}

// MakeAtom creates an atom term from an atom table index.
func MakeAtom(index uint32) Term {
	return makeFromTagAndValue(TagAtom, Word(index))
}

// MakeLocalPid creates a pid term from a process index.
func MakeLocalPid(index uint64) Term {
	return makeFromTagAndValue(TagLocalPid, index)
}

// MakeLocalPort creates a port term from a port index.
func MakeLocalPort(index uint64) Term {
	return makeFromTagAndValue(TagLocalPort, index)
}

// MakeBoxed creates a boxed term pointing at a header word.
// Panics if a is zero or not word aligned.
func MakeBoxed(a Addr) Term {
	if a == 0 || !a.IsAligned() || Word(a)&highestBitCP != 0 {
		panic(fmt.Sprintf("MakeBoxed: bad address 0x%x", uint64(a)))
	}
	return Term(a)
}

// MakeCons creates a cons term pointing at a two-word cell.
// Panics if a is zero or not word aligned.
func MakeCons(a Addr) Term {
	if a == 0 || !a.IsAligned() {
		panic(fmt.Sprintf("MakeCons: bad address 0x%x", uint64(a)))
	}
	return Term(Word(a) | Word(TagCons))
}

// MakeCP encodes a continuation pointer.
func MakeCP(c CodePtr) Term {
	return Term(c.pack()<<termTagBits | highestBitCP)
}

// MakeCatch encodes a catch frame marker holding the handler location.
func MakeCatch(c CodePtr) Term {
	return makeSpecial(SpecialCatch, c.pack())
}

// MakeXReg creates an X register reference. Panics if n >= MaxXRegs.
func MakeXReg(n int) Term {
	if n < 0 || n >= MaxXRegs {
		panic(fmt.Sprintf("MakeXReg: register %d out of range", n))
	}
	return makeSpecial(SpecialRegX, Word(n))
}

// MakeYReg creates a Y (stack slot) register reference.
func MakeYReg(n int) Term {
	if n < 0 {
		panic("MakeYReg: negative slot")
	}
	return makeSpecial(SpecialRegY, Word(n))
}

// MakeFPReg creates a float register reference. Panics if n >= MaxFPRegs.
func MakeFPReg(n int) Term {
	if n < 0 || n >= MaxFPRegs {
		panic(fmt.Sprintf("MakeFPReg: register %d out of range", n))
	}
	return makeSpecial(SpecialRegFP, Word(n))
}

// MakeLabel creates a compile-time label reference.
func MakeLabel(n int) Term {
	return makeSpecial(SpecialLabel, Word(n))
}

// MakeOpcode creates the term that starts an instruction in code.
func MakeOpcode(op Opcode) Term {
	return makeSpecial(SpecialOpcode, Word(op))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Raw returns the word including tag bits.
func (t Term) Raw() Word {
	return Word(t)
}

// Tag returns the primary tag.
func (t Term) Tag() TermTag {
	return TermTag(Word(t) & termTagMask)
}

// IsNonValue reports whether t is the non-value.
func (t Term) IsNonValue() bool {
	return t == NonValue
}

// IsValue reports whether t is anything but the non-value.
func (t Term) IsValue() bool {
	return t != NonValue
}

// IsBoxed reports whether t points at a boxed heap object.
func (t Term) IsBoxed() bool {
	return t.Tag() == TagBoxed && t != NonValue && Word(t)&highestBitCP == 0
}

// IsCP reports whether t is a continuation pointer.
func (t Term) IsCP() bool {
	return t.Tag() == TagBoxed && Word(t)&highestBitCP != 0
}

func (t Term) IsHeader() bool {
	return t.Tag() == TagHeader
}

// IsCons reports whether t points at a cons cell.
func (t Term) IsCons() bool {
	return t.Tag() == TagCons
}

// IsNil reports whether t is the empty list.
func (t Term) IsNil() bool {
	return t == Nil
}

// IsList reports whether t is a cons cell or the empty list.
func (t Term) IsList() bool {
	return t.IsCons() || t == Nil
}

func (t Term) IsSmall() bool {
	return t.Tag() == TagSmall
}

func (t Term) IsAtom() bool {
	return t.Tag() == TagAtom
}

func (t Term) IsLocalPid() bool {
	return t.Tag() == TagLocalPid
}

func (t Term) IsLocalPort() bool {
	return t.Tag() == TagLocalPort
}

func (t Term) IsSpecial() bool {
	return t.Tag() == TagSpecial
}

// IsImmediate reports whether t carries its whole value in the word.
func (t Term) IsImmediate() bool {
	switch t.Tag() {
	case TagBoxed, TagCons, TagHeader:
		return false
	}
	return true
}

func (t Term) isSpecialOf(st SpecialTag) bool {
	return t.IsSpecial() && t.specialTag() == st
}

// IsEmptyTuple reports whether t is the {} constant.
func (t Term) IsEmptyTuple() bool {
	return t == EmptyTuple
}

// IsEmptyBinary reports whether t is the <<>> constant.
func (t Term) IsEmptyBinary() bool {
	return t == EmptyBinary
}

func (t Term) IsXReg() bool {
	return t.isSpecialOf(SpecialRegX)
}

func (t Term) IsYReg() bool {
	return t.isSpecialOf(SpecialRegY)
}

func (t Term) IsFPReg() bool {
	return t.isSpecialOf(SpecialRegFP)
}

func (t Term) IsLabel() bool {
	return t.isSpecialOf(SpecialLabel)
}

func (t Term) IsOpcode() bool {
	return t.isSpecialOf(SpecialOpcode)
}

func (t Term) IsCatch() bool {
	return t.isSpecialOf(SpecialCatch)
}

// IsSame compares two terms by their raw words.
func IsSame(a, b Term) bool {
	return a == b
}

// ---------------------------------------------------------------------------
// Projections
// ---------------------------------------------------------------------------

func (t Term) specialTag() SpecialTag {
	return SpecialTag((Word(t) >> termTagBits) & specialTagMask)
}

func (t Term) specialValue() Word {
	return Word(t) >> specialShift
}

// valueWithoutTag returns the payload of a non-pointer term.
func (t Term) valueWithoutTag() Word {
	return Word(t) >> termTagBits
}

// SmallValue returns t as an int64. Panics if t is not a small integer.
func (t Term) SmallValue() int64 {
	if !t.IsSmall() {
		panic("Term.SmallValue: not a small integer")
	}
	return int64(t) >> termTagBits
}

// BoxPtr returns the address a boxed term points at. Panics if t is not boxed.
func (t Term) BoxPtr() Addr {
	if !t.IsBoxed() {
		panic("Term.BoxPtr: not a boxed term")
	}
	return Addr(t)
}

// BoxPtrSafe returns the boxed address or ErrTermIsNotABoxed.
func (t Term) BoxPtrSafe() (Addr, error) {
	if !t.IsBoxed() {
		return 0, ErrTermIsNotABoxed
	}
	return Addr(t), nil
}

// ConsPtr returns the address of a cons cell. Panics if t is not a cons.
func (t Term) ConsPtr() Addr {
	if !t.IsCons() {
		panic("Term.ConsPtr: not a cons term")
	}
	return Addr(Word(t) &^ termTagMask)
}

// AtomIndex returns the atom table index. Panics if t is not an atom.
func (t Term) AtomIndex() uint32 {
	if !t.IsAtom() {
		panic("Term.AtomIndex: not an atom")
	}
	return uint32(t.valueWithoutTag())
}

// PidIndex returns the process index of a local pid.
func (t Term) PidIndex() uint64 {
	if !t.IsLocalPid() {
		panic("Term.PidIndex: not a local pid")
	}
	return t.valueWithoutTag()
}

// PortIndex returns the port index of a local port.
func (t Term) PortIndex() uint64 {
	if !t.IsLocalPort() {
		panic("Term.PortIndex: not a local port")
	}
	return t.valueWithoutTag()
}

// RegIndex returns the register number of an X, Y or FP register reference.
func (t Term) RegIndex() int {
	if !t.IsXReg() && !t.IsYReg() && !t.IsFPReg() {
		panic("Term.RegIndex: not a register")
	}
	return int(t.specialValue())
}

// LabelValue returns the label number. Panics if t is not a label.
func (t Term) LabelValue() int {
	if !t.IsLabel() {
		panic("Term.LabelValue: not a label")
	}
	return int(t.specialValue())
}

// OpcodeValue returns the opcode an instruction term carries.
func (t Term) OpcodeValue() Opcode {
	if !t.IsOpcode() {
		panic("Term.OpcodeValue: not an opcode")
	}
	return Opcode(t.specialValue())
}

// CPValue decodes a continuation pointer. Panics if t is not a CP.
func (t Term) CPValue() CodePtr {
	if !t.IsCP() {
		panic("Term.CPValue: not a continuation pointer")
	}
	return unpackCodePtr((Word(t) &^ highestBitCP) >> termTagBits)
}

// CatchValue returns the handler location of a catch marker.
func (t Term) CatchValue() CodePtr {
	if !t.IsCatch() {
		panic("Term.CatchValue: not a catch marker")
	}
	return unpackCodePtr(t.specialValue())
}

// String renders a term without heap or atom table access. Boxed and cons
// terms print as addresses; use Format for their contents.
func (t Term) String() string {
	switch t.Tag() {
	case TagBoxed:
		if t == NonValue {
			return "NON_VALUE"
		}
		if t.IsCP() {
			return fmt.Sprintf("CP(%s)", t.CPValue())
		}
		return fmt.Sprintf("Boxed(0x%x)", uint64(t))
	case TagHeader:
		return fmt.Sprintf("Header(%s/%d)", t.HeaderBoxType(), t.HeaderArity())
	case TagCons:
		return fmt.Sprintf("Cons(0x%x)", uint64(t.ConsPtr()))
	case TagSmall:
		return fmt.Sprintf("%d", t.SmallValue())
	case TagAtom:
		return fmt.Sprintf("Atom(%d)", t.AtomIndex())
	case TagLocalPid:
		return fmt.Sprintf("<0.%d.0>", t.PidIndex())
	case TagLocalPort:
		return fmt.Sprintf("#Port<0.%d>", t.PortIndex())
	}
	return t.formatSpecial()
}

func (t Term) formatSpecial() string {
	switch t {
	case Nil:
		return "[]"
	case EmptyTuple:
		return "{}"
	case EmptyBinary:
		return "<<>>"
	}
	v := t.specialValue()
	switch t.specialTag() {
	case SpecialRegX:
		return fmt.Sprintf("X(%d)", v)
	case SpecialRegY:
		return fmt.Sprintf("Y(%d)", v)
	case SpecialRegFP:
		return fmt.Sprintf("FP(%d)", v)
	case SpecialOpcode:
		return fmt.Sprintf("Opcode(%s)", Opcode(v))
	case SpecialLabel:
		return fmt.Sprintf("Label(%d)", v)
	case SpecialCatch:
		return fmt.Sprintf("Catch(%s)", unpackCodePtr(v))
	}
	return fmt.Sprintf("Special(0x%x)", v)
}
