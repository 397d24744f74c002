// Package loader reads module images and assembly source and links them
// into loadable vm modules.
package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("beamrt.loader")

// ImageVersion is the format version written into every image.
const ImageVersion = 1

// Image is the unlinked form of a module: names instead of atom indexes and
// symbolic labels instead of code offsets. It is what a .bim file holds and
// what an assembly file parses into.
type Image struct {
	Version int           `cbor:"0,keyasint" yaml:"version,omitempty"`
	Module  string        `cbor:"1,keyasint" yaml:"module"`
	Exports []ExportEntry `cbor:"2,keyasint,omitempty" yaml:"exports"`
	Lambdas []LambdaEntry `cbor:"3,keyasint,omitempty" yaml:"lambdas,omitempty"`
	Code    []Instruction `cbor:"4,keyasint" yaml:"code"`
}

// ExportEntry makes the function starting at Label callable by name.
type ExportEntry struct {
	Name  string `cbor:"1,keyasint" yaml:"name"`
	Arity int    `cbor:"2,keyasint" yaml:"arity"`
	Label string `cbor:"3,keyasint" yaml:"label"`
}

// LambdaEntry describes a fun body for make_fun. Arity excludes the NFree
// captured values, which the callee finds after its arguments.
type LambdaEntry struct {
	Name  string `cbor:"1,keyasint" yaml:"name"`
	Arity int    `cbor:"2,keyasint" yaml:"arity"`
	NFree int    `cbor:"3,keyasint" yaml:"nfree"`
	Label string `cbor:"4,keyasint" yaml:"label"`
}

// Instruction is one opcode with its operands. Label, when set, names the
// address of this instruction.
type Instruction struct {
	Label string    `cbor:"1,keyasint,omitempty" yaml:"label,omitempty"`
	Op    string    `cbor:"2,keyasint" yaml:"op"`
	Args  []Operand `cbor:"3,keyasint,omitempty" yaml:"args,omitempty,flow"`
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// OperandKind says how an operand is turned into a term.
type OperandKind uint8

const (
	OperandInt OperandKind = iota + 1
	OperandAtom
	OperandX
	OperandY
	OperandFP
	OperandLabel
	OperandNil
	OperandEmptyTuple
	OperandEmptyBinary
)

// Operand is one instruction argument. Int holds integers and register
// numbers, Name holds atom and label names.
type Operand struct {
	Kind OperandKind `cbor:"1,keyasint"`
	Int  int64       `cbor:"2,keyasint,omitempty"`
	Name string      `cbor:"3,keyasint,omitempty"`
}

func Int(n int64) Operand { return Operand{Kind: OperandInt, Int: n} }

func Atom(name string) Operand { return Operand{Kind: OperandAtom, Name: name} }

func X(n int) Operand { return Operand{Kind: OperandX, Int: int64(n)} }

func Y(n int) Operand { return Operand{Kind: OperandY, Int: int64(n)} }

func Label(name string) Operand { return Operand{Kind: OperandLabel, Name: name} }

// ParseOperand reads the assembly notation of an operand:
//
//	42 -7          small integers
//	x0 y3 fp1      registers
//	@loop          label reference
//	[] {} <<>>     constants
//	ok 'x0'        atoms; quote names that would read as something else
func ParseOperand(s string) (Operand, error) {
	switch s {
	case "":
		return Operand{}, fmt.Errorf("empty operand")
	case "[]":
		return Operand{Kind: OperandNil}, nil
	case "{}":
		return Operand{Kind: OperandEmptyTuple}, nil
	case "<<>>":
		return Operand{Kind: OperandEmptyBinary}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return Operand{}, fmt.Errorf("empty label reference")
		}
		return Label(s[1:]), nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return Atom(s[1 : len(s)-1]), nil
	}
	for _, reg := range []struct {
		prefix string
		kind   OperandKind
	}{{"fp", OperandFP}, {"x", OperandX}, {"y", OperandY}} {
		rest, ok := strings.CutPrefix(s, reg.prefix)
		if !ok || rest == "" {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return Operand{Kind: reg.kind, Int: int64(n)}, nil
		}
	}
	return Atom(s), nil
}

// String returns the assembly notation; ParseOperand reads it back.
func (o Operand) String() string {
	switch o.Kind {
	case OperandInt:
		return strconv.FormatInt(o.Int, 10)
	case OperandX:
		return fmt.Sprintf("x%d", o.Int)
	case OperandY:
		return fmt.Sprintf("y%d", o.Int)
	case OperandFP:
		return fmt.Sprintf("fp%d", o.Int)
	case OperandLabel:
		return "@" + o.Name
	case OperandNil:
		return "[]"
	case OperandEmptyTuple:
		return "{}"
	case OperandEmptyBinary:
		return "<<>>"
	case OperandAtom:
		if p, err := ParseOperand(o.Name); err != nil || p != o {
			return "'" + o.Name + "'"
		}
		return o.Name
	}
	return fmt.Sprintf("operand(%d)", o.Kind)
}
