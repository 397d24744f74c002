package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/beamrt/vm"
)

// ErrLink is wrapped by every error Link reports.
var ErrLink = errors.New("link error")

func linkErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLink, fmt.Sprintf(format, args...))
}

// Link resolves opcode names, operands and labels and returns a module
// ready for vm.CodeServer.Load. Atoms are interned in atoms.
func (img *Image) Link(atoms *vm.AtomTable) (*vm.Module, error) {
	if img.Version != 0 && img.Version != ImageVersion {
		return nil, linkErr("%s: image version %d, want %d", img.Module, img.Version, ImageVersion)
	}
	if img.Module == "" {
		return nil, linkErr("image has no module name")
	}

	// First pass: opcodes and label addresses.
	ops := make([]vm.Opcode, len(img.Code))
	labels := make(map[string]int)
	off := 0
	for i, ins := range img.Code {
		op, ok := vm.OpcodeByName(ins.Op)
		if !ok {
			return nil, linkErr("%s: instruction %d: unknown opcode %q", img.Module, i, ins.Op)
		}
		if len(ins.Args) != op.Arity() {
			return nil, linkErr("%s: instruction %d: %s takes %d operands, got %d",
				img.Module, i, op, op.Arity(), len(ins.Args))
		}
		if ins.Label != "" {
			if _, dup := labels[ins.Label]; dup {
				return nil, linkErr("%s: label %q defined twice", img.Module, ins.Label)
			}
			labels[ins.Label] = off
		}
		ops[i] = op
		off += 1 + op.Arity()
	}

	// Second pass: emit words.
	code := make([]vm.Term, 0, off)
	for i, ins := range img.Code {
		code = append(code, vm.MakeOpcode(ops[i]))
		for j, arg := range ins.Args {
			t, err := linkOperand(atoms, labels, arg)
			if err != nil {
				return nil, linkErr("%s: instruction %d (%s) operand %d: %v", img.Module, i, ins.Op, j, err)
			}
			code = append(code, t)
		}
	}

	m := &vm.Module{
		Name:    atoms.Intern(img.Module),
		Code:    code,
		Exports: make(map[vm.FunArity]uint32, len(img.Exports)),
	}
	for _, e := range img.Exports {
		at, ok := labels[e.Label]
		if !ok {
			return nil, linkErr("%s: export %s/%d: undefined label %q", img.Module, e.Name, e.Arity, e.Label)
		}
		m.Exports[vm.FunArity{F: atoms.Intern(e.Name), Arity: e.Arity}] = uint32(at)
	}
	for _, l := range img.Lambdas {
		at, ok := labels[l.Label]
		if !ok {
			return nil, linkErr("%s: lambda %s: undefined label %q", img.Module, l.Name, l.Label)
		}
		m.Lambdas = append(m.Lambdas, vm.FunEntry{
			MFA:   atoms.MFA(img.Module, l.Name, l.Arity),
			NFree: l.NFree,
			Dst:   vm.CodePtr{Offset: uint32(at)},
		})
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLink, img.Module, err)
	}
	log.Debugf("linked %s: %d words, %d exports, %d lambdas", img.Module, len(code), len(m.Exports), len(m.Lambdas))
	return m, nil
}

func linkOperand(atoms *vm.AtomTable, labels map[string]int, o Operand) (vm.Term, error) {
	switch o.Kind {
	case OperandInt:
		t, ok := vm.TryMakeSmall(o.Int)
		if !ok {
			return vm.NonValue, fmt.Errorf("integer %d does not fit a small", o.Int)
		}
		return t, nil
	case OperandAtom:
		return atoms.Intern(o.Name), nil
	case OperandX:
		if o.Int < 0 || o.Int >= vm.MaxXRegs {
			return vm.NonValue, fmt.Errorf("x register %d out of range", o.Int)
		}
		return vm.MakeXReg(int(o.Int)), nil
	case OperandY:
		if o.Int < 0 {
			return vm.NonValue, fmt.Errorf("y register %d out of range", o.Int)
		}
		return vm.MakeYReg(int(o.Int)), nil
	case OperandFP:
		if o.Int < 0 || o.Int >= vm.MaxFPRegs {
			return vm.NonValue, fmt.Errorf("fp register %d out of range", o.Int)
		}
		return vm.MakeFPReg(int(o.Int)), nil
	case OperandLabel:
		at, ok := labels[o.Name]
		if !ok {
			return vm.NonValue, fmt.Errorf("undefined label %q", o.Name)
		}
		return vm.MakeLabel(at), nil
	case OperandNil:
		return vm.Nil, nil
	case OperandEmptyTuple:
		return vm.EmptyTuple, nil
	case OperandEmptyBinary:
		return vm.EmptyBinary, nil
	}
	return vm.NonValue, fmt.Errorf("unknown operand kind %d", o.Kind)
}

// Disassemble turns a linked module back into an image. Every jump target,
// export and lambda entry gets a label named after its offset.
func Disassemble(atoms vm.AtomResolver, m *vm.Module) (*Image, error) {
	name, err := atoms.ToStr(m.Name)
	if err != nil {
		return nil, fmt.Errorf("disassemble: module name: %w", err)
	}
	img := &Image{Version: ImageVersion, Module: name}

	targets := make(map[int]bool)
	for _, off := range m.Exports {
		targets[int(off)] = true
	}
	for _, fe := range m.Lambdas {
		targets[int(fe.Dst.Offset)] = true
	}
	for _, w := range m.Code {
		if w.IsLabel() {
			targets[w.LabelValue()] = true
		}
	}
	labelAt := func(off int) string { return fmt.Sprintf("L%d", off) }

	for off := 0; off < len(m.Code); {
		w := m.Code[off]
		if !w.IsOpcode() {
			return nil, fmt.Errorf("disassemble %s: word %d is not an opcode", name, off)
		}
		op := w.OpcodeValue()
		if !op.Valid() || off+1+op.Arity() > len(m.Code) {
			return nil, fmt.Errorf("disassemble %s: bad instruction at %d", name, off)
		}
		ins := Instruction{Op: op.String()}
		if targets[off] {
			ins.Label = labelAt(off)
		}
		for _, arg := range m.Code[off+1 : off+1+op.Arity()] {
			o, err := operandOf(atoms, arg, labelAt)
			if err != nil {
				return nil, fmt.Errorf("disassemble %s at %d: %w", name, off, err)
			}
			ins.Args = append(ins.Args, o)
		}
		img.Code = append(img.Code, ins)
		off += 1 + op.Arity()
	}

	for fa, off := range m.Exports {
		fn, err := atoms.ToStr(fa.F)
		if err != nil {
			return nil, fmt.Errorf("disassemble %s: export: %w", name, err)
		}
		img.Exports = append(img.Exports, ExportEntry{Name: fn, Arity: fa.Arity, Label: labelAt(int(off))})
	}
	sort.Slice(img.Exports, func(i, j int) bool {
		a, b := img.Exports[i], img.Exports[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Arity < b.Arity
	})
	for _, fe := range m.Lambdas {
		fn, err := atoms.ToStr(fe.MFA.F)
		if err != nil {
			return nil, fmt.Errorf("disassemble %s: lambda: %w", name, err)
		}
		img.Lambdas = append(img.Lambdas, LambdaEntry{
			Name: fn, Arity: fe.MFA.Arity, NFree: fe.NFree, Label: labelAt(int(fe.Dst.Offset)),
		})
	}
	return img, nil
}

func operandOf(atoms vm.AtomResolver, t vm.Term, labelAt func(int) string) (Operand, error) {
	switch {
	case t.IsSmall():
		return Int(t.SmallValue()), nil
	case t.IsAtom():
		s, err := atoms.ToStr(t)
		if err != nil {
			return Operand{}, err
		}
		return Atom(s), nil
	case t.IsXReg():
		return X(t.RegIndex()), nil
	case t.IsYReg():
		return Y(t.RegIndex()), nil
	case t.IsFPReg():
		return Operand{Kind: OperandFP, Int: int64(t.RegIndex())}, nil
	case t.IsLabel():
		return Label(labelAt(t.LabelValue())), nil
	case t.IsNil():
		return Operand{Kind: OperandNil}, nil
	case t.IsEmptyTuple():
		return Operand{Kind: OperandEmptyTuple}, nil
	case t.IsEmptyBinary():
		return Operand{Kind: OperandEmptyBinary}, nil
	}
	return Operand{}, fmt.Errorf("operand %s has no image form", t)
}
