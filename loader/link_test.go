package loader

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/chazu/beamrt/vm"
)

func TestLinkAndRun(t *testing.T) {
	v := vm.New(vm.Options{})
	m, err := mustParse(t, helloSrc).Link(v.Atoms())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Code) != 22 {
		t.Errorf("linked %d words, want 22", len(m.Code))
	}
	greet := vm.FunArity{F: v.Atoms().Intern("greet"), Arity: 1}
	if m.Exports[greet] != 14 {
		t.Errorf("greet/1 at %d, want 14", m.Exports[greet])
	}
	if _, err := v.Load(m); err != nil {
		t.Fatal(err)
	}
	if got := runMain(t, v, "hello"); got != "['world']" {
		t.Errorf("exit reason = %s", got)
	}
}

func TestLinkLambdas(t *testing.T) {
	src := `
module: adder
exports:
  - {name: main, arity: 0, label: main}
lambdas:
  - {name: "-main/0-fun-0-", arity: 1, nfree: 1, label: fun}
code:
  - {label: main, op: allocate, args: [0, 0]}
  - {op: move, args: [captured, x0]}
  - {op: make_fun, args: [0, 1]}
  - {op: move, args: [x0, x1]}
  - {op: move, args: [arg, x0]}
  - {op: call_fun, args: [1]}
  - {op: call_ext_last, args: [1, erlang, exit, 0]}
  - {label: fun, op: test_heap, args: [3, 2]}
  - {op: put_tuple, args: [2, x0]}
  - {op: put, args: [x0]}
  - {op: put, args: [x1]}
  - {op: return}
`
	v := vm.New(vm.Options{})
	atoms := v.Atoms()
	m, err := mustParse(t, src).Link(atoms)
	if err != nil {
		t.Fatal(err)
	}
	want := vm.FunEntry{MFA: atoms.MFA("adder", "-main/0-fun-0-", 1), NFree: 1, Dst: vm.CodePtr{Offset: 22}}
	if len(m.Lambdas) != 1 || m.Lambdas[0] != want {
		t.Fatalf("lambdas = %s", spew.Sdump(m.Lambdas))
	}
	if _, err := v.Load(m); err != nil {
		t.Fatal(err)
	}
	if got := runMain(t, v, "adder"); got != "{'arg', 'captured'}" {
		t.Errorf("exit reason = %s", got)
	}
}

func TestLinkErrors(t *testing.T) {
	tests := []struct {
		name string
		img  Image
		want string
	}{
		{"no module", Image{Code: []Instruction{{Op: "return"}}}, "no module name"},
		{"unknown op", Image{Module: "m", Code: []Instruction{{Op: "frobnicate"}}}, "unknown opcode"},
		{"operand count", Image{Module: "m", Code: []Instruction{{Op: "move", Args: []Operand{X(0)}}}}, "takes 2 operands"},
		{"undefined label", Image{Module: "m", Code: []Instruction{{Op: "jump", Args: []Operand{Label("nowhere")}}}}, "undefined label"},
		{"duplicate label", Image{Module: "m", Code: []Instruction{{Label: "a", Op: "return"}, {Label: "a", Op: "return"}}}, "defined twice"},
		{"x range", Image{Module: "m", Code: []Instruction{{Op: "move", Args: []Operand{Int(1), X(vm.MaxXRegs)}}}}, "x register"},
		{"fp range", Image{Module: "m", Code: []Instruction{{Op: "move", Args: []Operand{Int(1), {Kind: OperandFP, Int: vm.MaxFPRegs}}}}}, "fp register"},
		{"big int", Image{Module: "m", Code: []Instruction{{Op: "move", Args: []Operand{Int(1 << 62), X(0)}}}}, "does not fit"},
		{"export label", Image{Module: "m", Exports: []ExportEntry{{Name: "f", Label: "f"}}, Code: []Instruction{{Op: "return"}}}, "export f/0"},
		{"lambda label", Image{Module: "m", Lambdas: []LambdaEntry{{Name: "l", Label: "l"}}, Code: []Instruction{{Op: "return"}}}, "lambda l"},
		{"version", Image{Version: 9, Module: "m"}, "image version 9"},
	}
	for _, tt := range tests {
		_, err := tt.img.Link(vm.NewAtomTable())
		if !errors.Is(err, ErrLink) || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Link() = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestDisassembleRelinks(t *testing.T) {
	atoms := vm.NewAtomTable()
	m, err := mustParse(t, helloSrc).Link(atoms)
	if err != nil {
		t.Fatal(err)
	}
	img, err := Disassemble(atoms, m)
	if err != nil {
		t.Fatal(err)
	}
	if img.Code[0].Label != "L0" || img.Code[4].Label != "L14" {
		t.Errorf("labels = %q, %q", img.Code[0].Label, img.Code[4].Label)
	}
	again, err := img.Link(atoms)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Code, m.Code) || !reflect.DeepEqual(again.Exports, m.Exports) {
		t.Errorf("relinked module differs:\n%s\nwant\n%s", spew.Sdump(again.Code), spew.Sdump(m.Code))
	}
}
