package loader

import (
	"testing"
)

func TestParseOperand(t *testing.T) {
	tests := []struct {
		in   string
		want Operand
	}{
		{"42", Int(42)},
		{"-7", Int(-7)},
		{"x0", X(0)},
		{"y12", Y(12)},
		{"fp3", Operand{Kind: OperandFP, Int: 3}},
		{"@loop", Label("loop")},
		{"[]", Operand{Kind: OperandNil}},
		{"{}", Operand{Kind: OperandEmptyTuple}},
		{"<<>>", Operand{Kind: OperandEmptyBinary}},
		{"ok", Atom("ok")},
		{"'x0'", Atom("x0")},
		{"'hello world'", Atom("hello world")},
		{"x", Atom("x")},
		{"xray", Atom("xray")},
		{"x-1", Atom("x-1")},
	}
	for _, tt := range tests {
		got, err := ParseOperand(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOperand(%q) = %+v, %v, want %+v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"", "@"} {
		if _, err := ParseOperand(bad); err == nil {
			t.Errorf("ParseOperand(%q) succeeded", bad)
		}
	}
}

func TestOperandStringReadsBack(t *testing.T) {
	for _, o := range []Operand{
		Int(-3), X(255), Y(0), Label("L12"), Atom("ok"), Atom("x0"),
		Atom("12"), Atom("[]"), Atom("@x"), Atom("with space"),
		{Kind: OperandNil}, {Kind: OperandEmptyBinary},
	} {
		got, err := ParseOperand(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOperand(%q) = %+v, %v, want %+v", o.String(), got, err, o)
		}
	}
	if s := Atom("x0").String(); s != "'x0'" {
		t.Errorf("Atom(x0).String() = %s", s)
	}
}
