package vm

import (
	"errors"
	"testing"
)

func TestComparisonBIFs(t *testing.T) {
	vm, p := idleProcess(t)
	h := p.Heap()
	a, _ := MakeTuple(h, MakeSmall(1), AtomOk)
	b, _ := MakeTuple(h, MakeSmall(1), AtomOk)
	c, _ := MakeTuple(h, MakeSmall(2), AtomOk)

	tests := []struct {
		fn   string
		a, b Term
		want Term
	}{
		{"==", a, b, AtomTrue},
		{"=:=", a, c, AtomFalse},
		{"/=", a, c, AtomTrue},
		{"=/=", a, b, AtomFalse},
		{"<", a, c, AtomTrue},
		{"<", c, a, AtomFalse},
	}
	for _, tt := range tests {
		got, err := vm.CallBIF(p, vm.atoms.MFA("erlang", tt.fn, 2), tt.a, tt.b)
		if err != nil || got != tt.want {
			t.Errorf("erlang:%s(%s, %s) = %s, %v, want %s", tt.fn,
				Format(h, vm.atoms, tt.a), Format(h, vm.atoms, tt.b), got, err, tt.want)
		}
	}
}

func TestRaisingBIFs(t *testing.T) {
	vm, p := idleProcess(t)
	tests := []struct {
		fn    string
		arity int
		kind  ExceptionKind
	}{
		{"error", 1, KindError},
		{"error", 2, KindError},
		{"exit", 1, KindExit},
		{"throw", 1, KindThrow},
		{"nif_error", 1, KindError},
	}
	for _, tt := range tests {
		args := []Term{AtomBadmatch, Nil}[:tt.arity]
		_, err := vm.CallBIF(p, vm.atoms.MFA("erlang", tt.fn, tt.arity), args...)
		exc, ok := AsException(err)
		if !ok || exc.Kind != tt.kind || exc.Reason != AtomBadmatch {
			t.Errorf("erlang:%s/%d raised %v", tt.fn, tt.arity, err)
		}
	}
}

func TestAtomToList(t *testing.T) {
	vm, p := idleProcess(t)
	mfa := vm.atoms.MFA("erlang", "atom_to_list", 1)
	got, err := vm.CallBIF(p, mfa, vm.atoms.Intern("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if s := Format(p.Heap(), vm.atoms, got); s != `"hello"` {
		t.Errorf("atom_to_list(hello) = %s", s)
	}
	if _, err := vm.CallBIF(p, mfa, MakeSmall(1)); err == nil {
		t.Error("atom_to_list(1) succeeded")
	}
}

func TestPhash2IsStableAndBounded(t *testing.T) {
	vm, p := idleProcess(t)
	mfa := vm.atoms.MFA("erlang", "phash2", 1)
	l1, _ := ListFromSlice(p.Heap(), []Term{AtomOk, MakeSmall(3)})
	l2, _ := ListFromSlice(p.Heap(), []Term{AtomOk, MakeSmall(3)})
	h1, _ := vm.CallBIF(p, mfa, l1)
	h2, _ := vm.CallBIF(p, mfa, l2)
	if h1 != h2 {
		t.Errorf("phash2 of equal lists: %s != %s", h1, h2)
	}
	if !h1.IsSmall() || h1.SmallValue() < 0 || h1.SmallValue() >= phash2Range {
		t.Errorf("phash2 = %s out of range", h1)
	}
}

func TestSelfAndExit2(t *testing.T) {
	vm, p := idleProcess(t)
	self, _ := vm.CallBIF(p, vm.atoms.MFA("erlang", "self", 0))
	if self != p.Pid() {
		t.Fatalf("self() = %s, want %s", self, p.Pid())
	}

	exit2 := vm.atoms.MFA("erlang", "exit", 2)
	if r, err := vm.CallBIF(p, exit2, self, AtomNormal); err != nil || r != AtomTrue {
		t.Errorf("exit(self(), normal) = %s, %v", r, err)
	}
	_, err := vm.CallBIF(p, exit2, self, AtomKill)
	if exc, ok := AsException(err); !ok || exc.Kind != KindExit {
		t.Errorf("exit(self(), kill) = %v", err)
	}
	if _, err := vm.CallBIF(p, exit2, AtomOk, AtomKill); err == nil {
		t.Error("exit(ok, kill) accepted a non-pid")
	}
}

func TestExit2KillsOther(t *testing.T) {
	vm, p := idleProcess(t)
	other, err := vm.Spawn(vm.atoms.MFA("idle", "main", 0), nil, nil, SpawnOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "exit", 2), other.Pid(), AtomKill); err != nil {
		t.Fatal(err)
	}
	if got := runToExit(t, vm, other); got != "'killed'" {
		t.Errorf("killed process exit = %s", got)
	}
}

func TestSpawnBIF(t *testing.T) {
	vm, p := idleProcess(t)
	spawn := vm.atoms.MFA("erlang", "spawn", 3)
	child, err := vm.CallBIF(p, spawn, vm.atoms.Intern("idle"), vm.atoms.Intern("main"), Nil)
	if err != nil || !child.IsLocalPid() || vm.Process(child) == nil {
		t.Fatalf("spawn(idle, main, []) = %s, %v", child, err)
	}
	_, err = vm.CallBIF(p, spawn, vm.atoms.Intern("idle"), vm.atoms.Intern("nope"), Nil)
	if exc, ok := AsException(err); !ok || exc.Reason != AtomUndef {
		t.Errorf("spawn of an undefined function = %v", err)
	}
	if _, err := vm.CallBIF(p, spawn, MakeSmall(1), AtomOk, Nil); err == nil {
		t.Error("spawn with a non-atom module succeeded")
	}

	wide := make([]Term, MaxXRegs+1)
	for i := range wide {
		wide[i] = MakeSmall(int64(i))
	}
	args, _ := ListFromSlice(p.Heap(), wide)
	_, err = vm.CallBIF(p, spawn, vm.atoms.Intern("idle"), vm.atoms.Intern("main"), args)
	if exc, ok := AsException(err); !ok || exc.Reason != AtomSystemLimit {
		t.Errorf("spawn with %d arguments = %v, want system_limit", len(wide), err)
	}
}

func TestBinaryBIFs(t *testing.T) {
	vm, p := idleProcess(t)
	h := p.Heap()
	bin, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "atom_to_binary", 1), vm.atoms.Intern("hé"))
	if err != nil {
		t.Fatal(err)
	}
	if got := Format(h, vm.atoms, bin); got != "<<104,195,169>>" {
		t.Errorf("atom_to_binary = %s", got)
	}
	size, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "byte_size", 1), bin)
	if err != nil || size != MakeSmall(3) {
		t.Errorf("byte_size = %s, %v", size, err)
	}
	list, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "binary_to_list", 1), bin)
	if err != nil {
		t.Fatal(err)
	}
	if got := Format(h, vm.atoms, list); got != "[104, 195, 169]" {
		t.Errorf("binary_to_list = %s", got)
	}
	empty, _ := vm.CallBIF(p, vm.atoms.MFA("erlang", "atom_to_binary", 1), vm.atoms.Intern(""))
	if empty != EmptyBinary {
		t.Errorf("atom_to_binary('') = %s", Format(h, vm.atoms, empty))
	}
	if _, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "byte_size", 1), AtomOk); err == nil {
		t.Error("byte_size(ok) succeeded")
	}
}

func TestMakeFunBIF(t *testing.T) {
	vm, p := idleProcess(t)
	mfa := vm.atoms.MFA("erlang", "make_fun", 3)
	fun, err := vm.CallBIF(p, mfa, vm.atoms.Intern("lists"), vm.atoms.Intern("map"), MakeSmall(2))
	if err != nil {
		t.Fatal(err)
	}
	e, err := ExportFromTerm(p.Heap(), fun)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.MFA(); got != vm.atoms.MFA("lists", "map", 2) {
		t.Errorf("MFA() = %s", got.Format(vm.atoms))
	}
	if _, ok := e.Dst(); ok {
		t.Error("a new export is already resolved")
	}

	bad := [][]Term{
		{MakeSmall(1), AtomOk, MakeSmall(0)},
		{AtomOk, AtomOk, MakeSmall(-1)},
		{AtomOk, AtomOk, MakeSmall(MaxXRegs)},
		{AtomOk, AtomOk, AtomOk},
	}
	for _, args := range bad {
		if _, err := vm.CallBIF(p, mfa, args...); err == nil {
			t.Errorf("make_fun(%s, %s, %s) succeeded", args[0], args[1], args[2])
		}
	}
}

func TestCallBIFChecks(t *testing.T) {
	vm, p := idleProcess(t)
	if _, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "nothing", 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown bif: %v", err)
	}
	if _, err := vm.CallBIF(p, vm.atoms.MFA("erlang", "self", 0), AtomOk); !errors.Is(err, ErrBadArity) {
		t.Errorf("bif with too many args: %v", err)
	}
	if !vm.IsBIF(vm.atoms.MFA("erlang", "throw", 1)) {
		t.Error("erlang:throw/1 not registered")
	}
}

func TestRegisterBIFShadowsCode(t *testing.T) {
	vm := New(Options{})
	a := newAsm(vm.atoms, "m")
	a.export("main", 0)
	a.emit(OpAllocate, 0, 0)
	a.emit(OpCallExt, 0, "m", "answer")
	a.emit(OpCallExtLast, 1, "erlang", "exit", 0)
	a.export("answer", 0)
	a.emit(OpMove, "from_code", x(0))
	a.emit(OpReturn)
	a.load(t, vm)

	vm.RegisterBIF("m", "answer", 0, func(vm *VM, p *Process, args []Term) (Term, error) {
		return vm.atoms.Intern("from_bif"), nil
	})
	p := spawnMain(t, vm, "m")
	if got := runToExit(t, vm, p); got != "'from_bif'" {
		t.Errorf("exit reason = %s", got)
	}
}
