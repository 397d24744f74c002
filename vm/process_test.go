package vm

import (
	"testing"
)

func idleProcess(t *testing.T) (*VM, *Process) {
	t.Helper()
	vm := New(Options{})
	a := newAsm(vm.atoms, "idle")
	a.export("main", 0)
	a.label("recv")
	a.emit(OpLoopRec, lbl("wait"), x(0))
	a.emit(OpReturn)
	a.label("wait")
	a.emit(OpWait, lbl("recv"))
	a.load(t, vm)
	return vm, spawnMain(t, vm, "idle")
}

func TestSecondExceptionPanics(t *testing.T) {
	_, p := idleProcess(t)
	p.Exception(KindError, AtomBadarg)
	if !p.IsFailed() || p.Err().Reason != AtomBadarg {
		t.Fatalf("Err() = %v", p.Err())
	}
	defer func() {
		if recover() == nil {
			t.Error("raising over an outstanding exception did not panic")
		}
		p.ClearError()
		p.Exception(KindThrow, AtomOk) // allowed again once cleared
	}()
	p.Exception(KindExit, AtomNormal)
}

func TestDeliverMessageCopies(t *testing.T) {
	vm, p := idleProcess(t)
	src := NewHeap(64)
	msg, _ := MakeTuple(src, AtomOk, MakeSmall(1))
	if err := p.DeliverMessage(src, msg); err != nil {
		t.Fatal(err)
	}
	src.SetWord(msg.BoxPtr().Offset(1), AtomError)
	heapBefore := p.Heap().HeapUsed()

	m, ok := p.mailbox.current()
	if !ok || m.frag == nil {
		t.Fatal("message not queued as a fragment")
	}
	got, ok, err := p.receive()
	if err != nil || !ok {
		t.Fatalf("receive = %v, %v", ok, err)
	}
	if s := Format(p.Heap(), vm.atoms, got); s != "{'ok', 1}" {
		t.Errorf("received %s", s)
	}
	if p.Heap().HeapUsed() != heapBefore+3 {
		t.Errorf("receive used %d heap words, want 3", p.Heap().HeapUsed()-heapBefore)
	}
	if m.frag != nil {
		t.Error("fragment kept after the copy into the heap")
	}
	// Looking again does not copy twice.
	again, _, _ := p.receive()
	if again != got || p.Heap().HeapUsed() != heapBefore+3 {
		t.Error("second receive copied the message again")
	}
}

func TestMailboxCursor(t *testing.T) {
	_, p := idleProcess(t)
	for _, a := range []Term{AtomOk, AtomTrue, AtomFalse} {
		p.DeliverMessage(nil, a)
	}
	mb := p.Mailbox()
	mb.next()
	mb.next()
	if m, _ := mb.current(); m.term != AtomFalse {
		t.Errorf("current after two next = %s", m.term)
	}
	mb.remove()
	if mb.Len() != 2 {
		t.Errorf("Len() = %d after remove", mb.Len())
	}
	if m, _ := mb.current(); m.term != AtomOk {
		t.Errorf("cursor not rewound after remove: %s", m.term)
	}
	mb.next()
	mb.next()
	if _, ok := mb.current(); ok {
		t.Error("cursor past the end still returns a message")
	}
	mb.next()
	if mb.save != 2 {
		t.Errorf("next moved past the end: save=%d", mb.save)
	}
}

func TestTerminatedDropsMessages(t *testing.T) {
	vm, p := idleProcess(t)
	vm.Kill(p.Pid())
	runToExit(t, vm, p)
	if err := p.DeliverMessage(nil, AtomOk); err != nil {
		t.Fatal(err)
	}
	if p.Mailbox().Len() != 0 {
		t.Error("terminated process accepted a message")
	}
	if err := vm.Send(p.Pid(), nil, AtomOk); err != nil {
		t.Errorf("Send to a dead pid: %v", err)
	}
	if err := vm.Send(AtomOk, nil, AtomOk); err == nil {
		t.Error("Send to a non-pid succeeded")
	}
}

func TestParsePriority(t *testing.T) {
	for p := PriorityMax; p < numPriorities; p++ {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %s, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority accepted an unknown name")
	}
}
