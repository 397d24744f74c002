package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Process
// ---------------------------------------------------------------------------

// ProcessState is the scheduling state of a process.
type ProcessState int32

const (
	ProcessRunnable ProcessState = iota
	ProcessRunning
	ProcessWaiting
	ProcessTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessRunnable:
		return "runnable"
	case ProcessRunning:
		return "running"
	case ProcessWaiting:
		return "waiting"
	case ProcessTerminated:
		return "terminated"
	}
	return fmt.Sprintf("ProcessState(%d)", int32(s))
}

// Priority selects the run queue of a process.
type Priority uint8

const (
	PriorityMax Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityMax:
		return "max"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("Priority(%d)", uint8(p))
}

// ParsePriority maps a priority name to its value.
func ParsePriority(s string) (Priority, error) {
	for p := PriorityMax; p < numPriorities; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("%w: priority %q", ErrBadOperand, s)
}

// Process is a lightweight process: one heap it owns exclusively, an
// execution context, a mailbox and scheduling metadata. Only the worker
// currently running the process touches its heap and context; other
// processes reach it through DeliverMessage alone.
type Process struct {
	vm       *VM
	pid      Term
	entry    MFArity
	priority Priority

	heap    *Heap
	ctx     Context
	mailbox Mailbox

	state  atomic.Int32 // ProcessState
	queued atomic.Bool  // in a run queue
	killed atomic.Bool  // exit requested from outside

	err *Exception // outstanding exception, at most one

	code *Module // module of ctx.IP, cached by the dispatcher

	exitReason Term
	exitMem    *Heap // holds exitReason once the heap is gone
	slices     int
}

// SpawnOpts tunes a new process.
type SpawnOpts struct {
	Priority  Priority
	HeapWords int // initial arena size, 0 for the VM default
}

// newProcess resolves entry and builds a process ready to run. Resolution
// happens before any memory is reserved, so a failed spawn allocates no heap.
// args live in argMem, which may be nil when every argument is immediate.
func newProcess(vm *VM, pid Term, entry MFArity, args []Term, argMem Memory, opts SpawnOpts) (*Process, error) {
	if entry.Arity != len(args) {
		return nil, fmt.Errorf("%w: %s called with %d arguments", ErrBadArity, entry.Format(vm.atoms), len(args))
	}
	ip, err := vm.code.LookupAndLoad(entry)
	if err != nil {
		return nil, err
	}

	need := 0
	for _, a := range args {
		need += TermSize(argMem, a)
	}
	words := opts.HeapWords
	if words <= 0 {
		words = vm.opts.HeapWords
	}
	if words < need+1 {
		words = need + 1
	}

	p := &Process{
		vm:       vm,
		pid:      pid,
		entry:    entry,
		priority: opts.Priority,
		heap:     vm.newHeap(words),
	}
	p.ctx.IP = ip
	local := make([]Term, len(args))
	for i, a := range args {
		if local[i], err = CopyTerm(argMem, a, p.heap); err != nil {
			return nil, fmt.Errorf("spawn %s: argument %d: %w", entry.Format(vm.atoms), i, err)
		}
	}
	if err := p.ctx.SetArgs(local); err != nil {
		return nil, err
	}
	p.state.Store(int32(ProcessRunnable))
	return p, nil
}

func (p *Process) Pid() Term {
	return p.pid
}

func (p *Process) Entry() MFArity {
	return p.entry
}

func (p *Process) Priority() Priority {
	return p.priority
}

func (p *Process) State() ProcessState {
	return ProcessState(p.state.Load())
}

// Heap returns the process heap, nil after termination.
func (p *Process) Heap() *Heap {
	return p.heap
}

// Context returns the execution context. Only valid between timeslices or
// from the worker running the process.
func (p *Process) Context() *Context {
	return &p.ctx
}

// Mailbox returns the message queue.
func (p *Process) Mailbox() *Mailbox {
	return &p.mailbox
}

// Slices returns the number of timeslices run so far.
func (p *Process) Slices() int {
	return p.slices
}

func (p *Process) String() string {
	return fmt.Sprintf("Process{%s %s %s}", p.pid, p.entry, p.State())
}

// ---------------------------------------------------------------------------
// Outstanding exception
// ---------------------------------------------------------------------------

// Exception records a raised exception. Raising while another one is still
// outstanding is a contract violation and panics.
func (p *Process) Exception(kind ExceptionKind, reason Term) {
	if p.err != nil {
		panic(fmt.Sprintf("process %s: %s raised while %s is outstanding", p.pid, kind, p.err))
	}
	p.err = &Exception{Kind: kind, Reason: reason}
}

func (p *Process) setException(exc *Exception) {
	p.Exception(exc.Kind, exc.Reason)
	p.err.Site = exc.Site
}

// IsFailed reports whether an exception is outstanding.
func (p *Process) IsFailed() bool {
	return p.err != nil
}

// Err returns the outstanding exception, or nil.
func (p *Process) Err() *Exception {
	return p.err
}

// ClearError drops the outstanding exception once a handler took it.
func (p *Process) ClearError() {
	p.err = nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// DeliverMessage copies msg out of src into a fragment queued on the
// mailbox, waking the process if it waits for a message. Messages to a
// terminated process are dropped.
func (p *Process) DeliverMessage(src Memory, msg Term) error {
	if p.State() == ProcessTerminated {
		return nil
	}
	frag := NewHeap(TermSize(src, msg) + 1)
	local, err := CopyTerm(src, msg, frag)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", p.pid, err)
	}

	mb := &p.mailbox
	mb.mu.Lock()
	mb.msgs = append(mb.msgs, &message{frag: frag, term: local})
	woken := p.state.CompareAndSwap(int32(ProcessWaiting), int32(ProcessRunnable))
	mb.mu.Unlock()

	if woken && p.vm != nil {
		p.vm.sched.Enqueue(p)
	}
	return nil
}

// receive returns the message under the receive cursor, copying it into the
// process heap the first time it is looked at.
func (p *Process) receive() (Term, bool, error) {
	m, ok := p.mailbox.current()
	if !ok {
		return NonValue, false, nil
	}
	if m.frag != nil {
		local, err := CopyTerm(m.frag, m.term, p.heap)
		if err != nil {
			return NonValue, false, err
		}
		m.term, m.frag = local, nil
	}
	return m.term, true, nil
}

// park moves the process to waiting unless a message arrived past the
// receive cursor. The check and the state change happen under the mailbox
// lock so a concurrent delivery either is seen here or sees waiting.
func (p *Process) park() bool {
	mb := &p.mailbox
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.save < len(mb.msgs) {
		return false
	}
	p.state.Store(int32(ProcessWaiting))
	return true
}

// kill requests termination with reason killed. A waiting process is made
// runnable so that its next timeslice acts on the request.
func (p *Process) kill() bool {
	if p.State() == ProcessTerminated {
		return false
	}
	p.killed.Store(true)
	p.mailbox.mu.Lock()
	woken := p.state.CompareAndSwap(int32(ProcessWaiting), int32(ProcessRunnable))
	p.mailbox.mu.Unlock()
	if woken && p.vm != nil {
		p.vm.sched.Enqueue(p)
	}
	return true
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

// terminate ends the process. The reason is copied out of the heap, then the
// heap and the mailbox are released as a whole.
func (p *Process) terminate(reason Term) {
	var src Memory
	if p.heap != nil {
		src = p.heap
	}
	p.exitMem = NewHeap(TermSize(src, reason) + 1)
	if r, err := CopyTerm(src, reason, p.exitMem); err == nil {
		p.exitReason = r
	} else {
		p.exitReason = AtomKilled
	}
	p.heap = nil
	p.code = nil
	p.mailbox.clear()
	p.state.Store(int32(ProcessTerminated))
}

// ExitReason returns the exit reason and the memory it lives in, valid once
// the process has terminated.
func (p *Process) ExitReason() (Term, Memory) {
	return p.exitReason, p.exitMem
}
