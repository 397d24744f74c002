package vm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bobg/multichan"
)

// ---------------------------------------------------------------------------
// VM: atoms, code, built-ins, processes and the scheduler
// ---------------------------------------------------------------------------

// Options configures a VM.
type Options struct {
	HeapWords    int          // initial process arena, in words
	MaxHeapWords int          // cap for the growing collector, 0 for none
	Reductions   int          // budget per timeslice
	Workers      int          // scheduler worker goroutines
	Source       ModuleSource // lazy module loading, may be nil
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		HeapWords:  DefaultProcHeap,
		Reductions: DefaultReductions,
		Workers:    1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HeapWords <= 0 {
		o.HeapWords = d.HeapWords
	}
	if o.Reductions <= 0 {
		o.Reductions = d.Reductions
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

// ExitEvent is published when a process terminates. Reason lives in Mem,
// which stays valid after the process heap is gone.
type ExitEvent struct {
	Pid     Term
	Entry   MFArity
	Reason  Term
	Mem     Memory
	Crashed bool
}

// CrashHandler is called when a process terminates abnormally, before its
// heap is released. reason lives in p.Heap().
type CrashHandler func(p *Process, reason Term, exc *Exception)

// Stats is a snapshot of VM counters.
type Stats struct {
	Spawned      int64
	Exited       int64
	Crashed      int64
	HeapsCreated int64
	Live         int
	Modules      int
	Atoms        int
	BIFs         int
}

// VM owns everything shared between processes.
type VM struct {
	opts  Options
	atoms *AtomTable
	code  *CodeServer
	bifs  *bifTable
	sched *Scheduler

	procMu  sync.RWMutex
	procs   map[uint64]*Process
	nextPid atomic.Uint64

	exits   *multichan.W
	onCrash atomic.Pointer[CrashHandler]

	spawned atomic.Int64
	exited  atomic.Int64
	crashes atomic.Int64
	heaps   atomic.Int64
}

// New creates a VM with the erlang built-ins registered.
func New(opts Options) *VM {
	opts = opts.withDefaults()
	atoms := NewAtomTable()
	vm := &VM{
		opts:  opts,
		atoms: atoms,
		code:  NewCodeServer(atoms, opts.Source),
		bifs:  newBIFTable(),
		sched: newScheduler(),
		procs: make(map[uint64]*Process),
		exits: multichan.New(ExitEvent{}),
	}
	vm.nextPid.Store(1)
	vm.registerErlangBIFs()
	return vm
}

func (vm *VM) Atoms() *AtomTable {
	return vm.atoms
}

func (vm *VM) Code() *CodeServer {
	return vm.code
}

func (vm *VM) Scheduler() *Scheduler {
	return vm.sched
}

func (vm *VM) Options() Options {
	return vm.opts
}

// Load makes m available to spawn and call_ext.
func (vm *VM) Load(m *Module) (uint32, error) {
	return vm.code.Load(m)
}

// SetCrashHandler installs fn, replacing any earlier handler. nil removes it.
func (vm *VM) SetCrashHandler(fn CrashHandler) {
	if fn == nil {
		vm.onCrash.Store(nil)
		return
	}
	vm.onCrash.Store(&fn)
}

func (vm *VM) newHeap(words int) *Heap {
	vm.heaps.Add(1)
	h := NewHeap(words)
	h.SetCollector(GrowingCollector{MaxWords: vm.opts.MaxHeapWords})
	return h
}

// ---------------------------------------------------------------------------
// Processes
// ---------------------------------------------------------------------------

// Spawn creates a process running mfa with args and queues it. args live in
// argMem, which may be nil when every argument is immediate.
func (vm *VM) Spawn(mfa MFArity, args []Term, argMem Memory, opts SpawnOpts) (*Process, error) {
	return vm.spawn(mfa, args, argMem, opts)
}

func (vm *VM) spawn(mfa MFArity, args []Term, argMem Memory, opts SpawnOpts) (*Process, error) {
	if opts.Priority >= numPriorities {
		return nil, fmt.Errorf("%w: priority %d", ErrBadOperand, opts.Priority)
	}
	pid := MakeLocalPid(vm.nextPid.Add(1) - 1)
	p, err := newProcess(vm, pid, mfa, args, argMem, opts)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", mfa.Format(vm.atoms), err)
	}

	vm.procMu.Lock()
	vm.procs[pid.PidIndex()] = p
	vm.procMu.Unlock()
	vm.spawned.Add(1)
	log.Debugf("spawned %s running %s", pid, mfa.Format(vm.atoms))

	vm.sched.Enqueue(p)
	return p, nil
}

// Process returns the live process for pid, or nil.
func (vm *VM) Process(pid Term) *Process {
	if !pid.IsLocalPid() {
		return nil
	}
	vm.procMu.RLock()
	defer vm.procMu.RUnlock()
	return vm.procs[pid.PidIndex()]
}

// Live returns the number of processes that have not terminated.
func (vm *VM) Live() int {
	vm.procMu.RLock()
	defer vm.procMu.RUnlock()
	return len(vm.procs)
}

// Send delivers msg, read from src, to pid. Messages to unknown pids are
// dropped.
func (vm *VM) Send(pid Term, src Memory, msg Term) error {
	if !pid.IsLocalPid() {
		return Badarg()
	}
	target := vm.Process(pid)
	if target == nil {
		return nil
	}
	return target.DeliverMessage(src, msg)
}

func (vm *VM) send(from *Process, pid Term, msg Term) error {
	return vm.Send(pid, from.heap, msg)
}

// Kill makes pid exit with reason killed at its next timeslice.
func (vm *VM) Kill(pid Term) bool {
	p := vm.Process(pid)
	if p == nil {
		return false
	}
	return p.kill()
}

func (vm *VM) crashed(p *Process, reason Term, exc *Exception) {
	vm.crashes.Add(1)
	log.Warningf("process %s (%s) crashed: %s", p.pid, p.entry.Format(vm.atoms), Format(p.heap, vm.atoms, reason))
	if fn := vm.onCrash.Load(); fn != nil {
		(*fn)(p, reason, exc)
	}
}

// processExited drops p from the registry and publishes its exit. The
// scheduler stops once no process is left.
func (vm *VM) processExited(p *Process, exc *Exception) {
	vm.procMu.Lock()
	delete(vm.procs, p.pid.PidIndex())
	left := len(vm.procs)
	vm.procMu.Unlock()
	vm.exited.Add(1)

	reason, mem := p.ExitReason()
	vm.exits.Write(ExitEvent{
		Pid:     p.pid,
		Entry:   p.entry,
		Reason:  reason,
		Mem:     mem,
		Crashed: exc != nil || reason != AtomNormal,
	})
	log.Debugf("process %s exited: %s", p.pid, Format(mem, vm.atoms, reason))

	if left == 0 {
		vm.sched.Stop()
	}
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// Run schedules processes until none is left or ctx is done.
func (vm *VM) Run(ctx context.Context) error {
	vm.sched.reset()
	if vm.Live() == 0 {
		return nil
	}
	return vm.sched.Run(ctx, vm.opts.Workers)
}

// Shutdown ends the exit stream. Subscribers see it closed once they have
// read every event.
func (vm *VM) Shutdown() {
	vm.sched.Stop()
	vm.exits.Close()
}

// ExitSubscription reads exit events published after it was created.
type ExitSubscription struct {
	r *multichan.R
}

// SubscribeExits starts a new exit event reader.
func (vm *VM) SubscribeExits() *ExitSubscription {
	return &ExitSubscription{r: vm.exits.Reader()}
}

// Next blocks for the next event. It returns false when ctx is done or the
// VM was shut down.
func (s *ExitSubscription) Next(ctx context.Context) (ExitEvent, bool) {
	v, ok := s.r.Read(ctx)
	if !ok {
		return ExitEvent{}, false
	}
	return v.(ExitEvent), true
}

// Poll returns the next event without blocking.
func (s *ExitSubscription) Poll() (ExitEvent, bool) {
	v, ok := s.r.NBRead()
	if !ok {
		return ExitEvent{}, false
	}
	return v.(ExitEvent), true
}

func (s *ExitSubscription) Close() {
	s.r.Dispose()
}

// Stats returns a snapshot of the VM counters.
func (vm *VM) Stats() Stats {
	return Stats{
		Spawned:      vm.spawned.Load(),
		Exited:       vm.exited.Load(),
		Crashed:      vm.crashes.Load(),
		HeapsCreated: vm.heaps.Load(),
		Live:         vm.Live(),
		Modules:      vm.code.Modules(),
		Atoms:        vm.atoms.Len(),
		BIFs:         vm.bifs.len(),
	}
}
