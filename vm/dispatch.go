package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Timeslice dispatch
// ---------------------------------------------------------------------------

// SliceResult tells the scheduler what became of a process after a
// timeslice.
type SliceResult uint8

const (
	SliceNone  SliceResult = iota // nothing ran, the process was not runnable
	SliceYield                    // budget spent or explicit yield, requeue
	SliceWait                     // parked on an empty mailbox
	SliceExit                     // terminated
)

func (r SliceResult) String() string {
	switch r {
	case SliceNone:
		return "none"
	case SliceYield:
		return "yield"
	case SliceWait:
		return "wait"
	case SliceExit:
		return "exit"
	}
	return fmt.Sprintf("SliceResult(%d)", uint8(r))
}

type stepResult uint8

const (
	stepNext stepResult = iota
	stepYield
	stepWait
	stepExit
)

// errYield is returned by erlang:yield/0 to end the timeslice.
var errYield = errors.New("yield")

// RunSlice runs the process until its reduction budget is spent, it waits
// for a message, yields or terminates. It returns SliceNone unless the
// process was runnable.
func (p *Process) RunSlice() SliceResult {
	if !p.state.CompareAndSwap(int32(ProcessRunnable), int32(ProcessRunning)) {
		return SliceNone
	}
	p.slices++
	if p.killed.Load() {
		p.finish(AtomKilled)
		return SliceExit
	}
	p.ctx.ResetReductions(p.vm.opts.Reductions)

	for {
		if p.ctx.Reductions <= 0 {
			p.state.Store(int32(ProcessRunnable))
			return SliceYield
		}
		p.ctx.Reductions -= FetchOpcodeCost

		at := p.ctx.IP
		res, err := p.step()
		if err != nil {
			res = p.fail(at, err)
		}
		switch res {
		case stepYield:
			p.state.Store(int32(ProcessRunnable))
			return SliceYield
		case stepWait:
			// The process may already be running elsewhere after a wakeup.
			return SliceWait
		case stepExit:
			return SliceExit
		}
	}
}

// fail handles an error from one instruction. A capacity failure runs the
// collector once and retries the instruction; when that does not help, or
// for any other failure, an exception is raised.
func (p *Process) fail(at CodePtr, err error) stepResult {
	var ce *CapacityError
	if errors.As(err, &ce) {
		gcErr := p.heap.EnsureSize(ce.Need, p.ctx.Live)
		if gcErr == nil {
			p.ctx.IP = at
			return stepNext
		}
		log.Warningf("process %s: %v at %s", p.pid, gcErr, at)
		err = &Exception{Kind: KindError, Reason: AtomSystemLimit, Site: ce.Site}
	}

	exc, ok := AsException(err)
	if !ok {
		log.Warningf("process %s: %v at %s", p.pid, err, at)
		exc = &Exception{Kind: KindError, Reason: AtomBadarg, Site: err.Error()}
	}
	p.setException(exc)
	return p.unwind()
}

// unwind delivers the outstanding exception to the nearest catch frame. The
// stack is scanned from the top; the last CP seen above the catch marker
// belongs to the frame that installed it and becomes the new stack top.
// Without a catch the process terminates.
func (p *Process) unwind() stepResult {
	exc := p.err
	h := p.heap
	frame := -1
	for slot := h.stop; slot < len(h.data); slot++ {
		w := h.data[slot]
		switch {
		case w.IsCP():
			frame = slot
		case w.IsCatch() && frame >= 0:
			h.cutStack(frame)
			p.ctx.X[0] = exc.Kind.Atom()
			p.ctx.X[1] = exc.Reason
			p.ctx.X[2] = Nil
			p.ctx.Live = 3
			p.ctx.IP = w.CatchValue()
			p.ClearError()
			log.Debugf("process %s: caught %s", p.pid, exc.Kind)
			return stepNext
		}
	}

	reason := exc.Reason
	if exc.Kind == KindThrow {
		reason = AtomNocatch
		if t, err := MakeTuple(h, AtomNocatch, exc.Reason); err == nil {
			reason = t
		}
	}
	p.finish(reason)
	return stepExit
}

// finish terminates the process and reports the exit to the VM. A crash
// handler runs first, while the heap still exists.
func (p *Process) finish(reason Term) {
	exc := p.err
	if p.vm != nil && (exc != nil || reason != AtomNormal) {
		p.vm.crashed(p, reason, exc)
	}
	p.terminate(reason)
	if p.vm != nil {
		p.vm.processExited(p, exc)
	}
}

func (p *Process) doReturn() stepResult {
	if !p.ctx.CP.IsValid() {
		p.finish(AtomNormal)
		return stepExit
	}
	p.ctx.IP = p.ctx.CP
	return stepNext
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// operands decodes instruction arguments, keeping the first error so a
// handler can check once after reading everything.
type operands struct {
	args   []Term
	module uint32
	err    error
}

func (o *operands) int(i int) int {
	t := o.args[i]
	if !t.IsSmall() || t.SmallValue() < 0 {
		if o.err == nil {
			o.err = fmt.Errorf("%w: operand %d is %s, want a count", ErrBadOperand, i, t)
		}
		return 0
	}
	return int(t.SmallValue())
}

func (o *operands) label(i int) CodePtr {
	t := o.args[i]
	if !t.IsLabel() {
		if o.err == nil {
			o.err = fmt.Errorf("%w: operand %d is %s, want a label", ErrBadOperand, i, t)
		}
		return CodePtr{}
	}
	return CodePtr{Module: o.module, Offset: uint32(t.LabelValue())}
}

func (o *operands) yreg(i int) int {
	t := o.args[i]
	if !t.IsYReg() {
		if o.err == nil {
			o.err = fmt.Errorf("%w: operand %d is %s, want a y register", ErrBadOperand, i, t)
		}
		return 0
	}
	return t.RegIndex()
}

func (o *operands) atom(i int) Term {
	t := o.args[i]
	if !t.IsAtom() && o.err == nil {
		o.err = fmt.Errorf("%w: operand %d is %s, want an atom", ErrBadOperand, i, t)
	}
	return t
}

// load reads a source operand: a register or an immediate literal.
func (p *Process) load(src Term) (Term, error) {
	switch {
	case src.IsXReg():
		v := p.ctx.X[src.RegIndex()]
		if v.IsNonValue() {
			return NonValue, fmt.Errorf("%w: read of unset x%d", ErrBadOperand, src.RegIndex())
		}
		return v, nil
	case src.IsYReg():
		v, err := p.heap.GetY(src.RegIndex())
		if err == nil && v.IsNonValue() {
			err = fmt.Errorf("%w: read of unset y%d", ErrBadOperand, src.RegIndex())
		}
		return v, err
	case src.IsSmall(), src.IsAtom(), src.IsLocalPid(), src.IsLocalPort(),
		src.IsNil(), src.IsEmptyTuple(), src.IsEmptyBinary():
		return src, nil
	}
	return NonValue, fmt.Errorf("%w: %s is not a source", ErrBadOperand, src)
}

// store writes v to a destination register.
func (p *Process) store(dst, v Term) error {
	switch {
	case dst.IsXReg():
		p.ctx.X[dst.RegIndex()] = v
		return nil
	case dst.IsYReg():
		return p.heap.SetY(dst.RegIndex(), v)
	}
	return fmt.Errorf("%w: %s is not a destination", ErrBadOperand, dst)
}

// ---------------------------------------------------------------------------
// Instruction execution
// ---------------------------------------------------------------------------

func (p *Process) codeAt(at CodePtr) ([]Term, error) {
	if p.code == nil || p.code.slot != at.Module {
		p.code = p.vm.code.Module(at.Module)
	}
	if p.code == nil || int(at.Offset) >= len(p.code.Code) {
		return nil, fmt.Errorf("%w: no code at %s", ErrBadOperand, at)
	}
	return p.code.Code, nil
}

// step executes the instruction at IP. IP is advanced before the handler
// runs; jumps overwrite it and a failed instruction is retried from the
// address the caller saved.
func (p *Process) step() (stepResult, error) {
	at := p.ctx.IP
	code, err := p.codeAt(at)
	if err != nil {
		return stepNext, err
	}
	w := code[at.Offset]
	if !w.IsOpcode() {
		return stepNext, fmt.Errorf("%w: %s at %s is not an opcode", ErrBadOperand, w, at)
	}
	op := w.OpcodeValue()
	end := int(at.Offset) + 1 + op.Arity()
	if op.Arity() < 0 || end > len(code) {
		return stepNext, fmt.Errorf("%w: truncated %s at %s", ErrBadOperand, op, at)
	}
	o := operands{args: code[at.Offset+1 : end], module: at.Module}
	p.ctx.IP = at.Next(1 + op.Arity())
	ctx, h := &p.ctx, p.heap

	switch op {
	case OpAllocate, OpAllocateZero:
		need, live := o.int(0), o.int(1)
		if o.err != nil {
			return stepNext, o.err
		}
		if op == OpAllocate {
			return stepNext, opAllocate(ctx, h, need, live)
		}
		return stepNext, opAllocateZero(ctx, h, need, live)

	case OpAllocateHeap, OpAllocateHeapZero:
		need, heapNeed, live := o.int(0), o.int(1), o.int(2)
		if o.err != nil {
			return stepNext, o.err
		}
		if op == OpAllocateHeap {
			return stepNext, opAllocateHeap(ctx, h, need, heapNeed, live)
		}
		return stepNext, opAllocateHeapZero(ctx, h, need, heapNeed, live)

	case OpDeallocate:
		n := o.int(0)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, opDeallocate(ctx, h, n)

	case OpTrim:
		n, remaining := o.int(0), o.int(1)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, opTrim(ctx, h, n, remaining)

	case OpTestHeap:
		need, live := o.int(0), o.int(1)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, opTestHeap(ctx, h, need, live)

	case OpInit:
		y := o.yreg(0)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, opInit(ctx, h, y)

	case OpMove:
		v, err := p.load(o.args[0])
		if err != nil {
			return stepNext, err
		}
		return stepNext, p.store(o.args[1], v)

	case OpPutList:
		hd, err := p.load(o.args[0])
		if err != nil {
			return stepNext, err
		}
		tl, err := p.load(o.args[1])
		if err != nil {
			return stepNext, err
		}
		cell, err := h.Cons(hd, tl)
		if err != nil {
			return stepNext, err
		}
		return stepNext, p.store(o.args[2], cell)

	case OpPutTuple:
		return stepNext, p.putTuple(&o, code)

	case OpPut:
		return stepNext, fmt.Errorf("%w: put outside put_tuple at %s", ErrBadOperand, at)

	case OpGetList:
		v, err := p.load(o.args[0])
		if err != nil {
			return stepNext, err
		}
		if !v.IsCons() {
			return stepNext, Badarg()
		}
		if err := p.store(o.args[1], Head(h, v)); err != nil {
			return stepNext, err
		}
		return stepNext, p.store(o.args[2], Tail(h, v))

	case OpGetTupleElement:
		v, err := p.load(o.args[0])
		if err != nil {
			return stepNext, err
		}
		i := o.int(1)
		if o.err != nil {
			return stepNext, o.err
		}
		tp, err := TupleFromTerm(h, v)
		if err != nil || i >= tp.Arity() {
			return stepNext, Badarg()
		}
		return stepNext, p.store(o.args[2], tp.Element(i))

	case OpMakeFun:
		return stepNext, p.makeFun(&o)

	case OpJump:
		dst := o.label(0)
		if o.err != nil {
			return stepNext, o.err
		}
		ctx.IP = dst
		return stepNext, nil

	case OpCall, OpCallOnly:
		arity, dst := o.int(0), o.label(1)
		if o.err != nil {
			return stepNext, o.err
		}
		if op == OpCall {
			ctx.CP = ctx.IP
		}
		ctx.Live = arity
		ctx.IP = dst
		return stepNext, nil

	case OpCallLast:
		arity, dst, n := o.int(0), o.label(1), o.int(2)
		if o.err != nil {
			return stepNext, o.err
		}
		if err := opDeallocate(ctx, h, n); err != nil {
			return stepNext, err
		}
		ctx.Live = arity
		ctx.IP = dst
		return stepNext, nil

	case OpCallExt, OpCallExtOnly:
		mfa := MFArity{M: o.atom(1), F: o.atom(2), Arity: o.int(0)}
		if o.err != nil {
			return stepNext, o.err
		}
		return p.callExt(mfa, op == OpCallExtOnly, noFrame)

	case OpCallExtLast:
		mfa := MFArity{M: o.atom(1), F: o.atom(2), Arity: o.int(0)}
		n := o.int(3)
		if o.err != nil {
			return stepNext, o.err
		}
		if n < 0 {
			return stepNext, fmt.Errorf("%w: call_ext_last frame %d", ErrBadOperand, n)
		}
		return p.callExt(mfa, true, n)

	case OpCallFun:
		arity := o.int(0)
		if o.err != nil {
			return stepNext, o.err
		}
		return p.callFun(arity)

	case OpReturn:
		return p.doReturn(), nil

	case OpIsEqExact, OpIsLt, OpIsGe:
		fail := o.label(0)
		if o.err != nil {
			return stepNext, o.err
		}
		a, err := p.load(o.args[1])
		if err != nil {
			return stepNext, err
		}
		b, err := p.load(o.args[2])
		if err != nil {
			return stepNext, err
		}
		r := Compare(h, p.vm.atoms, a, b, true)
		pass := false
		switch op {
		case OpIsEqExact:
			pass = r == 0
		case OpIsLt:
			pass = r < 0
		case OpIsGe:
			pass = r >= 0
		}
		if !pass {
			ctx.IP = fail
		}
		return stepNext, nil

	case OpSend:
		if err := p.vm.send(p, ctx.X[0], ctx.X[1]); err != nil {
			return stepNext, err
		}
		ctx.X[0] = ctx.X[1]
		return stepNext, nil

	case OpLoopRec:
		fail := o.label(0)
		if o.err != nil {
			return stepNext, o.err
		}
		msg, ok, err := p.receive()
		if err != nil {
			return stepNext, err
		}
		if !ok {
			ctx.IP = fail
			return stepNext, nil
		}
		return stepNext, p.store(o.args[1], msg)

	case OpLoopRecEnd:
		dst := o.label(0)
		if o.err != nil {
			return stepNext, o.err
		}
		p.mailbox.next()
		ctx.IP = dst
		return stepNext, nil

	case OpRemoveMessage:
		p.mailbox.remove()
		return stepNext, nil

	case OpWait:
		dst := o.label(0)
		if o.err != nil {
			return stepNext, o.err
		}
		ctx.IP = dst
		if p.park() {
			return stepWait, nil
		}
		return stepNext, nil

	case OpTry:
		y, handler := o.yreg(0), o.label(1)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, h.SetY(y, MakeCatch(handler))

	case OpTryEnd, OpTryCase:
		y := o.yreg(0)
		if o.err != nil {
			return stepNext, o.err
		}
		return stepNext, h.SetY(y, Nil)

	case OpIntCodeEnd:
		return stepNext, fmt.Errorf("%w: reached int_code_end at %s", ErrBadOperand, at)
	}
	return stepNext, fmt.Errorf("%w: unhandled %s at %s", ErrBadOperand, op, at)
}

// putTuple builds a tuple from the put instructions that follow put_tuple
// and skips over them.
func (p *Process) putTuple(o *operands, code []Term) error {
	arity := o.int(0)
	if o.err != nil {
		return o.err
	}
	start := int(p.ctx.IP.Offset)
	if start+2*arity > len(code) {
		return fmt.Errorf("%w: put_tuple/%d runs past the code", ErrBadOperand, arity)
	}
	elems := make([]Term, arity)
	for i := range elems {
		w := code[start+2*i]
		if !w.IsOpcode() || w.OpcodeValue() != OpPut {
			return fmt.Errorf("%w: put_tuple/%d followed by %s", ErrBadOperand, arity, w)
		}
		v, err := p.load(code[start+2*i+1])
		if err != nil {
			return err
		}
		elems[i] = v
	}
	t, err := MakeTuple(p.heap, elems...)
	if err != nil {
		return err
	}
	if err := p.store(o.args[1], t); err != nil {
		return err
	}
	p.ctx.IP = p.ctx.IP.Next(2 * arity)
	return nil
}

// makeFun creates a closure for a lambda of the current module, capturing
// X0..Xn-1, and leaves it in X0.
func (p *Process) makeFun(o *operands) error {
	idx, nfree := o.int(0), o.int(1)
	if o.err != nil {
		return o.err
	}
	if idx >= len(p.code.Lambdas) {
		return fmt.Errorf("%w: lambda %d of %d", ErrBadOperand, idx, len(p.code.Lambdas))
	}
	fe := p.code.Lambdas[idx]
	if fe.NFree != nfree {
		return fmt.Errorf("%w: lambda %d captures %d, not %d", ErrBadOperand, idx, fe.NFree, nfree)
	}
	frozen := make([]Term, nfree)
	for i := range frozen {
		v, err := p.load(MakeXReg(i))
		if err != nil {
			return err
		}
		frozen[i] = v
	}
	fun, err := CreateClosure(p.heap, fe, frozen)
	if err != nil {
		return err
	}
	p.ctx.X[0] = fun
	return nil
}

// callExt calls a function by name: a BIF when one is registered, loaded
// code otherwise. A tail call leaves CP alone so the callee returns to our
// caller. A frame of pop slots is removed only once the call can no longer
// fail, so a retried instruction finds the stack as it was; noFrame keeps
// the stack as is.
func (p *Process) callExt(mfa MFArity, tail bool, pop int) (stepResult, error) {
	if bif, ok := p.vm.bifs.lookup(mfa); ok {
		res, err := bif(p.vm, p, p.ctx.X[:mfa.Arity:mfa.Arity])
		yielded := errors.Is(err, errYield)
		if err != nil && !yielded {
			return stepNext, err
		}
		if err := p.popFrame(pop); err != nil {
			return stepNext, err
		}
		p.ctx.X[0] = res
		next := stepNext
		if tail {
			next = p.doReturn()
		}
		if yielded && next == stepNext {
			next = stepYield
		}
		return next, nil
	}

	dst, err := p.vm.code.LookupAndLoad(mfa)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return stepNext, &Exception{Kind: KindError, Reason: AtomUndef, Site: mfa.Format(p.vm.atoms)}
		}
		return stepNext, err
	}
	if err := p.popFrame(pop); err != nil {
		return stepNext, err
	}
	if !tail {
		p.ctx.CP = p.ctx.IP
	}
	p.ctx.Live = mfa.Arity
	p.ctx.IP = dst
	return stepNext, nil
}

// noFrame tells callExt there is no frame to remove.
const noFrame = -1

func (p *Process) popFrame(n int) error {
	if n == noFrame {
		return nil
	}
	return opDeallocate(&p.ctx, p.heap, n)
}

// callFun calls the fun in X[arity] with X0..X[arity-1].
func (p *Process) callFun(arity int) (stepResult, error) {
	if arity >= MaxXRegs {
		return stepNext, fmt.Errorf("%w: call_fun/%d", ErrBadOperand, arity)
	}
	h := p.heap
	fun := p.ctx.X[arity]

	if e, err := ExportFromTerm(h, fun); err == nil {
		mfa := e.MFA()
		if mfa.Arity != arity {
			return stepNext, Raise(KindError, AtomBadarity)
		}
		dst, ok := e.Dst()
		if !ok {
			if p.vm.IsBIF(mfa) {
				return p.callExt(mfa, false, noFrame)
			}
			var err error
			if dst, err = p.vm.code.LookupAndLoad(mfa); err != nil {
				if errors.Is(err, ErrNotFound) {
					return stepNext, &Exception{Kind: KindError, Reason: AtomUndef, Site: mfa.Format(p.vm.atoms)}
				}
				return stepNext, err
			}
			e.Resolve(h, dst)
		}
		p.ctx.CP = p.ctx.IP
		p.ctx.Live = arity
		p.ctx.IP = dst
		return stepNext, nil
	}

	c, err := ClosureFromTerm(h, fun)
	if err != nil {
		return stepNext, Raise(KindError, AtomBadfun)
	}
	if c.MFA().Arity != arity {
		return stepNext, Raise(KindError, AtomBadarity)
	}
	nfree := c.NFree()
	if arity+nfree > MaxXRegs {
		return stepNext, SystemLimit()
	}
	dst, ok := c.Dst()
	if !ok {
		return stepNext, Raise(KindError, AtomBadfun)
	}
	for i := 0; i < nfree; i++ {
		p.ctx.X[arity+i] = c.Frozen(i)
	}
	p.ctx.CP = p.ctx.IP
	p.ctx.Live = arity + nfree
	p.ctx.IP = dst
	return stepNext, nil
}
