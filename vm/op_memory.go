package vm

import "fmt"

// ---------------------------------------------------------------------------
// Stack frame and heap check instructions
// ---------------------------------------------------------------------------

// A frame is laid out from the stack top down as
//
//	[CP][y0][y1]...[yN-1]
//
// allocate* reserves N slots and pushes the caller's CP on top; deallocate
// pops it back into Context.CP. Every handler validates both regions before
// changing either so a failure leaves the process as it was.

// genAlloc is shared by the allocate family. heapNeed words must stay free
// for the heap after the frame is pushed.
func genAlloc(ctx *Context, h *Heap, stackNeed, heapNeed, live int, zero bool) error {
	if stackNeed < 0 || heapNeed < 0 {
		return fmt.Errorf("%w: allocate stack=%d heap=%d", ErrBadOperand, stackNeed, heapNeed)
	}
	ctx.Live = live
	if !h.HeapHasAvailable(heapNeed) {
		return heapFull("allocate", heapNeed, live)
	}
	frame := stackNeed + 1
	if !h.StackHave(frame + heapNeed) {
		return stackFull("allocate", frame+heapNeed, live)
	}
	h.stackAllocUnchecked(stackNeed, zero)
	h.stackPushUnchecked(MakeCP(ctx.CP))
	return nil
}

func opAllocate(ctx *Context, h *Heap, stackNeed, live int) error {
	return genAlloc(ctx, h, stackNeed, 0, live, false)
}

func opAllocateZero(ctx *Context, h *Heap, stackNeed, live int) error {
	return genAlloc(ctx, h, stackNeed, 0, live, true)
}

func opAllocateHeap(ctx *Context, h *Heap, stackNeed, heapNeed, live int) error {
	return genAlloc(ctx, h, stackNeed, heapNeed, live, false)
}

func opAllocateHeapZero(ctx *Context, h *Heap, stackNeed, heapNeed, live int) error {
	return genAlloc(ctx, h, stackNeed, heapNeed, live, true)
}

// popFrameCP pops the saved CP and n slots below it.
func popFrameCP(h *Heap, n int) (CodePtr, error) {
	if n < 0 || h.StackUsed() < n+1 {
		return CodePtr{}, fmt.Errorf("%w: frame of %d words with %d on the stack", ErrStackIndex, n+1, h.StackUsed())
	}
	top := h.StackDeallocate(n)
	if !top.IsCP() {
		return CodePtr{}, fmt.Errorf("%w: stack top %s is not a continuation", ErrBadOperand, top)
	}
	return top.CPValue(), nil
}

func opDeallocate(ctx *Context, h *Heap, n int) error {
	cp, err := popFrameCP(h, n)
	if err != nil {
		return err
	}
	ctx.CP = cp
	return nil
}

// opTrim shrinks the current frame by n slots, keeping the CP on top. The
// remaining count is a hint and is not used.
func opTrim(ctx *Context, h *Heap, n, remaining int) error {
	cp, err := popFrameCP(h, n)
	if err != nil {
		return err
	}
	h.stackPushUnchecked(MakeCP(cp))
	return nil
}

func opTestHeap(ctx *Context, h *Heap, heapNeed, live int) error {
	ctx.Live = live
	if !h.HeapHasAvailable(heapNeed) {
		return heapFull("test_heap", heapNeed, live)
	}
	return nil
}

func opInit(ctx *Context, h *Heap, y int) error {
	return h.SetY(y, Nil)
}
