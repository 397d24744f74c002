package vm

import (
	"fmt"
)

// DefaultProcHeap is the arena size of a new process, in words.
const DefaultProcHeap = 4096

// Memory resolves the heap addresses carried by boxed and cons terms.
// Term algorithms (compare, format, copy) take the memory explicitly since a
// term alone does not say which arena it lives in.
type Memory interface {
	Word(a Addr) Term
}

// ---------------------------------------------------------------------------
// Heap: combined stack and heap arena of one process
// ---------------------------------------------------------------------------

// Heap is a single word arena split into two regions growing toward each
// other. The heap region starts at word 1 and grows up; the stack region
// starts at the end and grows down. Word 0 is never handed out so no object
// address is zero.
//
//	[0][heap objects ... htop)   free   [stop ... stack words]
//
// The stack top is the lowest used stack word and holds the saved
// continuation pointer of the current frame. Y register n lives at stop+1+n.
type Heap struct {
	data      []Term
	htop      int // next free heap word
	stop      int // lowest used stack word, len(data) when the stack is empty
	collector Collector
}

// NewHeap creates an arena of the given size in words.
func NewHeap(words int) *Heap {
	if words < 2 {
		words = 2
	}
	return &Heap{
		data: make([]Term, words),
		htop: 1,
		stop: words,
	}
}

// SetCollector installs the hook EnsureSize calls when space runs out.
func (h *Heap) SetCollector(c Collector) {
	h.collector = c
}

// Capacity returns the arena size in words.
func (h *Heap) Capacity() int {
	return len(h.data)
}

// HeapUsed returns the number of words allocated in the heap region.
func (h *Heap) HeapUsed() int {
	return h.htop - 1
}

// StackUsed returns the number of words on the stack.
func (h *Heap) StackUsed() int {
	return len(h.data) - h.stop
}

// Free returns the number of words between heap top and stack top.
func (h *Heap) Free() int {
	return h.stop - h.htop
}

// HeapTop returns the address of the next free heap word.
func (h *Heap) HeapTop() Addr {
	return AddrOf(h.htop)
}

// StackTop returns the address of the topmost stack word.
func (h *Heap) StackTop() Addr {
	return AddrOf(h.stop)
}

// Word reads the heap word at a. Panics outside the allocated heap region.
func (h *Heap) Word(a Addr) Term {
	i := a.Index()
	if i <= 0 || i >= h.htop || !a.IsAligned() {
		panic(fmt.Sprintf("heap: read outside heap region at 0x%x", uint64(a)))
	}
	return h.data[i]
}

// SetWord overwrites the heap word at a.
func (h *Heap) SetWord(a Addr, t Term) {
	i := a.Index()
	if i <= 0 || i >= h.htop || !a.IsAligned() {
		panic(fmt.Sprintf("heap: write outside heap region at 0x%x", uint64(a)))
	}
	h.data[i] = t
}

// ---------------------------------------------------------------------------
// Heap region
// ---------------------------------------------------------------------------

// HeapHasAvailable reports whether at least n words are free between the
// heap top and the stack top.
func (h *Heap) HeapHasAvailable(n int) bool {
	return n >= 0 && h.stop-h.htop >= n
}

// Allocate reserves n heap words and returns the address of the first one.
// The caller checks capacity first (HeapHasAvailable or EnsureSize); a
// failed allocation is reported, never retried here. Words are zeroed
// (filled with the non-value) if zero is set, otherwise left as they were.
func (h *Heap) Allocate(n int, zero bool) (Addr, error) {
	if !h.HeapHasAvailable(n) {
		return 0, heapFull("heap.Allocate", n, 0)
	}
	a := AddrOf(h.htop)
	if zero {
		clear(h.data[h.htop : h.htop+n])
	}
	h.htop += n
	return a, nil
}

// EnsureSize makes sure n heap words are available before a sequence of
// allocations. This is the only place the collector runs; live is the number
// of leading X registers it must treat as roots. Failure is fatal for the
// process.
func (h *Heap) EnsureSize(n, live int) error {
	if h.HeapHasAvailable(n) {
		return nil
	}
	if h.collector == nil {
		return heapFull("heap.EnsureSize", n, live)
	}
	if err := h.collector.Collect(h, n, live); err != nil {
		return fmt.Errorf("heap.EnsureSize: collect: %w", err)
	}
	if !h.HeapHasAvailable(n) {
		return heapFull("heap.EnsureSize/after-collect", n, live)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stack region
// ---------------------------------------------------------------------------

// StackHave reports whether the stack can grow by n words.
func (h *Heap) StackHave(n int) bool {
	return n >= 0 && h.stop-h.htop >= n
}

// StackAlloc grows the stack by n words, zero filling them if asked.
func (h *Heap) StackAlloc(n int, zero bool) error {
	if !h.StackHave(n) {
		return stackFull("heap.StackAlloc", n, 0)
	}
	h.stackAllocUnchecked(n, zero)
	return nil
}

func (h *Heap) stackAllocUnchecked(n int, zero bool) {
	h.stop -= n
	if zero {
		clear(h.data[h.stop : h.stop+n])
	}
}

// StackPush pushes one word on the stack.
func (h *Heap) StackPush(t Term) error {
	if !h.StackHave(1) {
		return stackFull("heap.StackPush", 1, 0)
	}
	h.stackPushUnchecked(t)
	return nil
}

func (h *Heap) stackPushUnchecked(t Term) {
	h.stop--
	h.data[h.stop] = t
}

// StackDeallocate pops the topmost word (the saved CP by convention), then
// drops n more words below it. Panics on underflow; frames are assumed to be
// well formed.
func (h *Heap) StackDeallocate(n int) Term {
	if n < 0 || h.stop+n+1 > len(h.data) {
		panic(fmt.Sprintf("heap: stack underflow dropping %d words of %d", n+1, h.StackUsed()))
	}
	cp := h.data[h.stop]
	h.stop += n + 1
	return cp
}

// StackPeek returns stack word i counted from the top (0 is the top).
func (h *Heap) StackPeek(i int) (Term, error) {
	slot := h.stop + i
	if i < 0 || slot >= len(h.data) {
		return NonValue, fmt.Errorf("%w: peek %d of %d", ErrStackIndex, i, h.StackUsed())
	}
	return h.data[slot], nil
}

func (h *Heap) ySlot(i int) (int, error) {
	slot := h.stop + 1 + i
	if i < 0 || slot >= len(h.data) {
		return 0, fmt.Errorf("%w: y%d with %d stack words", ErrStackIndex, i, h.StackUsed())
	}
	return slot, nil
}

// SetY overwrites frame slot i (Y register i).
func (h *Heap) SetY(i int, t Term) error {
	slot, err := h.ySlot(i)
	if err != nil {
		return err
	}
	h.data[slot] = t
	return nil
}

// GetY reads frame slot i (Y register i).
func (h *Heap) GetY(i int) (Term, error) {
	slot, err := h.ySlot(i)
	if err != nil {
		return NonValue, err
	}
	return h.data[slot], nil
}

// cutStack drops every stack word above slot so that slot becomes the top.
func (h *Heap) cutStack(slot int) {
	if slot < h.stop || slot > len(h.data) {
		panic("heap: cut outside the stack")
	}
	h.stop = slot
}

// ---------------------------------------------------------------------------
// Growth and inspection
// ---------------------------------------------------------------------------

// Grow enlarges the arena to words. Heap addresses are unchanged; the stack
// region moves to the new end, which keeps Y slots valid because they are
// addressed relative to the stack top.
func (h *Heap) Grow(words int) error {
	if words <= len(h.data) {
		return nil
	}
	data := make([]Term, words)
	copy(data, h.data[:h.htop])
	stackWords := h.StackUsed()
	copy(data[words-stackWords:], h.data[h.stop:])
	h.data = data
	h.stop = words - stackWords
	return nil
}

// Walk visits the heap region object by object. A header word is reported
// with its address and the walk skips the header's arity; any other word
// (cons cell halves) is reported on its own. A non-nil error from fn stops
// the walk and is returned.
func (h *Heap) Walk(fn func(a Addr, w Term) error) error {
	for i := 1; i < h.htop; {
		w := h.data[i]
		if err := fn(AddrOf(i), w); err != nil {
			return err
		}
		if w.IsHeader() {
			i += 1 + w.HeaderArity()
		} else {
			i++
		}
	}
	return nil
}

// HeapWords returns a copy of the heap region, word 0 included.
func (h *Heap) HeapWords() []Term {
	out := make([]Term, h.htop)
	copy(out, h.data[:h.htop])
	return out
}

// StackWords returns a copy of the stack region, top first.
func (h *Heap) StackWords() []Term {
	out := make([]Term, h.StackUsed())
	copy(out, h.data[h.stop:])
	return out
}

func (h *Heap) String() string {
	return fmt.Sprintf("Heap{cap=%d heap=%d stack=%d free=%d}", h.Capacity(), h.HeapUsed(), h.StackUsed(), h.Free())
}
