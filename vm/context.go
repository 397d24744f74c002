package vm

import "fmt"

// Reduction accounting. Every instruction fetch costs FetchOpcodeCost; when
// the budget reaches zero the next dispatch attempt yields.
const (
	DefaultReductions = 200
	FetchOpcodeCost   = 1
)

// Context is the execution state of one process: instruction pointer,
// continuation pointer, the X register file and the reduction budget.
// Y registers live in the stack region of the process heap, so a handler
// that touches both gets the Context and the Heap as separate arguments.
type Context struct {
	IP CodePtr
	CP CodePtr
	X  [MaxXRegs]Term

	// Live is the number of leading X registers holding roots, as declared
	// by the last allocating instruction.
	Live int

	Reductions int
}

// ResetReductions refills the budget at the start of a timeslice.
func (c *Context) ResetReductions(budget int) {
	if budget <= 0 {
		budget = DefaultReductions
	}
	c.Reductions = budget
}

// SetArgs places args in X0..Xn-1.
func (c *Context) SetArgs(args []Term) error {
	if len(args) > MaxXRegs {
		return fmt.Errorf("%w: %d arguments exceed %d registers", ErrBadArity, len(args), MaxXRegs)
	}
	copy(c.X[:], args)
	c.Live = len(args)
	return nil
}

func (c *Context) String() string {
	return fmt.Sprintf("Context{IP=%s CP=%s live=%d reds=%d}", c.IP, c.CP, c.Live, c.Reductions)
}
