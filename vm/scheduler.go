package vm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Scheduler: run queues and worker pool
// ---------------------------------------------------------------------------

// lowPriorityEvery is how many normal picks may pass before a low priority
// process gets a turn.
const lowPriorityEvery = 8

// Scheduler multiplexes runnable processes onto a fixed pool of workers.
// Max and high priority queues are always served first; low priority
// processes get one pick after every lowPriorityEvery normal ones.
type Scheduler struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queues      [numPriorities][]*Process
	normalPicks int
	stopped     bool
}

func newScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue makes p eligible to run. A process already queued is left alone.
func (s *Scheduler) Enqueue(p *Process) {
	if !p.queued.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.queues[p.priority] = append(s.queues[p.priority], p)
	s.mu.Unlock()
	s.cond.Signal()
}

// Len returns the number of queued processes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// pickLocked removes the next process to run, or returns nil.
func (s *Scheduler) pickLocked() *Process {
	for _, prio := range []Priority{PriorityMax, PriorityHigh} {
		if p := s.popLocked(prio); p != nil {
			return p
		}
	}
	if s.normalPicks >= lowPriorityEvery || len(s.queues[PriorityNormal]) == 0 {
		if p := s.popLocked(PriorityLow); p != nil {
			s.normalPicks = 0
			return p
		}
	}
	if p := s.popLocked(PriorityNormal); p != nil {
		s.normalPicks++
		return p
	}
	return nil
}

func (s *Scheduler) popLocked(prio Priority) *Process {
	q := s.queues[prio]
	if len(q) == 0 {
		return nil
	}
	p := q[0]
	q[0] = nil
	s.queues[prio] = q[1:]
	return p
}

// next blocks until a process is available or the scheduler stops.
func (s *Scheduler) next() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return nil
		}
		if p := s.pickLocked(); p != nil {
			p.queued.Store(false)
			return p
		}
		s.cond.Wait()
	}
}

// Stop wakes every worker and makes them return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// reset clears a previous Stop so Run can be called again.
func (s *Scheduler) reset() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Run starts workers and blocks until Stop is called or ctx is done.
func (s *Scheduler) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			return s.work(w)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Scheduler) work(id int) error {
	log.Debugf("scheduler: worker %d started", id)
	for {
		p := s.next()
		if p == nil {
			log.Debugf("scheduler: worker %d stopped", id)
			return nil
		}
		switch p.RunSlice() {
		case SliceYield:
			s.Enqueue(p)
		case SliceWait, SliceExit, SliceNone:
			// Waiting processes are requeued by delivery. Exits are reported
			// by the process itself.
		}
	}
}
