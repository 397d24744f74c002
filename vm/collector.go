package vm

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("beamrt.vm")

// Collector is invoked by Heap.EnsureSize when fewer than need words are
// free. live is the number of leading X registers that are roots. A collector
// either makes room or returns an error, after which the allocation is
// treated as fatal for the process.
type Collector interface {
	Collect(h *Heap, need, live int) error
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(h *Heap, need, live int) error

func (f CollectorFunc) Collect(h *Heap, need, live int) error {
	return f(h, need, live)
}

// GrowingCollector makes room by enlarging the arena, doubling until need
// words fit. It never reclaims objects. MaxWords caps the arena size; zero
// means no cap.
type GrowingCollector struct {
	MaxWords int
}

func (c GrowingCollector) Collect(h *Heap, need, live int) error {
	used := h.Capacity() - h.Free()
	want := h.Capacity()
	for want-used < need {
		want *= 2
	}
	if c.MaxWords > 0 && want > c.MaxWords {
		want = c.MaxWords
	}
	if want-used < need {
		log.Warningf("collector: cannot grow heap past %d words (need %d, used %d)", c.MaxWords, need, used)
		return heapFull("collector.Grow", need, live)
	}
	log.Debugf("collector: growing heap %d -> %d words (live=%d)", h.Capacity(), want, live)
	return h.Grow(want)
}
