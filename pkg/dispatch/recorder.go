package dispatch

import (
	"github.com/mfprior/mfsched/pkg/searchspace"
	"github.com/mfprior/mfsched/pkg/trial"
)

// Entry describes one finished evaluation. Index is the dispatch order, which
// is deterministic for a fixed seed; entries reach the recorder sorted by it
// no matter how workers interleave.
type Entry struct {
	Index    int                `json:"index"`
	Trial    trial.ID           `json:"trial"`
	Config   searchspace.Config `json:"config"`
	Fidelity float64            `json:"fidelity"`
	Loss     float64            `json:"loss"`
	// Cost is the budget debited for this evaluation: the fidelity minus the
	// trial's previously reached fidelity.
	Cost    float64 `json:"cost"`
	Failure string  `json:"failure,omitempty"`
}

// TrajectoryRecorder receives finished evaluations in dispatch order.
type TrajectoryRecorder interface {
	Record(Entry) error
	Close() error
}

// NopRecorder discards every entry.
type NopRecorder struct{}

// Record implements TrajectoryRecorder.
func (NopRecorder) Record(Entry) error { return nil }

// Close implements TrajectoryRecorder.
func (NopRecorder) Close() error { return nil }

// orderedFlush buffers out-of-order completions and releases them to the
// recorder strictly by dispatch index.
type orderedFlush struct {
	recorder TrajectoryRecorder
	buffered map[int]Entry
	next     int
	err      error
}

func newOrderedFlush(recorder TrajectoryRecorder) *orderedFlush {
	return &orderedFlush{recorder: recorder, buffered: map[int]Entry{}}
}

func (f *orderedFlush) add(e Entry) {
	f.buffered[e.Index] = e
	for {
		e, ok := f.buffered[f.next]
		if !ok {
			return
		}
		delete(f.buffered, f.next)
		f.next++
		if f.err == nil {
			f.err = f.recorder.Record(e)
		}
	}
}

func (f *orderedFlush) close() error {
	// Dispatched indices always finish, so the buffer is empty here.
	if f.err != nil {
		return f.err
	}
	return f.recorder.Close()
}
