// Package streamproc implements the windowed stream processors that consume
// the streaming engine and materialise aggregates into the feature store:
// Transaction Velocity, Risk Signal Aggregator, and Feature Materialization.
// Each processor polls its own consumer group roughly once a second,
// following the poll-loop idiom in the teacher's cmd/consumer/main.go.
package streamproc

import "sync"

// Aggregate is the running {count, sum, min, max, avg} for one window slot.
type Aggregate struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

func (a *Aggregate) add(v float64) {
	if a.Count == 0 {
		a.Min, a.Max = v, v
	} else {
		if v < a.Min {
			a.Min = v
		}
		if v > a.Max {
			a.Max = v
		}
	}
	a.Count++
	a.Sum += v
}

// Avg is computed on read rather than kept running, so a zero-value
// Aggregate reports 0 instead of NaN.
func (a Aggregate) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

type windowSlot struct {
	start, end int64 // epoch ms, [start, end)
	agg        Aggregate
}

// WindowedAggregator supports both tumbling (slideMs == windowMs) and
// sliding (slideMs < windowMs) windows over per-key numeric values.
type WindowedAggregator struct {
	mu        sync.Mutex
	windowMs  int64
	slideMs   int64
	byKey     map[string][]*windowSlot
}

func NewWindowedAggregator(windowMs, slideMs int64) *WindowedAggregator {
	if slideMs <= 0 || slideMs > windowMs {
		slideMs = windowMs
	}
	return &WindowedAggregator{windowMs: windowMs, slideMs: slideMs, byKey: make(map[string][]*windowSlot)}
}

// alignDown floors ts to the nearest multiple of step.
func alignDown(ts, step int64) int64 {
	if ts >= 0 {
		return (ts / step) * step
	}
	return ((ts - step + 1) / step) * step
}

// Add records value at tsMs into every window slot whose [start, start+window)
// contains tsMs. ts == start+window-1 counts in the window; ts == start+window
// starts the next slot — guaranteed because alignDown is a strict floor.
func (w *WindowedAggregator) Add(key string, value float64, tsMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slots := w.byKey[key]
	for start := alignDown(tsMs, w.slideMs); start+w.windowMs > tsMs && start <= tsMs; start -= w.slideMs {
		slot := findOrCreateSlot(&slots, start, start+w.windowMs)
		slot.agg.add(value)
	}
	w.byKey[key] = slots
}

func findOrCreateSlot(slots *[]*windowSlot, start, end int64) *windowSlot {
	for _, s := range *slots {
		if s.start == start {
			return s
		}
	}
	s := &windowSlot{start: start, end: end}
	*slots = append(*slots, s)
	return s
}

// Current returns the aggregate for the slot covering tsMs, or the zero
// Aggregate if no slot exists yet.
func (w *WindowedAggregator) Current(key string, tsMs int64) Aggregate {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := alignDown(tsMs, w.slideMs)
	for _, s := range w.byKey[key] {
		if s.start == start {
			return s.agg
		}
	}
	return Aggregate{}
}

// Cleanup drops window slots whose end predates nowMs-window, bounding
// memory by active-key x windows-per-key.
func (w *WindowedAggregator) Cleanup(nowMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := nowMs - w.windowMs
	for key, slots := range w.byKey {
		kept := slots[:0]
		for _, s := range slots {
			if s.end >= cutoff {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(w.byKey, key)
		} else {
			w.byKey[key] = kept
		}
	}
}
