package stride

import (
	"sort"
	"sync"
)

// psqMarker is one of the five markers a P² sketch maintains: its current
// height estimate, its actual position in the observation stream, the
// idealized position it is drifting toward, and the per-observation step
// of that ideal. Positions are integer-valued but kept as float64, since
// every use is inside the adjustment arithmetic.
type psqMarker struct {
	height float64
	pos    float64
	want   float64
	step   float64
}

// quantileEstimator is a streaming estimate of a single percentile using
// the P² algorithm: O(1) per observation, O(1) retrieval, five markers of
// state instead of the full observation history.
//
// Reference: Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for
// Dynamic Calculation of Quantiles and Histograms Without Storing
// Observations". Communications of the ACM, 28(10), pp. 1076-1085.
//
// Not safe for concurrent use; QuantumOverrunStats guards access.
type quantileEstimator struct {
	prob    float64
	markers [5]psqMarker
	warm    []float64 // sorted; holds the first five observations, nil after graduate
	seen    int
}

func newQuantileEstimator(prob float64) *quantileEstimator {
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	e := &quantileEstimator{prob: prob, warm: make([]float64, 0, 5)}
	for i, s := range [5]float64{0, prob / 2, prob, (1 + prob) / 2, 1} {
		e.markers[i].step = s
	}
	return e
}

// Update folds one observation into the sketch.
func (e *quantileEstimator) Update(x float64) {
	e.seen++

	if e.warm != nil {
		e.insertWarm(x)
		if len(e.warm) == 5 {
			e.graduate()
		}
		return
	}

	cell := e.locate(x)
	for i := cell + 1; i < len(e.markers); i++ {
		e.markers[i].pos++
	}
	for i := range e.markers {
		e.markers[i].want += e.markers[i].step
	}
	for i := 1; i <= 3; i++ {
		e.adjust(i)
	}
}

// insertWarm keeps the warmup buffer sorted as observations arrive, so
// both graduation and the warmup-phase Quantile read it directly without
// a separate sort pass.
func (e *quantileEstimator) insertWarm(x float64) {
	at := sort.SearchFloat64s(e.warm, x)
	e.warm = append(e.warm, 0)
	copy(e.warm[at+1:], e.warm[at:])
	e.warm[at] = x
}

// graduate seeds the five markers from the sorted warmup observations and
// retires the buffer; from here on the sketch alone carries the state.
func (e *quantileEstimator) graduate() {
	for i := range e.markers {
		e.markers[i].height = e.warm[i]
		e.markers[i].pos = float64(i)
	}
	e.markers[0].want = 0
	e.markers[1].want = 2 * e.prob
	e.markers[2].want = 4 * e.prob
	e.markers[3].want = 2 + 2*e.prob
	e.markers[4].want = 4
	e.warm = nil
}

// locate returns the cell k whose marker heights bracket x, extending the
// extreme markers in place when x falls outside them.
func (e *quantileEstimator) locate(x float64) int {
	switch {
	case x < e.markers[0].height:
		e.markers[0].height = x
		return 0
	case x >= e.markers[4].height:
		e.markers[4].height = x
		return 3
	}
	for i := 1; i < 4; i++ {
		if x < e.markers[i].height {
			return i - 1
		}
	}
	return 3
}

// adjust nudges interior marker i one position toward its desired
// position when it has drifted a full step away, re-estimating its height
// with the P² parabolic fit — or the linear fallback when the parabola
// would leave the neighboring heights' bracket.
func (e *quantileEstimator) adjust(i int) {
	m := &e.markers[i]
	prev, next := &e.markers[i-1], &e.markers[i+1]

	drift := m.want - m.pos
	var dir float64
	switch {
	case drift >= 1 && next.pos-m.pos > 1:
		dir = 1
	case drift <= -1 && prev.pos-m.pos < -1:
		dir = -1
	default:
		return
	}

	fit := m.height + dir/(next.pos-prev.pos)*
		((m.pos-prev.pos+dir)*(next.height-m.height)/(next.pos-m.pos)+
			(next.pos-m.pos-dir)*(m.height-prev.height)/(m.pos-prev.pos))

	switch {
	case prev.height < fit && fit < next.height:
		m.height = fit
	case dir > 0:
		m.height += (next.height - m.height) / (next.pos - m.pos)
	default:
		m.height -= (m.height - prev.height) / (m.pos - prev.pos)
	}
	m.pos += dir
}

// Quantile returns the current estimate: the middle marker's height once
// the sketch is seeded, or the nearest-rank value of the sorted warmup
// observations before that.
func (e *quantileEstimator) Quantile() float64 {
	if e.seen == 0 {
		return 0
	}
	if e.warm != nil {
		at := int(float64(e.seen-1) * e.prob)
		if at >= len(e.warm) {
			at = len(e.warm) - 1
		}
		return e.warm[at]
	}
	return e.markers[2].height
}

// Count reports how many observations have been folded in.
func (e *quantileEstimator) Count() int { return e.seen }

// QuantumOverrunStats is a scheduler-latency diagnostic: streaming P50 and
// P99 of how far, in nanoseconds, each thread's quantum ran over
// quantum_ns before being preempted, plus a running mean. Read-only from
// the scheduling decisions' point of view — never consulted by pick_next,
// on_tick, or any other scheduling decision — but written from every
// CPU's on_tick hook, so access is mutex-guarded rather than relying on
// the PerCPU lock discipline that governs everything else in this package
// (each CPU only ever holds its own).
type QuantumOverrunStats struct {
	mu    sync.Mutex
	p50   *quantileEstimator
	p99   *quantileEstimator
	sum   float64
	total int
}

// NewQuantumOverrunStats returns an estimator tracking P50 and P99.
func NewQuantumOverrunStats() *QuantumOverrunStats {
	return &QuantumOverrunStats{
		p50: newQuantileEstimator(0.50),
		p99: newQuantileEstimator(0.99),
	}
}

// Observe records one quantum's overrun (elapsed_in_quantum_ns - quantum_ns
// at the moment of preemption; may be negative-clamped to zero by the
// caller if the tick lands early).
func (s *QuantumOverrunStats) Observe(overrunNS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.sum += overrunNS
	s.p50.Update(overrunNS)
	s.p99.Update(overrunNS)
}

// P50 returns the estimated median overrun in nanoseconds.
func (s *QuantumOverrunStats) P50() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p50.Quantile()
}

// P99 returns the estimated 99th-percentile overrun in nanoseconds.
func (s *QuantumOverrunStats) P99() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p99.Quantile()
}

// Count returns how many observations have been recorded.
func (s *QuantumOverrunStats) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Mean returns the arithmetic mean overrun in nanoseconds.
func (s *QuantumOverrunStats) Mean() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return s.sum / float64(s.total)
}
