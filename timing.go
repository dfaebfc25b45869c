package framebridge

import (
	"sync"
	"time"
)

// TickStats summarizes the observed durations of one worker loop's ticks.
// Quantiles are streaming estimates, not exact order statistics.
type TickStats struct {
	Count uint64
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// tickTimer aggregates tick durations for one worker loop. Observations
// arrive from the loop goroutine; snapshots may be taken from any
// goroutine, so a mutex guards the estimators. Once per tick, the cost is
// noise.
type tickTimer struct {
	mu    sync.Mutex
	p50   quantileEstimator
	p99   quantileEstimator
	sum   float64
	max   float64
	count uint64
}

func newTickTimer() *tickTimer {
	t := &tickTimer{}
	t.p50.init(0.50)
	t.p99.init(0.99)
	return t
}

func (t *tickTimer) observe(d time.Duration) {
	x := float64(d)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.sum += x
	if x > t.max {
		t.max = x
	}
	t.p50.update(x)
	t.p99.update(x)
}

func (t *tickTimer) snapshot() TickStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TickStats{
		Count: t.count,
		P50:   time.Duration(t.p50.quantile()),
		P99:   time.Duration(t.p99.quantile()),
		Max:   time.Duration(t.max),
	}
	if t.count > 0 {
		s.Mean = time.Duration(t.sum / float64(t.count))
	}
	return s
}

// quantileEstimator is a single-quantile P-Square estimator: O(1) update,
// O(1) retrieval, five markers of state, no stored observations.
//
// Reference:
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic
// Calculation of Quantiles and Histograms Without Storing Observations".
// Communications of the ACM, 28(10), pp. 1076-1085.
//
// Thread Safety: NOT thread-safe. Caller must ensure synchronization.
type quantileEstimator struct {
	// p is the target quantile in [0, 1]
	p float64

	// q holds the 5 marker heights, n their actual positions, np the
	// desired positions, and dn the desired-position increments
	q  [5]float64
	n  [5]int
	np [5]float64
	dn [5]float64

	// count is the total observations; the first 5 are buffered in seed
	// until the markers can be initialized
	count int
	seed  [5]float64
}

func (ps *quantileEstimator) init(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	*ps = quantileEstimator{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// update adds one observation.
func (ps *quantileEstimator) update(x float64) {
	ps.count++

	if ps.count <= 5 {
		ps.seed[ps.count-1] = x
		if ps.count == 5 {
			ps.seedMarkers()
		}
		return
	}

	// locate the cell k with q[k] <= x < q[k+1], extending the extremes
	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
		k = 0
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	// nudge interior markers toward their desired positions
	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := ps.parabolic(i, sign)
			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

// seedMarkers initializes the markers from the first 5 observations.
func (ps *quantileEstimator) seedMarkers() {
	for i := 1; i < 5; i++ {
		key := ps.seed[i]
		j := i - 1
		for j >= 0 && ps.seed[j] > key {
			ps.seed[j+1] = ps.seed[j]
			j--
		}
		ps.seed[j+1] = key
	}
	for i := 0; i < 5; i++ {
		ps.q[i] = ps.seed[i]
		ps.n[i] = i
	}
	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
}

// parabolic is the P-Square parabolic marker adjustment.
func (ps *quantileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(ps.n[i])
	niPrev := float64(ps.n[i-1])
	niNext := float64(ps.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)

	return ps.q[i] + term1*(term2+term3)
}

// linear is the P-Square linear marker adjustment fallback.
func (ps *quantileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

// quantile returns the current estimate.
func (ps *quantileEstimator) quantile() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		// too few observations for markers; sort the seed and index it
		var sorted [5]float64
		copy(sorted[:], ps.seed[:ps.count])
		for i := 1; i < ps.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(ps.count-1) * ps.p)
		if index >= ps.count {
			index = ps.count - 1
		}
		return sorted[index]
	}
	// the middle marker tracks the target quantile
	return ps.q[2]
}
