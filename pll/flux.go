package pll

import "math"

// FluxData holds one or more revolutions of flux reversal intervals.
type FluxData [][]uint32

// Revs returns the number of revolutions.
func (f FluxData) Revs() int {
	return len(f)
}

// Count returns the total number of intervals across all revolutions.
func (f FluxData) Count() int {
	n := 0
	for _, rev := range f {
		n += len(rev)
	}
	return n
}

// Duration returns the sum of the intervals in one revolution.
func (f FluxData) Duration(rev int) uint64 {
	var total uint64
	for _, v := range f[rev] {
		total += uint64(v)
	}
	return total
}

// Transitions converts one revolution to absolute transition times.
func (f FluxData) Transitions(rev int) []uint64 {
	times := make([]uint64, len(f[rev]))
	var now uint64
	for i, v := range f[rev] {
		now += uint64(v)
		times[i] = now
	}
	return times
}

// FromTransitions builds a single revolution from absolute transition times.
func FromTransitions(transitions []uint64) FluxData {
	it := NewFluxIterator(transitions)
	rev := make([]uint32, 0, len(transitions))
	for {
		interval, ok := it.NextFlux()
		if !ok {
			break
		}
		rev = append(rev, uint32(interval))
	}
	return FluxData{rev}
}

// Normalise converts intervals counted in ticks of tickNs nanoseconds
// into nanoseconds.
func Normalise(flux FluxData, tickNs float64) FluxData {
	out := make(FluxData, len(flux))
	for r, rev := range flux {
		out[r] = make([]uint32, len(rev))
		for i, v := range rev {
			out[r][i] = uint32(math.Round(float64(v) * tickNs))
		}
	}
	return out
}
