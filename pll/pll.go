package pll

// Clock recovery in the style of the SuperCard Pro firmware: the bit
// cell period follows the phase error of each transition and is held
// within clockRangePct of the nominal width.
const (
	clockRangePct   = 10
	periodAdjustPct = 5
	phaseAdjustPct  = 60

	// Longest run of clocked zeros the loop is still locked across.
	maxClockedZeros = 3
)

// FluxSource provides flux intervals in nanoseconds. The second result
// is false once no transitions remain.
type FluxSource interface {
	NextFlux() (uint64, bool)
}

// FluxIterator turns absolute transition times into intervals.
type FluxIterator struct {
	transitions []uint64
	index       int
	last        uint64
}

func NewFluxIterator(transitions []uint64) *FluxIterator {
	return &FluxIterator{transitions: transitions}
}

func (fi *FluxIterator) NextFlux() (uint64, bool) {
	if fi.IsDone() {
		return 0, false
	}
	t := fi.transitions[fi.index]
	interval := t - fi.last
	fi.last = t
	fi.index++
	return interval, true
}

// IsDone reports whether every transition has been handed out.
func (fi *FluxIterator) IsDone() bool {
	return fi.index >= len(fi.transitions)
}

// State is the clock recovery loop. All times are in nanoseconds.
type State struct {
	Nominal      float64 // bit cell width the period is held around
	Period       float64 // current bit cell width
	Flux         float64 // time since the last clock edge
	Time         float64 // total time clocked
	ClockedZeros int     // cells since the last transition
}

// Reset starts the loop over at a nominal bit cell width.
func (st *State) Reset(bitcellNs float64) {
	*st = State{Nominal: bitcellNs, Period: bitcellNs}
}

// InSync reports whether the last transition arrived inside the lock window.
func (st *State) InSync() bool {
	return st.ClockedZeros <= maxClockedZeros
}

// Next clocks out one bit cell: 1 for a transition, 0 for a clocked zero
// and -1 once src runs dry.
func (st *State) Next(src FluxSource) int {
	for st.Flux < st.Period/2 {
		interval, ok := src.NextFlux()
		if !ok {
			return -1
		}
		st.Flux += float64(interval)
	}

	st.Time += st.Period
	st.Flux -= st.Period
	if st.Flux >= st.Period/2 {
		st.ClockedZeros++
		return 0
	}

	// Locked, the period follows the phase error. Unlocked, it drifts
	// back to nominal.
	if st.InSync() {
		st.Period += st.Flux * periodAdjustPct / 100
	} else {
		st.Period += (st.Nominal - st.Period) * periodAdjustPct / 100
	}
	st.Period = min(max(st.Period, st.Nominal*(100-clockRangePct)/100), st.Nominal*(100+clockRangePct)/100)

	// Pull the clock edge part of the way onto the transition.
	flux := st.Flux * (100 - phaseAdjustPct) / 100
	st.Time += st.Flux - flux
	st.Flux = flux

	st.ClockedZeros = 0
	return 1
}
