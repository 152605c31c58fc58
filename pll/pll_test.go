package pll

import (
	"math/rand"
	"testing"
)

// bitsToIntervals converts a raw bitcell pattern to flux intervals, one
// interval per 1 bit.
func bitsToIntervals(bits []int, bitcellNs uint32) []uint32 {
	var intervals []uint32
	var elapsed uint32
	for _, b := range bits {
		elapsed += bitcellNs
		if b == 1 {
			intervals = append(intervals, elapsed)
			elapsed = 0
		}
	}
	return intervals
}

// decodeAll drains the decoder, returning the bits and the positions
// where a revolution ended.
func decodeAll(d *Decoder) (bits []int, indexes []int) {
	for {
		bit := d.NextBit()
		if bit < 0 {
			return bits, indexes
		}
		bits = append(bits, bit)
		if d.Index() {
			indexes = append(indexes, len(bits))
		}
	}
}

// Encode two MFM bytes 0x44 0xa9 at 500 kbps and decode them back.
func TestExactMultiples(t *testing.T) {
	//       ---4--- ---4--- ---a--- ---9---
	//  MFM: 0 1 0 0 0 1 0 0 1 0 1 0 1 0 0 1
	transitions := []uint64{2000, 6000, 9000, 11000, 13000, 16000}
	expected := []int{0, 1, 0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 1, 0, 0, 1}

	d := NewDecoder(FromTransitions(transitions), 1000, 100)
	bits, indexes := decodeAll(d)

	if len(bits) != len(expected) {
		t.Fatalf("decoded %d bits, expected %d: %v", len(bits), len(expected), bits)
	}
	for i := range expected {
		if bits[i] != expected[i] {
			t.Errorf("bit[%d] = %d, expected %d", i, bits[i], expected[i])
		}
	}
	if len(indexes) != 1 || indexes[0] != 16 {
		t.Errorf("indexes = %v, expected [16]", indexes)
	}
}

func TestRevolutions(t *testing.T) {
	flux := FluxData{
		{2000, 4000, 2000},
		{},
		{3000, 2000},
	}
	d := NewDecoder(flux, 1000, 100)
	bits, indexes := decodeAll(d)

	expected := []int{0, 1, 0, 0, 0, 1, 0, 1, 0, 0, 1, 0, 1}
	if len(bits) != len(expected) {
		t.Fatalf("decoded %v, expected %v", bits, expected)
	}
	for i := range expected {
		if bits[i] != expected[i] {
			t.Errorf("bit[%d] = %d, expected %d", i, bits[i], expected[i])
		}
	}
	if len(indexes) != 2 || indexes[0] != 8 || indexes[1] != 13 {
		t.Errorf("indexes = %v, expected [8 13]", indexes)
	}
	if d.FluxRevs() != 3 || d.FluxCount() != 5 {
		t.Errorf("FluxRevs() = %d, FluxCount() = %d", d.FluxRevs(), d.FluxCount())
	}
}

func TestScale(t *testing.T) {
	// Intervals recorded 5% long decode cleanly when scaled to 95%.
	flux := FluxData{{2100, 4200, 3150, 2100}}
	d := NewDecoder(flux, 1000, 95)
	bits, _ := decodeAll(d)

	expected := []int{0, 1, 0, 0, 0, 1, 0, 0, 1, 0, 1}
	if len(bits) != len(expected) {
		t.Fatalf("decoded %v, expected %v", bits, expected)
	}
	for i := range expected {
		if bits[i] != expected[i] {
			t.Errorf("bit[%d] = %d, expected %d", i, bits[i], expected[i])
		}
	}
}

func TestJitterTolerance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	// Random MFM pattern: 2 to 4 cells between transitions.
	var bits []int
	for len(bits) < 4000 {
		gap := 2 + rng.Intn(3)
		for i := 1; i < gap; i++ {
			bits = append(bits, 0)
		}
		bits = append(bits, 1)
	}

	// Move each transition by up to 15% of a bitcell.
	const cell = 2000
	intervals := bitsToIntervals(bits, cell)
	var carry int64
	for i := range intervals {
		shift := int64((rng.Float64()*2 - 1) * cell * 0.15)
		intervals[i] = uint32(int64(intervals[i]) + shift - carry)
		carry = shift
	}

	d := NewDecoder(FluxData{intervals}, cell, 100)
	got, _ := decodeAll(d)
	if len(got) != len(bits) {
		t.Fatalf("decoded %d bits, expected %d", len(got), len(bits))
	}
	errors := 0
	for i := range bits {
		if got[i] != bits[i] {
			errors++
		}
	}
	if errors != 0 {
		t.Errorf("%d bit errors out of %d", errors, len(bits))
	}
}

func TestSyncLost(t *testing.T) {
	var bits []int
	for i := 0; i < 300; i++ {
		bits = append(bits, 0, 1)
	}
	// A long run without transitions, as a damaged area reads.
	for i := 0; i < 20; i++ {
		bits = append(bits, 0)
	}
	bits = append(bits, 1, 0, 1)

	d := NewDecoder(FluxData{bitsToIntervals(bits, 1000)}, 1000, 100)
	lost := -1
	n := 0
	for {
		bit := d.NextBit()
		if bit < 0 {
			break
		}
		if d.SyncLost() {
			if lost >= 0 {
				t.Errorf("sync lost reported twice, at %d and %d", lost, n)
			}
			lost = n
		}
		n++
	}
	if lost != 620 {
		t.Errorf("sync lost at bit %d, expected 620", lost)
	}
}

func TestSyncLostNeedsLock(t *testing.T) {
	bits := []int{0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1}
	d := NewDecoder(FluxData{bitsToIntervals(bits, 1000)}, 1000, 100)
	for d.NextBit() >= 0 {
		if d.SyncLost() {
			t.Fatalf("sync lost reported before the PLL was locked")
		}
	}
}

func TestNormalise(t *testing.T) {
	flux := FluxData{{80, 160}, {120}}
	n := Normalise(flux, 25)
	if n[0][0] != 2000 || n[0][1] != 4000 || n[1][0] != 3000 {
		t.Errorf("Normalise() = %v", n)
	}
	if flux[0][0] != 80 {
		t.Errorf("Normalise() modified its input")
	}
	if got := n.Duration(0); got != 6000 {
		t.Errorf("Duration(0) = %d, expected 6000", got)
	}
	times := n.Transitions(0)
	if len(times) != 2 || times[0] != 2000 || times[1] != 6000 {
		t.Errorf("Transitions(0) = %v", times)
	}
}

func TestFluxIterator(t *testing.T) {
	it := NewFluxIterator([]uint64{1000, 3000, 4000})
	expected := []uint64{1000, 2000, 1000}
	for i, want := range expected {
		got, ok := it.NextFlux()
		if !ok || got != want {
			t.Errorf("interval %d = %d (%v), expected %d", i, got, ok, want)
		}
	}
	if _, ok := it.NextFlux(); ok || !it.IsDone() {
		t.Errorf("iterator not exhausted")
	}
}

// repeatSource hands out the same interval n times.
type repeatSource struct {
	interval uint64
	n        int
}

func (r *repeatSource) NextFlux() (uint64, bool) {
	if r.n == 0 {
		return 0, false
	}
	r.n--
	return r.interval, true
}

func TestStatePeriodClamp(t *testing.T) {
	tests := []struct {
		name     string
		interval uint64
		min, max float64
	}{
		{"slow drive", 2600, 2000, 2200},
		{"fast drive", 1400, 1800, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st State
			st.Reset(2000)
			src := &repeatSource{interval: tt.interval, n: 500}
			for st.Next(src) >= 0 {
				if st.Period < 1800 || st.Period > 2200 {
					t.Fatalf("period %v outside the 10%% range", st.Period)
				}
			}
			if st.Period < tt.min || st.Period > tt.max {
				t.Errorf("period settled at %v, expected %v..%v", st.Period, tt.min, tt.max)
			}
		})
	}
}

func TestStateLock(t *testing.T) {
	var st State
	st.Reset(2000)

	// A transition every other cell keeps the loop locked.
	src := &repeatSource{interval: 4000, n: 20}
	for st.Next(src) >= 0 {
		if !st.InSync() {
			t.Fatalf("lost lock on regular flux")
		}
	}

	// Five empty cells are more than the lock window allows.
	st.Reset(2000)
	src = &repeatSource{interval: 12000, n: 1}
	for i := 0; i < 5; i++ {
		if bit := st.Next(src); bit != 0 {
			t.Fatalf("cell %d = %d, expected 0", i, bit)
		}
	}
	if st.InSync() {
		t.Errorf("InSync() after %d clocked zeros", st.ClockedZeros)
	}
}
