package builder

import (
	"math/rand"

	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
)

// PrecompNs is the write precompensation for double density cells.
// Higher rates scale it down with the cell width.
const PrecompNs = 240

// FluxBuilder converts raw cells into flux reversal intervals in
// nanoseconds, one revolution per build.
type FluxBuilder struct {
	*TrackBuilder

	// Precomp shifts a reversal whose neighbour two cells away on one
	// side only would otherwise pull it on read-back.
	Precomp int

	ch        geom.CylHead
	bitcellNs int
	rng       *rand.Rand

	pending   []bool  // cells not yet converted
	prev      [2]bool // the two cells before pending[0]
	sinceLast int     // ns from the last reversal to the end of the last converted cell
	lastAdj   int     // precompensation applied to the last reversal
	flux      []uint32
}

// NewFluxBuilder returns a flux builder for one track. Weak blocks are
// seeded from the track position, so a build is reproducible.
func NewFluxBuilder(ch geom.CylHead, rate geom.DataRate, enc geom.Encoding) *FluxBuilder {
	cell := rate.BitcellNs()
	b := &FluxBuilder{
		Precomp:   PrecompNs * cell / geom.DataRate250K.BitcellNs(),
		ch:        ch,
		bitcellNs: cell,
		rng:       rand.New(rand.NewSource(int64(ch.AmigaTrack()))),
	}
	b.TrackBuilder = NewTrackBuilder(rate, enc, b)
	return b
}

// AddRawBit queues one cell.
func (b *FluxBuilder) AddRawBit(one bool) {
	b.pending = append(b.pending, one)
}

func (b *FluxBuilder) cellAt(i int) bool {
	switch {
	case i >= 0 && i < len(b.pending):
		return b.pending[i]
	case i == -1:
		return b.prev[1]
	case i == -2:
		return b.prev[0]
	}
	return false
}

// flush converts the queued cells. Cells past the end of the queue are
// taken as empty.
func (b *FluxBuilder) flush() {
	for i, one := range b.pending {
		b.sinceLast += b.bitcellNs
		if !one {
			continue
		}

		adj := 0
		before, after := b.cellAt(i-2), b.cellAt(i+2)
		switch {
		case before && !after:
			adj = -b.Precomp
		case after && !before:
			adj = b.Precomp
		}

		b.flux = append(b.flux, uint32(b.sinceLast+adj-b.lastAdj))
		b.sinceLast = 0
		b.lastAdj = adj
	}

	if n := len(b.pending); n > 0 {
		b.prev = [2]bool{b.cellAt(n - 2), b.cellAt(n - 1)}
	}
	b.pending = b.pending[:0]
}

// AddWeakBlock emits length bytes worth of reversals at random spacing
// around one and a half cells, which no two reads decode alike.
func (b *FluxBuilder) AddWeakBlock(length int) {
	b.flush()

	cellsPerByte := 16
	if b.Encoding() == geom.EncodingFM {
		cellsPerByte = 32
	}
	cells := length * cellsPerByte
	total := cells * b.bitcellNs

	t := 0
	for {
		iv := b.bitcellNs*3/2 + b.rng.Intn(b.bitcellNs/2+1) - b.bitcellNs/4
		if t+iv > total {
			break
		}
		if t == 0 {
			b.flux = append(b.flux, uint32(b.sinceLast+iv-b.lastAdj))
		} else {
			b.flux = append(b.flux, uint32(iv))
		}
		t += iv
	}

	if t == 0 {
		b.sinceLast += total
	} else {
		b.sinceLast = total - t
		b.lastAdj = 0
	}
	b.prev = [2]bool{}
	b.cells += cells
	b.lastBit = false
}

// FluxData returns the intervals built so far as one revolution.
func (b *FluxBuilder) FluxData() pll.FluxData {
	b.flush()
	rev := make([]uint32, len(b.flux))
	copy(rev, b.flux)
	return pll.FluxData{rev}
}
