package pll

// Transitions the PLL must stay locked for before a loss of lock is
// reported as lost sync.
const syncLockedTransitions = 256

// Decoder turns revolutions of flux intervals into a bitstream, one bit
// cell at a time.
type Decoder struct {
	flux  FluxData
	scale uint64 // percentage applied to every interval
	pll   State

	rev       int  // revolution of the last interval handed to the PLL
	pos       int  // next interval within rev
	endOfRev  bool // last interval handed out was the final one of its revolution
	indexed   int  // revolutions whose end has been flagged
	index     bool
	syncLost  bool
	goodTrans int // consecutive in-sync transitions
}

// NewDecoder returns a decoder for nanosecond intervals. A scale of 95
// simulates a drive running 5% fast.
func NewDecoder(flux FluxData, bitcellNs int, scalePct int) *Decoder {
	if scalePct <= 0 {
		scalePct = 100
	}
	d := &Decoder{flux: flux, scale: uint64(scalePct)}
	d.pll.Reset(float64(bitcellNs))
	return d
}

// NextFlux feeds the PLL, moving through the revolutions in order.
func (d *Decoder) NextFlux() (uint64, bool) {
	for d.rev < len(d.flux) && d.pos >= len(d.flux[d.rev]) {
		d.rev++
		d.pos = 0
	}
	if d.rev >= len(d.flux) {
		return 0, false
	}

	v := uint64(d.flux[d.rev][d.pos]) * d.scale / 100
	d.pos++
	d.endOfRev = d.pos == len(d.flux[d.rev])
	return v, true
}

// NextBit returns the next bit cell, or -1 when the flux is exhausted.
func (d *Decoder) NextBit() int {
	d.index = false
	d.syncLost = false

	zeros := d.pll.ClockedZeros
	bit := d.pll.Next(d)

	if bit == 1 {
		if zeros > maxClockedZeros {
			d.syncLost = d.goodTrans >= syncLockedTransitions
			d.goodTrans = 0
		} else {
			d.goodTrans++
		}

		// The transition closing a revolution marks the index.
		if d.endOfRev && d.indexed <= d.rev {
			d.index = true
			d.indexed = d.rev + 1
		}
	}
	return bit
}

// Index reports whether the last bit completed a revolution.
func (d *Decoder) Index() bool {
	return d.index
}

// SyncLost reports whether the PLL lost lock on the last bit.
func (d *Decoder) SyncLost() bool {
	return d.syncLost
}

// FluxRevs returns the number of revolutions being decoded.
func (d *Decoder) FluxRevs() int {
	return d.flux.Revs()
}

// FluxCount returns the number of intervals being decoded.
func (d *Decoder) FluxCount() int {
	return d.flux.Count()
}
