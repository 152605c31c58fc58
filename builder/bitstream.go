package builder

import (
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
)

// BitstreamBuilder collects raw cells in a BitBuffer.
type BitstreamBuilder struct {
	*TrackBuilder
	buf *bitbuf.BitBuffer
}

// NewBitstreamBuilder returns a builder producing a one-revolution bitstream.
func NewBitstreamBuilder(rate geom.DataRate, enc geom.Encoding) *BitstreamBuilder {
	b := &BitstreamBuilder{buf: bitbuf.New(rate, enc, 1)}
	b.TrackBuilder = NewTrackBuilder(rate, enc, b)
	return b
}

// AddRawBit appends one cell.
func (b *BitstreamBuilder) AddRawBit(one bool) {
	b.buf.Add(one)
}

// Buffer returns a copy of the bitstream built so far, positioned at
// its start.
func (b *BitstreamBuilder) Buffer() *bitbuf.BitBuffer {
	out := bitbuf.FromBytes(b.DataRate, b.buf.Data(), b.buf.Size())
	out.Encoding = b.Encoding()
	return out
}
