// Package bitbuf holds raw bitstreams captured from a floppy track, as
// recovered by the flux decoder or loaded from a bit-capture dump.
package bitbuf

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/geom"
)

// BitBuffer is a growable bit-addressable buffer. Reads wrap to the
// start after the last bit, which callers observe with Wrapped.
// Bits are packed most significant bit first within each byte.
type BitBuffer struct {
	DataRate geom.DataRate
	Encoding geom.Encoding

	data       []byte
	bitsize    int
	bitpos     int
	wrapped    bool
	indexes    []int // bit offsets of revolution boundaries
	syncLosses []int // bit offsets where the decoder lost lock

	log hclog.Logger
}

// BitSource produces a stream of bits with revolution and sync markers.
// pll.Decoder is the usual implementation.
type BitSource interface {
	NextBit() int
	Index() bool
	SyncLost() bool
	FluxRevs() int
	FluxCount() int
}

const minBytes = 64

// estimateBytes sizes a buffer at double the data rate for the given number
// of revolutions at 300rpm, plus 20%.
func estimateBytes(rate geom.DataRate, revs int) int {
	bits := rate.BitsPerSecond() * revs * 60 / 300 * 2 * 120 / 100
	n := (bits + 7) / 8
	if n < minBytes {
		n = minBytes
	}
	return n
}

// New returns an empty buffer sized for the given number of revolutions.
func New(rate geom.DataRate, enc geom.Encoding, revs int) *BitBuffer {
	if revs < 1 {
		revs = 1
	}
	return &BitBuffer{
		DataRate: rate,
		Encoding: enc,
		data:     make([]byte, estimateBytes(rate, revs)),
		log:      hclog.NewNullLogger(),
	}
}

// FromBytes returns a buffer holding the first bitlen bits of p.
func FromBytes(rate geom.DataRate, p []byte, bitlen int) *BitBuffer {
	if bitlen < 0 || bitlen > len(p)*8 {
		panic(fmt.Sprintf("bitbuf: bit length %d out of range for %d bytes", bitlen, len(p)))
	}
	n := (bitlen + 7) / 8
	data := make([]byte, n, max(n, minBytes))
	copy(data, p[:n])
	return &BitBuffer{
		DataRate: rate,
		data:     data[:cap(data)],
		bitsize:  bitlen,
		log:      hclog.NewNullLogger(),
	}
}

// FromDecoder drains a bit source into a new buffer, recording index
// and sync-loss positions as they are reported.
func FromDecoder(rate geom.DataRate, src BitSource, logger hclog.Logger) *BitBuffer {
	b := New(rate, geom.EncodingUnknown, src.FluxRevs())
	if logger != nil {
		b.log = logger
	}
	for {
		bit := src.NextBit()
		if bit < 0 {
			break
		}
		if src.SyncLost() {
			b.log.Debug("sync lost", "offset", b.bitpos, "track_offset", b.TrackOffset(b.bitpos))
			b.SyncLost()
		}
		b.Add(bit != 0)
		if src.Index() {
			b.Index()
		}
	}
	return b
}

// SetLogger replaces the diagnostic logger.
func (b *BitBuffer) SetLogger(logger hclog.Logger) {
	b.log = logger
}

// Data returns the backing bytes covering Size bits.
func (b *BitBuffer) Data() []byte {
	return b.data[:(b.bitsize+7)/8]
}

// Indexes returns the revolution boundary offsets.
func (b *BitBuffer) Indexes() []int {
	return b.indexes
}

// SyncLosses returns the offsets where sync was lost.
func (b *BitBuffer) SyncLosses() []int {
	return b.syncLosses
}

// Wrapped reports whether reading has passed the end of the buffer.
// An empty buffer is always wrapped.
func (b *BitBuffer) Wrapped() bool {
	return b.wrapped || b.bitsize == 0
}

// Size returns the number of bits held.
func (b *BitBuffer) Size() int {
	return b.bitsize
}

// Remaining returns the bits left before the read position wraps.
func (b *BitBuffer) Remaining() int {
	return b.bitsize - b.bitpos
}

// Tell returns the current bit position.
func (b *BitBuffer) Tell() int {
	return b.bitpos
}

// Seek moves to a bit offset, clamped to the buffer size. It reports
// whether the requested offset was reached.
func (b *BitBuffer) Seek(offset int) bool {
	b.wrapped = false
	b.bitpos = max(min(offset, b.bitsize), 0)
	return b.bitpos == offset
}

// SeekIndex moves to the n'th revolution boundary. Negative values count
// back from the last one.
func (b *BitBuffer) SeekIndex(n int) bool {
	if n < 0 {
		n += len(b.indexes)
	}
	if n < 0 || n >= len(b.indexes) {
		return false
	}
	return b.Seek(b.indexes[n])
}

// TellIndex returns the revolution containing the read position.
func (b *BitBuffer) TellIndex() int {
	for rev, offset := range b.indexes {
		if b.bitpos < offset {
			return rev
		}
	}
	return len(b.indexes)
}

// Index marks a revolution boundary at the current position.
func (b *BitBuffer) Index() {
	b.indexes = append(b.indexes, b.bitpos)
}

// SyncLost records a loss of sync at the current position.
func (b *BitBuffer) SyncLost() {
	b.syncLosses = append(b.syncLosses, b.bitpos)
}

// SyncLostBetween reports a sync loss in the range (begin, end].
func (b *BitBuffer) SyncLostBetween(begin, end int) bool {
	for _, pos := range b.syncLosses {
		if begin < pos && pos <= end {
			return true
		}
	}
	return false
}

// Clear empties the buffer, keeping its rate and encoding.
func (b *BitBuffer) Clear() {
	*b = BitBuffer{
		DataRate: b.DataRate,
		Encoding: b.Encoding,
		data:     make([]byte, minBytes),
		log:      b.log,
	}
}

// Add appends a bit at the current position, doubling the storage when
// it runs out.
func (b *BitBuffer) Add(one bool) {
	offset := b.bitpos / 8
	if offset >= len(b.data) {
		size := max(len(b.data)*2, minBytes)
		grown := make([]byte, size)
		copy(grown, b.data)
		b.data = grown
		b.log.Debug("bit buffer grown", "bytes", size)
	}

	mask := byte(0x80) >> (b.bitpos & 7)
	if one {
		b.data[offset] |= mask
	} else {
		b.data[offset] &^= mask
	}

	b.bitpos++
	b.bitsize = max(b.bitsize, b.bitpos)
}

// Remove drops the last n bits before the current position.
func (b *BitBuffer) Remove(n int) {
	b.bitpos -= min(n, b.bitpos)
	b.bitsize = b.bitpos
}

// Read1 returns the next bit, wrapping to the start after the last one.
func (b *BitBuffer) Read1() int {
	if b.bitsize == 0 {
		b.wrapped = true
		return 0
	}

	bit := int(b.data[b.bitpos/8]>>(7-b.bitpos&7)) & 1

	b.bitpos++
	if b.bitpos == b.bitsize {
		b.bitpos = 0
		b.wrapped = true
	}
	return bit
}

// Read8MSB reads 8 raw bits, first bit most significant.
func (b *BitBuffer) Read8MSB() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v = v<<1 | byte(b.Read1())
	}
	return v
}

// Read8LSB reads 8 raw bits, first bit least significant.
func (b *BitBuffer) Read8LSB() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v |= byte(b.Read1()) << i
	}
	return v
}

// Read16 reads 16 raw bits, first bit most significant.
func (b *BitBuffer) Read16() uint16 {
	var v uint16
	for i := 0; i < 16; i++ {
		v = v<<1 | uint16(b.Read1())
	}
	return v
}

// Read32 reads 32 raw bits, first bit most significant.
func (b *BitBuffer) Read32() uint32 {
	var v uint32
	for i := 0; i < 32; i++ {
		v = v<<1 | uint32(b.Read1())
	}
	return v
}

// ReadDataByte decodes one data byte using the buffer encoding, dropping
// the clock bits of FM and MFM.
func (b *BitBuffer) ReadDataByte() byte {
	var v byte

	switch b.Encoding {
	case geom.EncodingFM:
		for i := 0; i < 8; i++ {
			b.Read1()
			b.Read1()
			v = v<<1 | byte(b.Read1())
			b.Read1()
		}

	case geom.EncodingMFM:
		for i := 0; i < 8; i++ {
			b.Read1()
			v = v<<1 | byte(b.Read1())
		}

	case geom.EncodingApple:
		for i := 0; i < 8; i++ {
			v = v<<1 | byte(b.Read1())
		}
		// Disk ][ keeps shifting until the top bit is set.
		for v&0x80 == 0 && !b.Wrapped() {
			v = v<<1 | byte(b.Read1())
		}

	default:
		v = b.Read8MSB()
	}
	return v
}

// ReadData fills p with decoded data bytes.
func (b *BitBuffer) ReadData(p []byte) {
	for i := range p {
		p[i] = b.ReadDataByte()
	}
}

// TrackBitsize returns the length of the first revolution, or the whole
// buffer if no index was recorded.
func (b *BitBuffer) TrackBitsize() int {
	if len(b.indexes) > 0 {
		return b.indexes[0]
	}
	return b.bitsize
}

// TrackOffset converts a buffer position into an offset from the start of
// the revolution that contains it.
func (b *BitBuffer) TrackOffset(pos int) int {
	for i := len(b.indexes) - 1; i >= 0; i-- {
		if pos >= b.indexes[i] {
			return pos - b.indexes[i]
		}
	}
	return pos
}

// TrackBitstream returns a new buffer holding only the first revolution.
func (b *BitBuffer) TrackBitstream() *BitBuffer {
	bits := b.TrackBitsize()
	nb := FromBytes(b.DataRate, b.data, bits)
	nb.Encoding = b.Encoding
	nb.log = b.log
	return nb
}

// Align shifts the bitstream so every address mark starts on an encoded
// byte boundary, dropping the bits between the previous boundary and the
// mark. It reports whether anything changed.
func (b *BitBuffer) Align() bool {
	unit := 16
	if b.Encoding == geom.EncodingFM {
		unit = 32
	}

	out := New(b.DataRate, b.Encoding, 1)
	out.log = b.log
	indexes := append([]int(nil), b.indexes...)
	losses := append([]int(nil), b.syncLosses...)

	var dword uint32
	modified := false

	b.Seek(0)
	for !b.Wrapped() {
		n := 0
		found := false
		for n < unit && !found && !b.Wrapped() {
			dword = dword<<1 | uint32(b.Read1())
			n++

			switch b.Encoding {
			case geom.EncodingMFM:
				found = dword&0xffff == 0x4489
			case geom.EncodingFM:
				found = IsFMAddressMark(dword)
			}
		}

		// A mark ending mid-unit means the previous unit was out of step.
		if found && n < unit && out.Size() >= unit {
			pos := b.bitpos
			if b.Wrapped() {
				pos = b.bitsize
			}
			shiftOffsets(indexes, b.indexes, pos, n)
			shiftOffsets(losses, b.syncLosses, pos, n)

			out.Remove(unit)
			n = unit
			modified = true
		}

		for i := n - 1; i >= 0; i-- {
			out.Add(dword>>i&1 != 0)
		}
	}

	if modified {
		out.indexes = indexes
		out.syncLosses = losses
		out.bitpos = 0
		*b = *out
	}
	b.Seek(0)
	return modified
}

// shiftOffsets moves back every adjusted offset whose original position
// lies at or beyond pos.
func shiftOffsets(adjusted, original []int, pos, n int) {
	for i, p := range original {
		if p >= pos {
			adjusted[i] -= n
		}
	}
}

// IsFMAddressMark reports whether a raw 32-bit window holds one of the FM
// address marks with its missing-clock pattern.
func IsFMAddressMark(dword uint32) bool {
	switch dword {
	case 0xaa222888, // F8/C7 deleted DAM
		0xaa22288a, // F9/C7 alt deleted DAM
		0xaa2228a8, // FA/C7 alt DAM
		0xaa2228aa, // FB/C7 DAM
		0xaa222a88, // FC/C7 IAM
		0xaa2a2a88, // FC/D7 IAM
		0xaa222a8a, // FD/C7 RX02 DAM
		0xaa222aa8: // FE/C7 IDAM
		return true
	}
	return false
}
