// Package builder encodes sectors back into raw track data: a bitstream of
// MFM-rate cells, or flux reversal intervals ready for writing.
package builder

import (
	"fmt"

	"github.com/sergev/fluxscan/crc16"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/track"
)

// Sink receives the raw bitstream cells produced by a TrackBuilder.
type Sink interface {
	AddRawBit(one bool)
}

// TrackBuilder turns bytes, address marks and sectors into raw cells.
// FM and MFM are both produced at the MFM cell rate: an FM bit takes
// two cells, each followed by an empty one.
type TrackBuilder struct {
	DataRate geom.DataRate

	encoding geom.Encoding
	sink     Sink
	lastBit  bool // last data bit, for the MFM clock rule
	crc      crc16.CRC
	cells    int // raw cells emitted
}

// NewTrackBuilder returns a builder emitting into sink.
func NewTrackBuilder(rate geom.DataRate, enc geom.Encoding, sink Sink) *TrackBuilder {
	if enc == geom.EncodingUnknown {
		enc = geom.EncodingMFM
	}
	return &TrackBuilder{DataRate: rate, encoding: enc, sink: sink}
}

func (b *TrackBuilder) Encoding() geom.Encoding {
	return b.encoding
}

// SetEncoding switches encoding for the following fields.
func (b *TrackBuilder) SetEncoding(enc geom.Encoding) {
	b.encoding = enc
}

// Cells returns the number of raw cells emitted so far.
func (b *TrackBuilder) Cells() int {
	return b.cells
}

// CRC returns the running CRC.
func (b *TrackBuilder) CRC() crc16.CRC {
	return b.crc
}

func (b *TrackBuilder) addRawBit(one bool) {
	b.cells++
	b.sink.AddRawBit(one)
}

// AddBit emits one clock or data cell.
func (b *TrackBuilder) AddBit(bit bool) {
	b.addRawBit(bit)
	if b.encoding == geom.EncodingFM {
		b.addRawBit(false)
	}
}

// AddDataBit emits a data bit with its clock.
func (b *TrackBuilder) AddDataBit(bit bool) {
	if b.encoding == geom.EncodingFM {
		b.AddBit(true)
	} else {
		// Clock a zero only between two zeros.
		b.AddBit(!b.lastBit && !bit)
	}
	b.AddBit(bit)
	b.lastBit = bit
}

// AddByte emits a data byte, most significant bit first.
func (b *TrackBuilder) AddByte(v byte) {
	for i := 7; i >= 0; i-- {
		b.AddDataBit(v>>i&1 != 0)
	}
}

// AddByteUpdateCRC emits a data byte and adds it to the running CRC.
func (b *TrackBuilder) AddByteUpdateCRC(v byte) {
	b.crc = b.crc.Add(v)
	b.AddByte(v)
}

// AddByteWithClock emits a byte with an explicit clock pattern, as used
// for address marks with missing clocks.
func (b *TrackBuilder) AddByteWithClock(data, clock byte) {
	for i := 7; i >= 0; i-- {
		b.AddBit(clock>>i&1 != 0)
		b.AddBit(data>>i&1 != 0)
	}
	b.lastBit = data&1 != 0
}

// AddBlock emits count copies of a byte.
func (b *TrackBuilder) AddBlock(v byte, count int) {
	for i := 0; i < count; i++ {
		b.AddByte(v)
	}
}

// AddBlockData emits a byte sequence.
func (b *TrackBuilder) AddBlockData(p []byte) {
	for _, v := range p {
		b.AddByte(v)
	}
}

// AddBlockUpdateCRC emits count copies of a byte through the CRC.
func (b *TrackBuilder) AddBlockUpdateCRC(v byte, count int) {
	for i := 0; i < count; i++ {
		b.AddByteUpdateCRC(v)
	}
}

// AddBlockDataUpdateCRC emits a byte sequence through the CRC.
func (b *TrackBuilder) AddBlockDataUpdateCRC(p []byte) {
	for _, v := range p {
		b.AddByteUpdateCRC(v)
	}
}

// GapFill returns the default gap byte of the current encoding.
func (b *TrackBuilder) GapFill() byte {
	if b.encoding == geom.EncodingFM {
		return 0xff
	}
	return 0x4e
}

// AddGap emits count gap bytes. A negative fill selects the default.
func (b *TrackBuilder) AddGap(count, fill int) {
	v := b.GapFill()
	if fill >= 0 {
		v = byte(fill)
	}
	b.AddBlock(v, count)
}

// AddGap2 emits the gap between an ID field and its data field.
func (b *TrackBuilder) AddGap2(fill int) {
	b.AddGap(geom.Gap2Size(b.encoding, b.DataRate), fill)
}

// SyncLength returns the number of zero bytes before an address mark.
func (b *TrackBuilder) SyncLength(shortMFMGap bool) int {
	switch {
	case b.encoding == geom.EncodingFM:
		return geom.SyncOverhead(geom.EncodingFM)
	case shortMFMGap:
		return 3
	}
	return geom.SyncOverhead(geom.EncodingMFM)
}

// AddSync emits the zero run that lets a controller lock before a mark.
func (b *TrackBuilder) AddSync(shortMFMGap bool) {
	b.AddBlock(0x00, b.SyncLength(shortMFMGap))
}

// AddAM emits an address mark and starts the CRC over it.
func (b *TrackBuilder) AddAM(mark byte, omitSync, shortMFMGap bool) {
	if !omitSync {
		b.AddSync(shortMFMGap)
	}

	if b.encoding == geom.EncodingFM {
		b.AddByteWithClock(mark, 0xc7)
		b.crc = crc16.New(crc16.Init).Add(mark)
		return
	}

	for i := 0; i < 3; i++ {
		b.AddByteWithClock(0xa1, 0x0a) // 0x4489
	}
	b.crc = crc16.New(crc16.A1A1A1)
	b.AddByteUpdateCRC(mark)
}

// AddIAM emits the index address mark.
func (b *TrackBuilder) AddIAM() {
	b.AddSync(false)
	if b.encoding == geom.EncodingFM {
		b.AddByteWithClock(geom.IAM, 0xd7)
		return
	}
	for i := 0; i < 3; i++ {
		b.AddByteWithClock(0xc2, 0x14) // 0x5224
	}
	b.AddByte(geom.IAM)
}

// AddCRCBytes emits the running CRC, deliberately damaged on request.
func (b *TrackBuilder) AddCRCBytes(badCRC bool) {
	v := b.crc.Bytes()
	if badCRC {
		v[0] ^= 0x55
		v[1] ^= 0x55
	}
	b.AddByte(v[0])
	b.AddByte(v[1])
}

// AddTrackStart emits gap 4a, the index mark and gap 1.
func (b *TrackBuilder) AddTrackStart(shortMFMGap bool) {
	if b.encoding == geom.EncodingFM {
		b.AddGap(geom.Gap4aFM, -1)
		b.AddIAM()
		b.AddGap(geom.Gap1FM, -1)
		return
	}

	if shortMFMGap {
		b.AddGap(geom.Gap1MFM, -1)
		return
	}
	b.AddGap(geom.Gap4aMFM, -1)
	b.AddIAM()
	b.AddGap(geom.Gap1MFM, -1)
}

// AddSectorHeader emits an ID field.
func (b *TrackBuilder) AddSectorHeader(h geom.Header, crcError, shortMFMGap bool) {
	b.AddAM(geom.IDAM, false, shortMFMGap)
	b.AddByteUpdateCRC(byte(h.Cyl))
	b.AddByteUpdateCRC(byte(h.Head))
	b.AddByteUpdateCRC(byte(h.Sector))
	b.AddByteUpdateCRC(byte(h.Size))
	b.AddCRCBytes(crcError)
}

// AddSectorData emits a data field of exactly size bytes: short data
// is padded with zeros and longer data is cut.
func (b *TrackBuilder) AddSectorData(data []byte, size int, dam byte, crcError bool) {
	b.AddAM(dam, false, false)
	n := min(len(data), size)
	b.AddBlockDataUpdateCRC(data[:n])
	b.AddBlockUpdateCRC(0x00, size-n)
	b.AddCRCBytes(crcError)
}

// AddSector emits a whole sector followed by gap 3.
func (b *TrackBuilder) AddSector(s *track.Sector, gap3 int, shortMFMGap bool) {
	b.AddSectorHeader(s.Header, s.HasBadIDCRC(), shortMFMGap)
	if s.HasData() {
		b.AddGap2(-1)
		b.AddSectorData(s.DataCopy(0), s.Size(), s.DAM, s.HasBadDataCRC())
	}
	b.AddGap(gap3, -1)
}

// AddSectorFields emits a sector from its parts.
func (b *TrackBuilder) AddSectorFields(h geom.Header, data []byte, gap3 int, dam byte, crcError bool) {
	b.AddSectorHeader(h, false, false)
	b.AddGap2(-1)
	b.AddSectorData(data, h.SectorSize(), dam, crcError)
	b.AddGap(gap3, -1)
}

// AddSectorUpToData emits an ID field, gap 2 and a data address mark,
// leaving the caller to supply the data.
func (b *TrackBuilder) AddSectorUpToData(h geom.Header, dam byte) {
	b.AddSectorHeader(h, false, false)
	b.AddGap2(-1)
	b.AddAM(dam, false, false)
}

// Amiga tracks.

// Sectors on an AmigaDOS DD and HD track.
const (
	AmigaSectors   = 11
	AmigaSectorsHD = 22
)

const (
	amigaSectorSize = 512
	amigaLabelSize  = 16
)

// shuffle splits a 32-bit word into its odd and even bits.
func shuffle(word uint32) (odd, even uint16) {
	for i := 0; i < 16; i++ {
		odd <<= 1
		even <<= 1
		odd |= uint16((word >> 31) & 1)
		even |= uint16((word >> 30) & 1)
		word <<= 2
	}
	return odd, even
}

func (b *TrackBuilder) addWord(w uint16) {
	b.AddByte(byte(w >> 8))
	b.AddByte(byte(w))
}

// AddAmigaTrackStart emits the gap before the first Amiga sector.
func (b *TrackBuilder) AddAmigaTrackStart() {
	b.AddGap(150, 0x4e)
}

// AddAmigaDword emits a long word as its odd then even bits and folds
// both halves into checksum.
func (b *TrackBuilder) AddAmigaDword(v uint32, checksum *uint32) {
	odd, even := shuffle(v)
	b.addWord(odd)
	b.addWord(even)
	*checksum ^= uint32(odd) ^ uint32(even)
}

// AddAmigaChecksum emits a checksum long word.
func (b *TrackBuilder) AddAmigaChecksum(sum uint32) {
	b.addWord(uint16(sum >> 16))
	b.addWord(uint16(sum))
}

// SplitAmigaBits shuffles a block of long words into its odd and even
// halves and returns them with their checksum.
func SplitAmigaBits(p []byte) (odd, even []uint16, checksum uint32) {
	n := len(p) / 4
	odd = make([]uint16, n)
	even = make([]uint16, n)
	for i := 0; i < n; i++ {
		v := uint32(p[4*i])<<24 | uint32(p[4*i+1])<<16 | uint32(p[4*i+2])<<8 | uint32(p[4*i+3])
		odd[i], even[i] = shuffle(v)
		checksum ^= uint32(odd[i]) ^ uint32(even[i])
	}
	return odd, even, checksum
}

// AddAmigaBits emits the odd halves of a block, then the even halves.
func (b *TrackBuilder) AddAmigaBits(odd, even []uint16) {
	for _, w := range odd {
		b.addWord(w)
	}
	for _, w := range even {
		b.addWord(w)
	}
}

// AddAmigaSector emits one AmigaDOS sector with an empty label.
func (b *TrackBuilder) AddAmigaSector(ch geom.CylHead, sector int, data []byte) {
	b.AddAmigaSectorLabel(ch, sector, nil, data)
}

// AddAmigaSectorLabel emits one AmigaDOS sector: sync, info, label, header
// checksum, data checksum and the 512-byte block. A nil label is written
// as zeros.
func (b *TrackBuilder) AddAmigaSectorLabel(ch geom.CylHead, sector int, label, data []byte) {
	if len(data) != amigaSectorSize {
		panic(fmt.Sprintf("builder: Amiga sector data must be %d bytes, got %d", amigaSectorSize, len(data)))
	}
	if label == nil {
		label = make([]byte, amigaLabelSize)
	}
	if len(label) != amigaLabelSize {
		panic(fmt.Sprintf("builder: Amiga sector label must be %d bytes, got %d", amigaLabelSize, len(label)))
	}

	sectors := AmigaSectors
	if b.DataRate == geom.DataRate500K {
		sectors = AmigaSectorsHD
	}

	b.AddBlock(0x00, 2)
	b.AddByteWithClock(0xa1, 0x0a)
	b.AddByteWithClock(0xa1, 0x0a)

	// Sectors until the end of the track, counting this one.
	eot := sectors - sector
	var sum uint32
	info := uint32(0xff)<<24 | uint32(ch.AmigaTrack())<<16 | uint32(sector)<<8 | uint32(eot&0xff)
	b.AddAmigaDword(info, &sum)

	odd, even, labelSum := SplitAmigaBits(label)
	b.AddAmigaBits(odd, even)
	b.AddAmigaChecksum(sum ^ labelSum)

	odd, even, dataSum := SplitAmigaBits(data)
	b.AddAmigaChecksum(dataSum)
	b.AddAmigaBits(odd, even)
}
