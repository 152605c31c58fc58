package scan

import (
	"encoding/binary"

	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// mfmDataMask keeps the data bits of a raw MFM long word.
const mfmDataMask = 0x55555555

const (
	amigaFormat      = 0xff // AmigaDOS info field format byte
	amigaSectorsDD   = 11
	amigaSectorsHD   = 22
	amigaLabelDwords = 4
	amigaDataDwords  = 128
)

// readAmigaDwords reads n long words stored as a block of odd bits
// followed by a block of even bits. Every raw long word is folded into
// checksum. It reports false if the read ran off the end of the buffer.
func readAmigaDwords(buf *bitbuf.BitBuffer, n int, checksum *uint32) ([]uint32, bool) {
	odds := make([]uint32, n)
	for i := range odds {
		odds[i] = buf.Read32()
		*checksum ^= odds[i]
	}

	values := make([]uint32, n)
	for i, odd := range odds {
		even := buf.Read32()
		*checksum ^= even
		values[i] = (odd&mfmDataMask)<<1 | even&mfmDataMask
	}
	return values, !buf.Wrapped()
}

// ScanFluxAmiga decodes flux at double density, retrying at the other
// motor speeds while data is missing or bad.
func (s *Scanner) ScanFluxAmiga(ch geom.CylHead, flux pll.FluxData) *track.Track {
	t := track.New()
	rate := geom.DataRate250K
	if s.opts.DataRate == geom.DataRate500K {
		rate = geom.DataRate500K
	}

	for i, scale := range wobbleScales {
		if i > 0 {
			s.rec.WobbleRetry(geom.EncodingAmiga)
			s.log.Debug("retrying at motor speed", "track", ch, "scale", scale)
		}

		buf := s.decode(flux, rate, rate.BitcellNs(), scale)
		scanned := s.ScanBitstreamAmiga(ch, buf)
		t.TrackLen = scanned.TrackLen
		t.TrackTime = fluxTrackTime(flux)
		for _, sec := range scanned.Sectors() {
			t.Add(sec)
		}

		if !needsRetry(t) || s.opts.NoWobble {
			break
		}
	}
	return t
}

// ScanBitstreamAmiga finds AmigaDOS sectors. Each follows a pair of A1
// syncs and carries its own track number, which must match ch.
func (s *Scanner) ScanBitstreamAmiga(ch geom.CylHead, buf *bitbuf.BitBuffer) *track.Track {
	t := track.New()
	buf.Seek(0)
	tracklen := buf.TrackBitsize()
	t.TrackLen = tracklen
	t.TrackTime = bitstreamTrackTime(tracklen, buf.DataRate)

	maxSectors := amigaSectorsDD
	if buf.DataRate == geom.DataRate500K {
		maxSectors = amigaSectorsHD
	}

	var dword uint32
	for !buf.Wrapped() {
		if t.Empty() && buf.Tell() > tracklen {
			break
		}

		dword = dword<<1 | uint32(buf.Read1())
		if dword != mfmSync {
			continue
		}
		sectorOffset := buf.Tell()

		var calcsum uint32
		v, ok := readAmigaDwords(buf, 1, &calcsum)
		if !ok {
			continue
		}
		info := v[0]
		format := int(info >> 24)
		trackNr := int(info>>16) & 0xff
		sector := int(info>>8) & 0xff
		eot := int(info) & 0xff

		if format != amigaFormat || sector >= maxSectors || eot == 0 || eot > maxSectors ||
			trackNr != ch.AmigaTrack()&0xff {
			s.log.Trace("ignoring Amiga info field", "track", ch, "info", info, "offset", sectorOffset)
			continue
		}

		label, ok := readAmigaDwords(buf, amigaLabelDwords, &calcsum)
		if !ok {
			continue
		}
		for _, l := range label {
			if l != 0 {
				s.log.Warn("label field is not empty", "track", ch, "sector", sector)
				break
			}
		}

		if _, ok := readAmigaDwords(buf, 1, &calcsum); !ok {
			continue
		}
		calcsum &= mfmDataMask
		if calcsum != 0 && !s.opts.IDCRC {
			continue
		}

		sec := track.NewSector(buf.DataRate, geom.EncodingAmiga, geom.Header{Cyl: ch.Cyl, Head: ch.Head, Sector: sector, Size: 2})
		sec.Policy = s.opts.Policy
		sec.Offset = buf.TrackOffset(sectorOffset)
		sec.Revolution = buf.TellIndex()
		sec.SetBadIDCRC(calcsum != 0)

		// Data checksum, then the block itself.
		if _, ok := readAmigaDwords(buf, 1, &calcsum); !ok {
			continue
		}
		words, ok := readAmigaDwords(buf, amigaDataDwords, &calcsum)
		if !ok {
			continue
		}
		data := make([]byte, 4*len(words))
		for i, w := range words {
			binary.BigEndian.PutUint32(data[4*i:], w)
		}

		sec.Add(data, calcsum&mfmDataMask != 0, 0x00)
		t.Add(sec)
	}
	return t
}
