package scan

import (
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/crc16"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// Raw bit patterns of the MFM A1 sync and the FM index mark variant that
// is never used as a sector mark.
const (
	mfmSync     = 0x44894489
	mfmSyncWord = 0x4489
	fmIAMD7     = 0xaa2a2a88
)

// Bytes of an 8K sector needed to check its secondary checksum.
const min8KData = 0x1802

// dataField is a data address mark found on the first pass.
type dataField struct {
	offset   int // buffer position of the mark byte
	encoding geom.Encoding
}

// dataRates is the detection order after the remembered rate.
var dataRates = []geom.DataRate{geom.DataRate250K, geom.DataRate500K, geom.DataRate300K, geom.DataRate1M}

// wobbleScales simulate a drive running at nominal, 5% fast and 5% slow.
var wobbleScales = []int{100, 95, 105}

// needsRetry reports a track with a sector lacking good data.
func needsRetry(t *track.Track) bool {
	for _, s := range t.Sectors() {
		if !s.HasData() || s.HasBadDataCRC() {
			return true
		}
	}
	return false
}

// ScanFluxMFMFM decodes flux at each candidate data rate, starting with
// lastRate, until one yields sectors. Missing or bad data is retried at
// the other motor speeds and the reads are merged.
func (s *Scanner) ScanFluxMFMFM(ch geom.CylHead, flux pll.FluxData, lastRate geom.DataRate) *track.Track {
	rates := []geom.DataRate{s.opts.DataRate}
	if s.opts.DataRate == geom.DataRateUnknown {
		rates = append([]geom.DataRate{lastRate}, dataRates...)
	}

	t := track.New()
	var tried []geom.DataRate
	for _, rate := range rates {
		if rate == geom.DataRateUnknown || containsRate(tried, rate) {
			continue
		}
		tried = append(tried, rate)

		for i, scale := range wobbleScales {
			if i > 0 {
				s.rec.WobbleRetry(geom.EncodingMFM)
				s.log.Debug("retrying at motor speed", "track", ch, "scale", scale)
			}

			buf := s.decode(flux, rate, rate.BitcellNs(), scale)
			scanned := s.ScanBitstreamMFMFM(ch, buf)
			t.TrackLen = scanned.TrackLen
			t.TrackTime = fluxTrackTime(flux)
			for _, sec := range scanned.Sectors() {
				t.Add(sec)
			}

			if !needsRetry(t) || s.opts.NoWobble {
				break
			}
		}

		if !t.Empty() {
			break
		}
	}
	return t
}

func containsRate(rates []geom.DataRate, rate geom.DataRate) bool {
	for _, r := range rates {
		if r == rate {
			return true
		}
	}
	return false
}

// fluxTrackTime returns the first revolution time in microseconds.
func fluxTrackTime(flux pll.FluxData) int {
	if flux.Revs() == 0 {
		return 0
	}
	return int(flux.Duration(0) / 1000)
}

// bitstreamTrackTime converts a revolution length in cells to microseconds.
func bitstreamTrackTime(cells int, rate geom.DataRate) int {
	return cells * rate.BitcellNs() / 1000
}

// ScanBitstreamMFMFM finds IBM System 34 sectors in a bitstream. A first
// pass collects every ID field and data mark; a second pass pairs each
// header with the data fields that sit a gap2 away from it.
func (s *Scanner) ScanBitstreamMFMFM(ch geom.CylHead, buf *bitbuf.BitBuffer) *track.Track {
	t := track.New()
	buf.Seek(0)
	tracklen := buf.TrackBitsize()
	t.TrackLen = tracklen
	t.TrackTime = bitstreamTrackTime(tracklen, buf.DataRate)

	allowMFM := s.opts.Encoding != geom.EncodingFM
	allowFM := (s.opts.FM && s.opts.Encoding != geom.EncodingMFM) || s.opts.Encoding == geom.EncodingFM

	var fields []dataField
	var dword uint32
	seenFM := false

	for !buf.Wrapped() {
		// No ID fields within a revolution means there won't be any.
		if t.Empty() && buf.Tell() > tracklen {
			break
		}

		dword = dword<<1 | uint32(buf.Read1())
		if buf.Wrapped() {
			break
		}

		var enc geom.Encoding
		var crc crc16.CRC
		switch {
		case allowMFM && dword == mfmSync:
			if buf.Read16() != mfmSyncWord {
				continue
			}
			enc = geom.EncodingMFM
			crc = crc16.New(crc16.A1A1A1)

		case allowFM && dword != fmIAMD7 && bitbuf.IsFMAddressMark(dword):
			// FM marks are their own sync, so read the mark again as data.
			buf.Seek(buf.Tell() - 32)
			enc = geom.EncodingFM
			crc = crc16.New(crc16.Init)

		default:
			continue
		}

		amOffset := buf.Tell()
		buf.Encoding = enc
		am := buf.ReadDataByte()
		crc = crc.Add(am)

		switch am {
		case geom.IDAM:
			id := make([]byte, 6)
			buf.ReadData(id)
			crc = crc.AddBytes(id)
			good := crc.Valid()

			h := geom.Header{Cyl: int(id[0]), Head: int(id[1]), Sector: int(id[2]), Size: int(id[3])}
			s.log.Trace("ID address mark", "track", ch, "encoding", enc, "header", h, "offset", amOffset, "bad_crc", !good)

			if !good && (!s.opts.IDCRC || enc == geom.EncodingFM) {
				continue
			}

			sec := track.NewSector(buf.DataRate, enc, h)
			sec.Policy = s.opts.Policy
			sec.Offset = buf.TrackOffset(amOffset)
			sec.Revolution = buf.TellIndex()
			sec.SetBadIDCRC(!good)
			t.Add(sec)

			if enc == geom.EncodingFM && good {
				seenFM = true
			}

		case geom.DAM, geom.DAMAlt, geom.DAMDeleted, geom.DAMDeletedAlt, geom.DAMRX02:
			// FM data marks are easily faked by noise.
			if enc == geom.EncodingFM && !seenFM {
				continue
			}
			s.log.Trace("data address mark", "track", ch, "encoding", enc, "mark", am, "offset", amOffset)
			fields = append(fields, dataField{offset: amOffset, encoding: enc})

		case geom.IAM:
			s.log.Trace("index address mark", "track", ch, "encoding", enc, "offset", amOffset)

		default:
			s.log.Warn("unknown address mark", "track", ch, "encoding", enc, "mark", am, "offset", buf.TrackOffset(amOffset))
		}
	}

	gaps := gapTester{maxSplice: s.opts.MaxSplice, log: s.log}
	sectors := t.Sectors()

	for i, sec := range sectors {
		if sec.HasBadIDCRC() {
			continue
		}
		final := i == len(sectors)-1

		shift := 4
		if sec.Encoding == geom.EncodingFM {
			shift = 5
		}
		gap2 := geom.Gap2MFMDDHD
		if sec.DataRate == geom.DataRate1M {
			gap2 = geom.Gap2MFMED
		}
		minDistance := (7 << shift) + (gap2 << 4)
		maxDistance := (7 << shift) + ((21 + gap2) << 4)

		nextIDAM := sectors[0].Offset
		if !final {
			nextIDAM = sectors[i+1].Offset
		}

		for j, field := range fields {
			if field.encoding != sec.Encoding {
				continue
			}

			damTrack := buf.TrackOffset(field.offset)
			distance := damTrack - sec.Offset
			if distance < 0 {
				distance += tracklen
			}
			if distance < minDistance || distance > maxDistance {
				continue
			}

			buf.Seek(field.offset)
			buf.Encoding = field.encoding
			dam := buf.ReadDataByte()
			crc := crc16.New(crc16.Init)
			if field.encoding == geom.EncodingMFM {
				crc = crc16.New(crc16.A1A1A1)
			}
			crc = crc.Add(dam)

			idamDistance := nextIDAM - damTrack
			if idamDistance < 0 {
				idamDistance += tracklen
			}
			nextIDAMBytes := (idamDistance >> shift) - 1
			align := idamDistance & ((1 << shift) - 1)

			next := fields[(j+1)%len(fields)]
			damDistance := next.offset - field.offset
			if damDistance <= 0 {
				damDistance += buf.Size()
			}
			nextDAMBytes := (damDistance >> shift) - 1

			// Reading on to the next data field takes in the next
			// header's gap2, unless that header has no data field.
			extent := nextIDAMBytes
			if !final && !s.opts.NoGap2 && damDistance <= idamDistance+maxDistance {
				extent = nextDAMBytes
			}
			if extent >= 3 && sec.Encoding == geom.EncodingMFM {
				extent -= 3 // next A1 sync
			}

			size := sec.Size()
			normal := size + 2
			dataBytes := max(normal, extent)

			avail := buf.Remaining() >> shift
			if avail < normal && sec.HasData() && (!sec.Is8KSector() || avail < min8KData) {
				s.log.Debug("ignoring truncated data copy", "track", ch, "header", sec.Header, "bytes", avail)
				continue
			}

			data := make([]byte, dataBytes)
			buf.ReadData(data)
			bad := !crc.AddBytes(data[:normal]).Valid()

			if !s.opts.KeepOverlap && extent < size {
				data = data[:max(extent, 0)]
			} else if len(data) > size && (s.opts.Gaps == GapsNone || (s.opts.NoGap4b && final)) {
				data = data[:size]
			}

			gap2Offset := nextIDAMBytes + 7
			hasGap2 := nextIDAMBytes >= 0 && len(data) >= gap2Offset
			hasGap34 := len(data) >= normal

			removeGap2 := hasGap2 && (align != 0 || data[nextIDAMBytes] != geom.IDAM || gaps.removeGap2(data, gap2Offset))

			var removeGap34 bool
			if hasGap34 {
				if final {
					removeGap34 = gaps.removeGap4b(data, normal)
				} else {
					removeGap34 = gaps.removeGap3(data, normal, &sec.Gap3)
				}
			}

			if s.opts.Gaps != GapsAll {
				if hasGap2 && removeGap2 {
					n := nextIDAMBytes
					if sec.Encoding == geom.EncodingMFM {
						n -= 3
					}
					s.log.Debug("removing gap2", "track", ch, "header", sec.Header, "bytes", len(data)-n)
					data = data[:max(n, 0)]
				}
				if hasGap34 && removeGap34 && (!hasGap2 || removeGap2) && len(data) > size {
					s.log.Debug("removing gap3", "track", ch, "header", sec.Header, "bytes", len(data)-size)
					data = data[:size]
				}
			}

			method := track.Checksum8KNone
			if sec.Is8KSector() {
				method = track.Checksum8KMethod(data)
				if method != track.Checksum8KNone {
					s.log.Debug("8K sector checksum", "track", ch, "header", sec.Header, "method", method)
				}
			}

			sec.Add(data, bad, dam)

			if !bad || method != track.Checksum8KNone {
				break
			}
		}
	}
	return t
}
