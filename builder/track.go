package builder

import (
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// trackFormat returns the data rate and encoding a track is written in.
// An empty track is written as a blank double density MFM track.
func trackFormat(t *track.Track) (geom.DataRate, geom.Encoding) {
	if t.Empty() {
		return geom.DataRate250K, geom.EncodingMFM
	}
	s := t.At(0)
	return s.DataRate, s.Encoding
}

// renderTrack emits the sectors of t, then pads the revolution to the
// nominal capacity of its data rate.
func renderTrack(b *TrackBuilder, ch geom.CylHead, t *track.Track) {
	rate, enc := b.DataRate, b.Encoding()

	if enc == geom.EncodingAmiga {
		b.AddAmigaTrackStart()
		for _, s := range t.Sectors() {
			data := make([]byte, amigaSectorSize)
			copy(data, s.DataCopy(0))
			b.AddAmigaSector(ch, s.Header.Sector, data)
		}
	} else {
		b.AddTrackStart(false)
		_, defaultGap3 := geom.GapSizes(rate, t.Len())
		for _, s := range t.Sectors() {
			b.SetEncoding(s.Encoding)
			gap3 := s.Gap3
			if gap3 == 0 {
				gap3 = defaultGap3
			}
			b.AddSector(s, gap3, false)
		}
		b.SetEncoding(enc)
	}

	capacity := t.TrackLen
	if capacity == 0 {
		capacity = geom.RawTrackCapacity(geom.DriveSpeed(rate), rate, geom.EncodingMFM)
	}
	cellsPerByte := 16
	if b.Encoding() == geom.EncodingFM {
		cellsPerByte = 32
	}
	if fill := (capacity - b.Cells()) / cellsPerByte; fill > 0 {
		b.AddGap(fill, -1)
	}
}

// BuildBitstream renders a track as a one-revolution bitstream.
func BuildBitstream(ch geom.CylHead, t *track.Track) *bitbuf.BitBuffer {
	rate, enc := trackFormat(t)
	b := NewBitstreamBuilder(rate, enc)
	renderTrack(b.TrackBuilder, ch, t)
	return b.Buffer()
}

// BuildFlux renders a track as one revolution of flux intervals.
func BuildFlux(ch geom.CylHead, t *track.Track) pll.FluxData {
	rate, enc := trackFormat(t)
	b := NewFluxBuilder(ch, rate, enc)
	renderTrack(b.TrackBuilder, ch, t)
	return b.FluxData()
}
