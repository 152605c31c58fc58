package scan

import (
	"fmt"

	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// Apple GCR prologues and epilogue.
const (
	gcrAddressPrologue = 0xd5aa96
	gcrDataPrologue    = 0xd5aaad
	gcrEpilogue        = 0xdeaaeb
)

// gcrMarkLimit is the number of marks beyond which a track is taken to
// hold GCR data.
const gcrMarkLimit = 10

// gcrBitcellNs returns the cell width for a cylinder. Commodore GCR
// disks record the outer zones faster.
func gcrBitcellNs(cyl int) int {
	switch {
	case cyl < 17:
		return 3200
	case cyl < 24:
		return 3500
	case cyl < 30:
		return 3750
	}
	return 4000
}

// ScanFluxGCR decodes flux at the zone cell width for the cylinder.
func (s *Scanner) ScanFluxGCR(ch geom.CylHead, flux pll.FluxData) (*track.Track, error) {
	buf := s.decode(flux, geom.DataRate250K, gcrBitcellNs(ch.Cyl), 100)
	t, err := s.ScanBitstreamGCR(ch, buf)
	if t != nil {
		t.TrackTime = fluxTrackTime(flux)
	}
	return t, err
}

// ScanBitstreamGCR counts GCR address and data marks. Decoding isn't
// supported, so a track with enough marks fails with
// ErrUnsupportedFormat rather than appearing blank.
func (s *Scanner) ScanBitstreamGCR(ch geom.CylHead, buf *bitbuf.BitBuffer) (*track.Track, error) {
	t := track.New()
	buf.Seek(0)
	t.TrackLen = buf.TrackBitsize()

	var dword uint32
	marks := 0
	for !buf.Wrapped() {
		dword = dword<<1 | uint32(buf.Read1())
		switch dword & 0xffffff {
		case gcrAddressPrologue, gcrDataPrologue, gcrEpilogue:
			marks++
		}
	}

	if marks > gcrMarkLimit {
		s.rec.UnsupportedFormat(geom.EncodingGCR)
		return nil, fmt.Errorf("%w: %d GCR marks on %s", ErrUnsupportedFormat, marks, ch)
	}
	return t, nil
}
