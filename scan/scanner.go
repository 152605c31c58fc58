// Package scan finds sectors in flux and bitstream captures of floppy
// tracks. It recognises IBM System 34 MFM and FM, AmigaDOS, and Jupiter
// Ace tracks, and detects GCR content it can't decode.
package scan

import (
	"errors"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// ErrUnsupportedFormat is returned for tracks recognised as a format
// that can't be decoded. Treating them as blank would lose data.
var ErrUnsupportedFormat = errors.New("scan: format not supported")

// Recorder observes scanner activity.
type Recorder interface {
	TrackScanned(ch geom.CylHead, t *track.Track, elapsed time.Duration)
	WobbleRetry(enc geom.Encoding)
	UnsupportedFormat(enc geom.Encoding)
}

type nopRecorder struct{}

func (nopRecorder) TrackScanned(geom.CylHead, *track.Track, time.Duration) {}
func (nopRecorder) WobbleRetry(geom.Encoding)                             {}
func (nopRecorder) UnsupportedFormat(geom.Encoding)                       {}

// Scanner decodes tracks with a fixed set of options. A Scanner may be
// used from one goroutine at a time; scanners for different tracks can
// share a Hint.
type Scanner struct {
	opts Options
	log  hclog.Logger
	hint *Hint
	rec  Recorder
}

// New returns a scanner. A nil logger logs warnings to stderr, and a nil
// hint gives the scanner one of its own.
func New(opts Options, logger hclog.Logger, hint *Hint) *Scanner {
	opts.Normalize()
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "fluxscan",
			Level:  hclog.Warn,
			Output: os.Stderr,
		})
	}
	if hint == nil {
		hint = &Hint{}
	}
	return &Scanner{
		opts: opts,
		log:  logger.Named("scan"),
		hint: hint,
		rec:  nopRecorder{},
	}
}

// WithRecorder attaches a recorder and returns the scanner.
func (s *Scanner) WithRecorder(rec Recorder) *Scanner {
	if rec == nil {
		rec = nopRecorder{}
	}
	s.rec = rec
	return s
}

// Options returns the normalized options in use.
func (s *Scanner) Options() Options {
	return s.opts
}

// Hint returns the detection hint shared by this scanner.
func (s *Scanner) Hint() *Hint {
	return s.hint
}

// family maps FM onto MFM, which share a scanner.
func family(enc geom.Encoding) geom.Encoding {
	if enc == geom.EncodingFM {
		return geom.EncodingMFM
	}
	return enc
}

// encodings returns the detection order: the remembered encoding, then
// MFM and Amiga, then GCR if enabled.
func (s *Scanner) encodings() []geom.Encoding {
	if s.opts.Encoding != geom.EncodingUnknown {
		return []geom.Encoding{family(s.opts.Encoding)}
	}

	candidates := []geom.Encoding{family(s.hint.Encoding()), geom.EncodingMFM, geom.EncodingAmiga}
	if s.opts.GCR {
		candidates = append(candidates, geom.EncodingGCR)
	}

	var order []geom.Encoding
	for _, enc := range candidates {
		if enc == geom.EncodingUnknown || containsEncoding(order, enc) {
			continue
		}
		order = append(order, enc)
	}
	return order
}

func containsEncoding(list []geom.Encoding, enc geom.Encoding) bool {
	for _, e := range list {
		if e == enc {
			return true
		}
	}
	return false
}

func (s *Scanner) aceOnly() bool {
	return s.opts.Ace || s.opts.Encoding == geom.EncodingAce
}

// decode runs flux through the PLL into a new bitstream.
func (s *Scanner) decode(flux pll.FluxData, rate geom.DataRate, bitcellNs, scale int) *bitbuf.BitBuffer {
	dec := pll.NewDecoder(flux, bitcellNs, scale)
	return bitbuf.FromDecoder(rate, dec, s.log)
}

// Decode converts flux to a bitstream at the nominal cell width of a
// data rate.
func (s *Scanner) Decode(flux pll.FluxData, rate geom.DataRate) *bitbuf.BitBuffer {
	return s.decode(flux, rate, rate.BitcellNs(), 100)
}

// remember records the winning combination for the next track.
func (s *Scanner) remember(enc geom.Encoding, t *track.Track) {
	s.hint.Set(enc, t.At(0).DataRate)
}

func (s *Scanner) finish(ch geom.CylHead, t *track.Track, start time.Time) {
	elapsed := time.Since(start)
	s.rec.TrackScanned(ch, t, elapsed)
	s.log.Debug("track scanned", "track", ch, "sectors", t.Len(), "elapsed", elapsed)
}

// ScanFlux decodes a flux capture, trying each candidate encoding until
// one finds sectors. Jupiter Ace tracks are only looked for when asked,
// as their unused space often holds stale MFM sectors.
func (s *Scanner) ScanFlux(ch geom.CylHead, flux pll.FluxData) (*track.Track, error) {
	start := time.Now()

	if s.aceOnly() {
		t := s.ScanFluxAce(ch, flux)
		s.finish(ch, t, start)
		return t, nil
	}

	t := track.New()
	for _, enc := range s.encodings() {
		var err error
		switch enc {
		case geom.EncodingMFM:
			t = s.ScanFluxMFMFM(ch, flux, s.hint.DataRate())
		case geom.EncodingAmiga:
			t = s.ScanFluxAmiga(ch, flux)
		case geom.EncodingGCR:
			t, err = s.ScanFluxGCR(ch, flux)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		if !t.Empty() {
			s.remember(enc, t)
			break
		}
	}

	s.finish(ch, t, start)
	return t, nil
}

// ScanBitstream finds sectors in a bitstream, trying each candidate
// encoding in turn. The data rate is the one the bitstream was captured
// at, so a data rate override doesn't apply.
func (s *Scanner) ScanBitstream(ch geom.CylHead, buf *bitbuf.BitBuffer) (*track.Track, error) {
	start := time.Now()

	if s.aceOnly() {
		t := s.ScanBitstreamAce(ch, buf)
		s.finish(ch, t, start)
		return t, nil
	}

	t := track.New()
	for _, enc := range s.encodings() {
		var err error
		switch enc {
		case geom.EncodingMFM:
			t = s.ScanBitstreamMFMFM(ch, buf)
		case geom.EncodingAmiga:
			t = s.ScanBitstreamAmiga(ch, buf)
		case geom.EncodingGCR:
			t, err = s.ScanBitstreamGCR(ch, buf)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		if !t.Empty() {
			s.remember(enc, t)
			break
		}
	}

	s.finish(ch, t, start)
	return t, nil
}
