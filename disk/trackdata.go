package disk

import (
	"fmt"

	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/builder"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// Kind is the most detailed form a TrackData was given in.
type Kind int

const (
	KindNone Kind = iota
	KindTrack
	KindBitstream
	KindFlux
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindBitstream:
		return "bitstream"
	case KindFlux:
		return "flux"
	}
	return "none"
}

// form flags which representations are held.
type form int

const (
	formTrack form = 1 << iota
	formBitstream
	formFlux
)

// TrackData holds one physical track as decoded sectors, a bitstream,
// flux, or any mix of them. Forms it wasn't given are derived on demand
// from the most detailed form it holds and kept until new source data
// arrives.
type TrackData struct {
	CylHead geom.CylHead

	kind    Kind
	sources form // forms that were added rather than derived
	held    form

	track      *track.Track
	bitstream  *bitbuf.BitBuffer
	flux       pll.FluxData
	normalised bool
}

// NewTrackData returns an empty track.
func NewTrackData(ch geom.CylHead) *TrackData {
	return &TrackData{CylHead: ch}
}

// FromTrack returns track data holding decoded sectors.
func FromTrack(ch geom.CylHead, t *track.Track) *TrackData {
	td := NewTrackData(ch)
	td.AddTrack(t)
	return td
}

// FromBitstream returns track data holding a bitstream.
func FromBitstream(ch geom.CylHead, b *bitbuf.BitBuffer) *TrackData {
	td := NewTrackData(ch)
	td.AddBitstream(b)
	return td
}

// FromFlux returns track data holding flux revolutions.
func FromFlux(ch geom.CylHead, flux pll.FluxData, normalised bool) *TrackData {
	td := NewTrackData(ch)
	td.AddFlux(flux, normalised)
	return td
}

// Kind returns the most detailed form added.
func (td *TrackData) Kind() Kind {
	return td.kind
}

func (td *TrackData) HasTrack() bool {
	return td.held&formTrack != 0
}

func (td *TrackData) HasBitstream() bool {
	return td.held&formBitstream != 0
}

func (td *TrackData) HasFlux() bool {
	return td.held&formFlux != 0
}

// HasNormalisedFlux reports flux whose intervals were already corrected
// for drive speed variation.
func (td *TrackData) HasNormalisedFlux() bool {
	return td.HasFlux() && td.normalised
}

func (td *TrackData) promote(k Kind) {
	td.kind = max(td.kind, k)
}

// invalidate drops every derived form.
func (td *TrackData) invalidate() {
	derived := td.held &^ td.sources
	if derived&formTrack != 0 {
		td.track = nil
	}
	if derived&formBitstream != 0 {
		td.bitstream = nil
	}
	if derived&formFlux != 0 {
		td.flux = nil
	}
	td.held = td.sources
}

// AddTrack merges decoded sectors into the track.
func (td *TrackData) AddTrack(t *track.Track) {
	td.invalidate()
	if td.sources&formTrack != 0 {
		td.track.AddTrack(t)
	} else {
		td.track = t
	}
	td.sources |= formTrack
	td.held |= formTrack
	td.promote(KindTrack)
}

// AddBitstream replaces the bitstream. A track decoded from an earlier
// bitstream or flux is discarded.
func (td *TrackData) AddBitstream(b *bitbuf.BitBuffer) {
	td.invalidate()
	td.bitstream = b
	td.sources |= formBitstream
	td.held |= formBitstream
	td.promote(KindBitstream)
}

// AddFlux appends flux revolutions. The flux only counts as normalised
// if every part of it is.
func (td *TrackData) AddFlux(flux pll.FluxData, normalised bool) {
	td.invalidate()
	if td.sources&formFlux != 0 {
		td.normalised = td.normalised && normalised
	} else {
		td.normalised = normalised
	}
	td.flux = append(td.flux, flux...)
	td.sources |= formFlux
	td.held |= formFlux
	td.promote(KindFlux)
}

// Add merges every source form of o.
func (td *TrackData) Add(o *TrackData) {
	if o.sources&formFlux != 0 {
		td.AddFlux(o.flux, o.normalised)
	}
	if o.sources&formBitstream != 0 {
		td.AddBitstream(o.bitstream)
	}
	if o.sources&formTrack != 0 {
		td.AddTrack(o.track.Clone())
	}
}

// Preferred returns track data holding only the most detailed form.
func (td *TrackData) Preferred() *TrackData {
	p := NewTrackData(td.CylHead)
	switch td.kind {
	case KindFlux:
		p.AddFlux(td.flux, td.normalised)
	case KindBitstream:
		p.AddBitstream(td.bitstream)
	case KindTrack:
		p.AddTrack(td.track)
	}
	return p
}

// Decoder turns raw track forms into sectors.
type Decoder interface {
	ScanFlux(ch geom.CylHead, flux pll.FluxData) (*track.Track, error)
	ScanBitstream(ch geom.CylHead, buf *bitbuf.BitBuffer) (*track.Track, error)
	Decode(flux pll.FluxData, rate geom.DataRate) *bitbuf.BitBuffer
}

// Track returns the decoded sectors, scanning flux or the bitstream the
// first time it's needed.
func (td *TrackData) Track(dec Decoder) (*track.Track, error) {
	if td.HasTrack() {
		return td.track, nil
	}

	var t *track.Track
	var err error
	switch {
	case td.HasFlux():
		t, err = dec.ScanFlux(td.CylHead, td.flux)
	case td.HasBitstream():
		t, err = dec.ScanBitstream(td.CylHead, td.bitstream)
	default:
		t = track.New()
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", td.CylHead, err)
	}

	td.track = t
	td.held |= formTrack
	return t, nil
}

// Bitstream returns the bitstream, decoding it from flux at the data
// rate of the track's sectors, or rendering it from the sectors.
func (td *TrackData) Bitstream(dec Decoder) (*bitbuf.BitBuffer, error) {
	if td.HasBitstream() {
		return td.bitstream, nil
	}

	t, err := td.Track(dec)
	if err != nil {
		return nil, err
	}

	var b *bitbuf.BitBuffer
	if td.HasFlux() {
		rate := geom.DataRate250K
		if !t.Empty() {
			rate = t.At(0).DataRate
		}
		b = dec.Decode(td.flux, rate)
	} else {
		b = builder.BuildBitstream(td.CylHead, t)
	}

	td.bitstream = b
	td.held |= formBitstream
	return b, nil
}

// Flux returns the flux, rendering it from the sectors if the track was
// never given any.
func (td *TrackData) Flux(dec Decoder) (pll.FluxData, error) {
	if td.HasFlux() {
		return td.flux, nil
	}

	t, err := td.Track(dec)
	if err != nil {
		return nil, err
	}

	td.flux = builder.BuildFlux(td.CylHead, t)
	td.held |= formFlux
	return td.flux, nil
}

func (td *TrackData) String() string {
	return fmt.Sprintf("%s: %s", td.CylHead, td.kind)
}
