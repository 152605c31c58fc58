// Package disk collects the tracks of one floppy disk in whatever form
// they were captured, decoding them on demand.
package disk

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/scan"
	"github.com/sergev/fluxscan/track"
	"golang.org/x/exp/slices"
)

// UnknownType is the type of a disk that didn't come from an image.
const UnknownType = "<unknown>"

// Disk maps each CylHead to its TrackData. All methods are safe for
// concurrent use; decoding is serialized, as it shares one scanner.
type Disk struct {
	// Layout is the regular format the disk was formatted with, if any.
	Layout geom.Format

	mu       sync.Mutex
	tracks   map[geom.CylHead]*TrackData
	metadata map[string]string
	typ      string
	dec      Decoder
	log      hclog.Logger
}

// New returns an empty disk decoding through scanner. The disk gets a
// fresh "id" in its metadata.
func New(scanner *scan.Scanner, logger hclog.Logger) *Disk {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if scanner == nil {
		scanner = scan.New(scan.DefaultOptions(), logger, nil)
	}

	id := uuid.New()
	return &Disk{
		tracks:   make(map[geom.CylHead]*TrackData),
		metadata: map[string]string{"id": id.String()},
		typ:      UnknownType,
		dec:      scanner,
		log:      logger.Named("disk").With("disk", id.String()),
	}
}

// Type returns the image type the disk was loaded from.
func (d *Disk) Type() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typ
}

func (d *Disk) SetType(typ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typ = typ
}

// Metadata returns a copy of the disk's metadata.
func (d *Disk) Metadata() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		m[k] = v
	}
	return m
}

// SetMetadata stores one metadata value.
func (d *Disk) SetMetadata(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata[key] = value
}

// get returns the track data for ch, creating an empty entry.
// Callers hold d.mu.
func (d *Disk) get(ch geom.CylHead) *TrackData {
	td, ok := d.tracks[ch]
	if !ok {
		td = NewTrackData(ch)
		d.tracks[ch] = td
	}
	return td
}

// Read returns the track data for ch. A track never written reads as
// empty.
func (d *Disk) Read(ch geom.CylHead) *TrackData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.get(ch)
}

// ReadTrack returns the sectors of a track, decoding them if needed.
func (d *Disk) ReadTrack(ch geom.CylHead) (*track.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	td := d.get(ch)
	decoded := td.HasTrack()
	t, err := td.Track(d.dec)
	if err != nil {
		return nil, err
	}
	if !decoded {
		d.log.Trace("decoded track", "track", ch, "from", td.Kind(), "sectors", t.Len())
	}
	return t, nil
}

// ReadBitstream returns the bitstream of a track.
func (d *Disk) ReadBitstream(ch geom.CylHead) (*bitbuf.BitBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.get(ch).Bitstream(d.dec)
}

// ReadFlux returns the flux of a track.
func (d *Disk) ReadFlux(ch geom.CylHead) (pll.FluxData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.get(ch).Flux(d.dec)
}

// Write replaces the track at td.CylHead and returns td.
func (d *Disk) Write(td *TrackData) *TrackData {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks[td.CylHead] = td
	d.log.Trace("wrote track", "track", td.CylHead, "kind", td.Kind())
	return td
}

func (d *Disk) WriteTrack(ch geom.CylHead, t *track.Track) *track.Track {
	d.Write(FromTrack(ch, t))
	return t
}

func (d *Disk) WriteBitstream(ch geom.CylHead, b *bitbuf.BitBuffer) *bitbuf.BitBuffer {
	d.Write(FromBitstream(ch, b))
	return b
}

func (d *Disk) WriteFlux(ch geom.CylHead, flux pll.FluxData, normalised bool) pll.FluxData {
	d.Write(FromFlux(ch, flux, normalised))
	return flux
}

// Cyls returns one more than the highest cylinder held.
func (d *Disk) Cyls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cyls()
}

func (d *Disk) cyls() int {
	n := 0
	for ch := range d.tracks {
		n = max(n, ch.Cyl+1)
	}
	return n
}

// Heads returns one more than the highest head held.
func (d *Disk) Heads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heads()
}

func (d *Disk) heads() int {
	n := 0
	for ch := range d.tracks {
		n = max(n, ch.Head+1)
	}
	return n
}

// order lists every track position within the disk's extent, head by
// head when cylsFirst is set.
func order(cyls, heads int, cylsFirst bool) []geom.CylHead {
	var list []geom.CylHead
	if cylsFirst {
		for head := 0; head < heads; head++ {
			for cyl := 0; cyl < cyls; cyl++ {
				list = append(list, geom.NewCylHead(cyl, head))
			}
		}
		return list
	}
	for cyl := 0; cyl < cyls; cyl++ {
		for head := 0; head < heads; head++ {
			list = append(list, geom.NewCylHead(cyl, head))
		}
	}
	return list
}

// Each decodes every track within the disk's extent and calls fn with
// it, stopping at the first error.
func (d *Disk) Each(fn func(ch geom.CylHead, t *track.Track) error, cylsFirst bool) error {
	d.mu.Lock()
	list := order(d.cyls(), d.heads(), cylsFirst)
	d.mu.Unlock()

	for _, ch := range list {
		t, err := d.ReadTrack(ch)
		if err != nil {
			return err
		}
		if err := fn(ch, t); err != nil {
			return err
		}
	}
	return nil
}

// Format replaces the disk contents with freshly formatted tracks,
// filled in order from data. Tracks beyond the end of data keep the
// format's fill byte.
func (d *Disk) Format(f geom.Format, data []byte) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("formatting disk: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracks = make(map[geom.CylHead]*TrackData)
	for _, ch := range order(f.Cyls, f.Heads, f.CylsFirst) {
		t := track.New()
		t.Format(ch, f)
		if len(data) > 0 {
			data = t.Populate(data)
		}
		d.tracks[ch] = FromTrack(ch, t)
	}
	d.Layout = f

	if len(data) > 0 {
		d.log.Warn("image data beyond the end of the format", "bytes", len(data))
	}
	return nil
}

// FlipSides swaps heads 0 and 1. The sector headers are left as they
// were recorded.
func (d *Disk) FlipSides() {
	d.mu.Lock()
	defer d.mu.Unlock()

	flipped := make(map[geom.CylHead]*TrackData, len(d.tracks))
	for ch, td := range d.tracks {
		ch.Head ^= 1
		td.CylHead = ch
		flipped[ch] = td
	}
	d.tracks = flipped
}

// Resize drops tracks outside cyls x heads, and adds an empty track at
// the far corner if the disk is smaller. Resizing to zero clears it.
func (d *Disk) Resize(cyls, heads int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cyls <= 0 || heads <= 0 {
		d.tracks = make(map[geom.CylHead]*TrackData)
		return
	}

	for ch := range d.tracks {
		if ch.Cyl >= cyls || ch.Head >= heads {
			delete(d.tracks, ch)
		}
	}
	if d.cyls() < cyls || d.heads() < heads {
		d.get(geom.NewCylHead(cyls-1, heads-1))
	}
}

// Find returns the sector with header h, or nil if its track doesn't
// hold one.
func (d *Disk) Find(h geom.Header) *track.Sector {
	t, err := d.ReadTrack(h.CylHead())
	if err != nil {
		d.log.Warn("can't search track", "track", h.CylHead(), "error", err)
		return nil
	}
	return t.Find(h)
}

// GetSector returns the sector with header h holding its full data.
func (d *Disk) GetSector(h geom.Header) (*track.Sector, error) {
	t, err := d.ReadTrack(h.CylHead())
	if err != nil {
		return nil, err
	}
	return t.GetSector(h)
}

// Merge folds the tracks of another read of the same disk into d.
func (d *Disk) Merge(o *Disk) {
	if o == d {
		return
	}

	o.mu.Lock()
	other := make([]*TrackData, 0, len(o.tracks))
	for _, td := range o.tracks {
		other = append(other, td)
	}
	o.mu.Unlock()

	slices.SortFunc(other, func(a, b *TrackData) int {
		switch {
		case a.CylHead.Less(b.CylHead):
			return -1
		case b.CylHead.Less(a.CylHead):
			return 1
		}
		return 0
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, td := range other {
		d.get(td.CylHead).Add(td)
	}
	d.log.Debug("merged disk", "tracks", len(other))
}

// Clear removes every track and the format.
func (d *Disk) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks = make(map[geom.CylHead]*TrackData)
	d.Layout = geom.Format{}
}

var _ Decoder = (*scan.Scanner)(nil)
