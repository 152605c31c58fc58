package track

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/sergev/fluxscan/geom"
)

var ErrSectorNotFound = errors.New("track: sector not found")

// AddResult tells how Track.Add placed a sector.
type AddResult int

const (
	AddUnchanged AddResult = iota
	AddAppend
	AddInsert
	AddMerge
)

func (r AddResult) String() string {
	switch r {
	case AddUnchanged:
		return "unchanged"
	case AddAppend:
		return "append"
	case AddInsert:
		return "insert"
	case AddMerge:
		return "merge"
	}
	return fmt.Sprintf("AddResult(%d)", int(r))
}

// Track is the sectors of one revolution, ordered by offset from the index.
// All sectors on a track share one data rate.
type Track struct {
	TrackLen  int // revolution length in bitstream cells, 0 if unknown
	TrackTime int // revolution time in microseconds, 0 if unknown

	sectors []*Sector
}

// New returns an empty track.
func New() *Track {
	return &Track{}
}

func (t *Track) Len() int {
	return len(t.sectors)
}

func (t *Track) Empty() bool {
	return len(t.sectors) == 0
}

// Sectors returns the sectors in rotational order.
func (t *Track) Sectors() Sectors {
	return t.sectors
}

// At returns sector i.
func (t *Track) At(i int) *Sector {
	return t.sectors[i]
}

// Clear removes all sectors and the timing information.
func (t *Track) Clear() {
	*t = Track{}
}

// Clone returns a deep copy of the track.
func (t *Track) Clone() *Track {
	c := &Track{TrackLen: t.TrackLen, TrackTime: t.TrackTime}
	for _, s := range t.sectors {
		c.sectors = append(c.sectors, s.Clone())
	}
	return c
}

// Add places a sector on the track. A sector without an offset is
// appended. A sector within CompareToleranceBits of one with the same
// header is merged into it; otherwise it is inserted in offset order.
func (t *Track) Add(s *Sector) AddResult {
	if len(t.sectors) > 0 && t.sectors[0].DataRate != s.DataRate {
		panic(fmt.Sprintf("track: can't mix data rates %s and %s on a track", t.sectors[0].DataRate, s.DataRate))
	}

	if s.Offset == 0 {
		t.sectors = append(t.sectors, s)
		return AddAppend
	}

	i := slices.IndexFunc(t.sectors, func(o *Sector) bool {
		return o.Header == s.Header && offsetDistance(o.Offset, s.Offset, t.TrackLen) <= geom.CompareToleranceBits
	})
	if i < 0 {
		pos := slices.IndexFunc(t.sectors, func(o *Sector) bool {
			return o.Offset > s.Offset
		})
		if pos < 0 {
			pos = len(t.sectors)
		}
		t.sectors = slices.Insert(t.sectors, pos, s)
		return AddInsert
	}

	existing := t.sectors[i]
	if existing.Merge(s) == Unchanged {
		return AddUnchanged
	}

	// Overlapping data can't hold differing copies.
	if t.DataOverlap(existing) && !t.Is8KSector() {
		existing.LimitCopies(1)
	}
	return AddMerge
}

// AddTrack merges every sector of o into t.
func (t *Track) AddTrack(o *Track) {
	t.TrackLen = max(t.TrackLen, o.TrackLen)
	t.TrackTime = max(t.TrackTime, o.TrackTime)
	for _, s := range o.sectors {
		t.Add(s.Clone())
	}
}

// Insert places a sector at position i.
func (t *Track) Insert(i int, s *Sector) {
	if len(t.sectors) > 0 && t.sectors[0].DataRate != s.DataRate {
		panic(fmt.Sprintf("track: can't mix data rates %s and %s on a track", t.sectors[0].DataRate, s.DataRate))
	}
	t.sectors = slices.Insert(t.sectors, i, s)
}

// Remove deletes and returns sector i.
func (t *Track) Remove(i int) *Sector {
	s := t.sectors[i]
	t.sectors = slices.Delete(t.sectors, i, i+1)
	return s
}

// IndexOf returns the position of s on the track, or -1.
func (t *Track) IndexOf(s *Sector) int {
	return slices.Index(t.sectors, s)
}

// Find returns the first sector with a matching header.
func (t *Track) Find(h geom.Header) *Sector {
	for _, s := range t.sectors {
		if s.Header == h {
			return s
		}
	}
	return nil
}

// FindExact returns the first sector matching header, data rate and encoding.
func (t *Track) FindExact(h geom.Header, rate geom.DataRate, enc geom.Encoding) *Sector {
	for _, s := range t.sectors {
		if s.Header == h && s.DataRate == rate && s.Encoding == enc {
			return s
		}
	}
	return nil
}

// GetSector returns the sector with a matching header that holds at
// least its natural size of data.
func (t *Track) GetSector(h geom.Header) (*Sector, error) {
	s := t.Find(h)
	if s == nil || s.DataSize() < s.Size() {
		return nil, fmt.Errorf("%w: %s", ErrSectorNotFound, h)
	}
	return s, nil
}

// SectorsByID returns the sectors sorted by header.
func (t *Track) SectorsByID() Sectors {
	sorted := slices.Clone(t.sectors)
	slices.SortStableFunc(sorted, func(a, b *Sector) int {
		switch {
		case a.Header.Less(b.Header):
			return -1
		case b.Header.Less(a.Header):
			return 1
		}
		return 0
	})
	return sorted
}

// DataExtentBits returns the distance from the sector's ID field to the
// next sector's, wrapping to the first sector after the last.
func (t *Track) DataExtentBits(s *Sector) int {
	i := t.IndexOf(s)
	if i < 0 {
		panic(fmt.Sprintf("track: %s is not on the track", s))
	}

	if i+1 < len(t.sectors) {
		return t.sectors[i+1].Offset - s.Offset
	}
	trackLen := t.TrackLen
	if trackLen == 0 {
		trackLen = geom.RawTrackCapacity(geom.DriveSpeed(s.DataRate), s.DataRate, s.Encoding)
	}
	return trackLen + t.sectors[0].Offset - s.Offset
}

// DataExtentBytes returns how many data bytes fit before the next
// sector's ID field. Encodings without IBM framing report the natural size.
func (t *Track) DataExtentBytes(s *Sector) int {
	if s.Encoding != geom.EncodingMFM && s.Encoding != geom.EncodingFM {
		return s.Size()
	}

	shift := 4
	if s.Encoding == geom.EncodingFM {
		shift = 5
	}
	gapBytes := t.DataExtentBits(s) >> shift
	overhead := geom.SectorOverhead(s.Encoding) - geom.SyncOverhead(s.Encoding)
	return max(gapBytes-overhead, 0)
}

// DataOverlap reports a positioned sector whose data runs into the next
// sector's ID field.
func (t *Track) DataOverlap(s *Sector) bool {
	return s.Offset != 0 && t.DataExtentBytes(s) < s.Size()
}

// IsMixedEncoding reports sectors in more than one encoding.
func (t *Track) IsMixedEncoding() bool {
	for _, s := range t.sectors[min(1, len(t.sectors)):] {
		if s.Encoding != t.sectors[0].Encoding {
			return true
		}
	}
	return false
}

// Is8KSector reports a track holding a single 8K sector.
func (t *Track) Is8KSector() bool {
	return len(t.sectors) == 1 && t.sectors[0].Is8KSector()
}

// IsRepeated reports whether another sector shares the header of s.
func (t *Track) IsRepeated(s *Sector) bool {
	n := 0
	for _, o := range t.sectors {
		if o.Header == s.Header {
			n++
		}
	}
	return n > 1
}

// GoodSectors returns the sectors whose data can be used as read.
func (t *Track) GoodSectors() Sectors {
	var good Sectors
	for _, s := range t.sectors {
		switch {
		case s.HasBadIDCRC() || !s.HasData():
		case !s.Policy.NormalDisk && s.IsChecksummable8K():
			good = append(good, s)
		case s.Policy.NormalDisk && !s.HasNormalData():
		case s.HasGoodData():
			good = append(good, s)
		}
	}
	return good
}

// StableSectors returns the sectors whose data is stable across reads.
func (t *Track) StableSectors() Sectors {
	var stable Sectors
	for _, s := range t.sectors {
		switch {
		case s.HasBadIDCRC() || !s.HasData():
		case !s.Policy.NormalDisk && s.IsChecksummable8K():
			stable = append(stable, s)
		case s.Policy.NormalDisk && !s.HasNormalData():
		case s.HasStableData():
			stable = append(stable, s)
		}
	}
	return stable
}

// HasGoodData reports whether every sector has good data. Sectors
// listed in good are taken as good already, and an 8K sector passing a
// secondary checksum counts as good.
func (t *Track) HasGoodData(good geom.Headers) bool {
	for _, s := range t.sectors {
		switch {
		case !s.HasBadIDCRC() && good.Contains(s.Header):
		case s.IsChecksummable8K():
		case !s.HasGoodData():
			return false
		}
	}
	return true
}

// HasStableData reports whether every sector has stable data, treating
// the sectors listed in stable as stable already.
func (t *Track) HasStableData(stable geom.Headers) bool {
	for _, s := range t.sectors {
		switch {
		case !s.HasBadIDCRC() && stable.Contains(s.Header):
		case !s.HasData():
			return false
		case s.Policy.NormalDisk && !s.HasNormalData():
			return false
		case !s.HasStableData():
			return false
		}
	}
	return true
}

// HasAnyGoodData reports whether any sector holds good data.
func (t *Track) HasAnyGoodData() bool {
	return slices.ContainsFunc(t.sectors, (*Sector).HasGoodData)
}

// NormalProbableSize returns the number of sectors a normal format of
// this track would hold. Ids far above the average, as used by copy
// protections, aren't counted.
func (t *Track) NormalProbableSize() int {
	sum, n := 0, 0
	for _, s := range t.sectors {
		if s.HasBadIDCRC() {
			continue
		}
		sum += s.Header.Sector - 1
		n++
	}
	if n == 0 {
		return 0
	}

	limit := int(math.Round(float64(sum)/float64(n)*2 + 1))
	count := 0
	for _, s := range t.sectors {
		if !s.HasBadIDCRC() && s.Header.Sector >= 1 && s.Header.Sector <= limit {
			count++
		}
	}
	return count
}

// Format replaces the track contents with a regular layout of sectors
// filled with the format's fill byte.
func (t *Track) Format(ch geom.CylHead, f geom.Format) {
	t.Clear()

	head := f.Head0
	if ch.Head != 0 {
		head = f.Head1
	}
	for _, id := range f.IDs(ch) {
		s := NewSector(f.DataRate, f.Encoding, geom.Header{Cyl: ch.Cyl, Head: head, Sector: id, Size: f.Size})
		s.Gap3 = f.Gap3
		s.Add(bytes.Repeat([]byte{f.Fill}, f.SectorSize()), false, geom.DAM)
		t.Add(s)
	}
}

// Populate fills the sectors with good data taken from p in sector id
// order, and returns the unused remainder. Sectors beyond the end of p
// keep the data they already hold, or the policy fill byte.
func (t *Track) Populate(p []byte) []byte {
	for _, s := range t.SectorsByID() {
		data := bytes.Repeat([]byte{s.Policy.fillByte()}, s.Size())
		copy(data, s.DataCopy(0))
		n := copy(data, p)
		p = p[n:]

		s.SetBadIDCRC(false)
		s.RemoveData()
		s.Add(data, false, geom.DAM)
		s.SetBadDataCRC(false)
	}
	return p
}

func (t *Track) String() string {
	return fmt.Sprintf("%d sectors, tracklen %d", len(t.sectors), t.TrackLen)
}
