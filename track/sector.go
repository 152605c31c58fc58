// Package track models decoded floppy tracks: sectors with their data
// copies and CRC state, and the tracks that hold them in rotational order.
package track

import (
	"bytes"
	"fmt"

	"github.com/sergev/fluxscan/geom"
)

// MergeResult describes what a new read did to a sector.
type MergeResult int

const (
	Unchanged MergeResult = iota
	Matched
	Improved
	NewData
)

func (r MergeResult) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Matched:
		return "matched"
	case Improved:
		return "improved"
	case NewData:
		return "new data"
	}
	return fmt.Sprintf("MergeResult(%d)", int(r))
}

// DefaultMaxCopies is the number of differing data copies kept per sector.
const DefaultMaxCopies = 3

// Policy holds the caller's tolerance settings for sector data.
type Policy struct {
	MaxCopies  int  // data copies kept while the CRC is bad; 0 means DefaultMaxCopies
	NormalDisk bool // only sectors of exactly their natural size count as good
	Fill       int  // byte used to pad created data, or -1 for zero
}

// DefaultPolicy returns the policy used when the caller sets none.
func DefaultPolicy() Policy {
	return Policy{MaxCopies: DefaultMaxCopies, Fill: -1}
}

func (p Policy) maxCopies() int {
	if p.MaxCopies <= 0 {
		return DefaultMaxCopies
	}
	return p.MaxCopies
}

func (p Policy) fillByte() byte {
	if p.Fill < 0 {
		return 0
	}
	return byte(p.Fill)
}

// DataCopy is one read of a sector's data field.
type DataCopy struct {
	Data      []byte
	ReadCount int // times this exact content has been read
}

// Sector is one logical sector recovered from a track.
type Sector struct {
	Header     geom.Header
	DataRate   geom.DataRate
	Encoding   geom.Encoding
	Offset     int  // bit offset of the ID field from the index
	Revolution int  // revolution the sector was read on
	Gap3       int  // inter-sector gap size
	DAM        byte // data address mark
	Policy     Policy

	badIDCRC     bool
	badDataCRC   bool
	copies       []DataCopy
	readAttempts int
}

// NewSector returns a sector without data.
func NewSector(rate geom.DataRate, enc geom.Encoding, header geom.Header) *Sector {
	return &Sector{
		Header:   header,
		DataRate: rate,
		Encoding: enc,
		DAM:      geom.DAM,
		Policy:   DefaultPolicy(),
	}
}

// CopyWithoutData returns a copy of the sector's identity and state
// without any data copies.
func (s *Sector) CopyWithoutData(keepReadAttempts bool) *Sector {
	c := *s
	c.copies = nil
	c.badDataCRC = false
	if !keepReadAttempts {
		c.readAttempts = 0
	}
	return &c
}

// Clone returns a deep copy of the sector.
func (s *Sector) Clone() *Sector {
	c := *s
	c.copies = make([]DataCopy, len(s.copies))
	for i, dc := range s.copies {
		c.copies[i] = DataCopy{Data: bytes.Clone(dc.Data), ReadCount: dc.ReadCount}
	}
	return &c
}

// Equal reports whether two sectors have the same header and the same
// data over the natural sector size.
func (s *Sector) Equal(o *Sector) bool {
	if s.Header != o.Header {
		return false
	}
	if len(s.copies) == 0 && len(o.copies) == 0 {
		return true
	}
	if len(s.copies) == 0 || len(o.copies) == 0 {
		return false
	}
	if s.DataSize() < s.Size() || o.DataSize() < o.Size() {
		return false
	}
	return bytes.Equal(s.copies[0].Data[:s.Size()], o.copies[0].Data[:s.Size()])
}

// Size returns the natural data length implied by the header.
func (s *Sector) Size() int {
	return s.Header.SectorSize()
}

// DataSize returns the length of the first data copy.
func (s *Sector) DataSize() int {
	if len(s.copies) == 0 {
		return 0
	}
	return len(s.copies[0].Data)
}

// Copies returns the number of data copies held.
func (s *Sector) Copies() int {
	return len(s.copies)
}

// Datas returns the data copies.
func (s *Sector) Datas() []DataCopy {
	return s.copies
}

// DataCopy returns the data of copy i, clamped to the copies held.
func (s *Sector) DataCopy(i int) []byte {
	if len(s.copies) == 0 {
		return nil
	}
	i = max(min(i, len(s.copies)-1), 0)
	return s.copies[i].Data
}

// ReadAttempts returns the number of reads that produced this sector.
func (s *Sector) ReadAttempts() int {
	return s.readAttempts
}

// AddReadAttempts counts further reads of the sector.
func (s *Sector) AddReadAttempts(n int) {
	s.readAttempts += n
}

func (s *Sector) HasData() bool {
	return len(s.copies) != 0
}

// HasGoodData reports data with a good CRC and no trailing gap bytes.
func (s *Sector) HasGoodData() bool {
	return s.HasData() && !s.badDataCRC && !s.HasGapData()
}

func (s *Sector) HasGapData() bool {
	return s.DataSize() > s.Size()
}

func (s *Sector) HasShortData() bool {
	return s.DataSize() < s.Size()
}

func (s *Sector) HasNormalData() bool {
	return s.HasData() && s.DataSize() == s.Size()
}

func (s *Sector) HasGoodNormalData() bool {
	return s.HasGoodData() && s.HasNormalData()
}

func (s *Sector) HasBadIDCRC() bool {
	return s.badIDCRC
}

func (s *Sector) HasBadDataCRC() bool {
	return s.badDataCRC
}

func (s *Sector) IsDeleted() bool {
	return s.DAM == geom.DAMDeleted || s.DAM == geom.DAMDeletedAlt
}

func (s *Sector) IsAltDAM() bool {
	return s.DAM == geom.DAMAlt
}

func (s *Sector) IsRX02DAM() bool {
	return s.DAM == geom.DAMRX02
}

// is8KCandidate reports the geometry that +3 and CPC disks treat as a
// virtual complete 6K sector.
func (s *Sector) is8KCandidate() bool {
	return s.DataRate == geom.DataRate250K && s.Encoding == geom.EncodingMFM && s.Header.Size == 6
}

// Is8KSector reports an 8K sector holding data.
func (s *Sector) Is8KSector() bool {
	return s.is8KCandidate() && s.HasData()
}

// IsChecksummable8K reports an 8K sector whose data carries a recognised
// secondary checksum.
func (s *Sector) IsChecksummable8K() bool {
	return s.Is8KSector() && len(ChecksumMethods(s.copies[0].Data)) > 0
}

// HasStableData reports data that can be trusted: a good CRC, or a
// recognised secondary checksum outside normal-disk mode.
func (s *Sector) HasStableData() bool {
	if !s.HasData() {
		return false
	}
	if !s.Policy.NormalDisk && s.IsChecksummable8K() {
		return true
	}
	return !s.badDataCRC
}

// SetBadIDCRC marks the header CRC. A bad header cannot own data.
func (s *Sector) SetBadIDCRC(bad bool) {
	s.badIDCRC = bad
	if bad {
		s.RemoveData()
	}
}

// SetBadDataCRC marks the data CRC. Clearing it leaves exactly one copy
// of at least the natural size, created or padded with the fill byte.
func (s *Sector) SetBadDataCRC(bad bool) {
	s.badDataCRC = bad
	if bad {
		return
	}

	fill := s.Policy.fillByte()
	if !s.HasData() {
		s.copies = append(s.copies, DataCopy{Data: bytes.Repeat([]byte{fill}, s.Size()), ReadCount: 1})
		return
	}

	s.copies = s.copies[:1]
	if short := s.Size() - s.DataSize(); short > 0 {
		s.copies[0].Data = append(s.copies[0].Data, bytes.Repeat([]byte{fill}, short)...)
	}
}

// EraseData removes one data copy.
func (s *Sector) EraseData(i int) {
	s.copies = append(s.copies[:i], s.copies[i+1:]...)
}

// ResizeData keeps only the first n copies.
func (s *Sector) ResizeData(n int) {
	if n < len(s.copies) {
		s.copies = s.copies[:n]
	}
}

// RemoveData drops all data and resets the data state.
func (s *Sector) RemoveData() {
	s.copies = nil
	s.badDataCRC = false
	s.DAM = geom.DAM
}

// LimitCopies keeps at most n copies.
func (s *Sector) LimitCopies(n int) {
	s.ResizeData(n)
}

// RemoveGapData trims every copy to the natural size. With keepCRC a bad
// sector keeps its two CRC bytes.
func (s *Sector) RemoveGapData(keepCRC bool) {
	if !s.HasGapData() {
		return
	}
	for i := range s.copies {
		d := s.copies[i].Data
		if keepCRC && s.badDataCRC && len(d) >= s.Size()+2 {
			s.copies[i].Data = d[:s.Size()+2]
		} else if len(d) > s.Size() {
			s.copies[i].Data = d[:s.Size()]
		}
	}
}

// ToleratedSame reports whether o is the same physical sector read again:
// same identity and an ID offset within byteTolerance encoded bytes,
// allowing for the track wrapping.
func (s *Sector) ToleratedSame(o *Sector, byteTolerance, trackLen int) bool {
	if s.Header != o.Header || s.DataRate != o.DataRate || s.Encoding != o.Encoding {
		return false
	}
	bitsPerByte := 16
	if s.Encoding == geom.EncodingFM {
		bitsPerByte = 32
	}
	return offsetDistance(s.Offset, o.Offset, trackLen) <= byteTolerance*bitsPerByte
}

// offsetDistance returns the shorter way round the track between two
// bit offsets.
func offsetDistance(a, b, trackLen int) int {
	lo, hi := min(a, b), max(a, b)
	d := hi - lo
	if trackLen > 0 {
		d = min(d, trackLen+lo-hi)
	}
	return d
}

func (s *Sector) String() string {
	status := "ok"
	switch {
	case s.badIDCRC:
		status = "bad id crc"
	case !s.HasData():
		status = "no data"
	case s.badDataCRC:
		status = "bad data crc"
	}
	return fmt.Sprintf("%s %s %s offset %d copies %d (%s)",
		s.Header, s.Encoding, s.DataRate, s.Offset, len(s.copies), status)
}
