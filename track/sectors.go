package track

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/sergev/fluxscan/geom"
)

// Sectors is a list of sectors.
type Sectors []*Sector

// Headers returns the sector headers in list order.
func (ss Sectors) Headers() geom.Headers {
	hs := make(geom.Headers, len(ss))
	for i, s := range ss {
		hs[i] = s.Header
	}
	return hs
}

// HasIDSequence reports whether sector ids first..first+length-1 are all present.
func (ss Sectors) HasIDSequence(first, length int) bool {
	return ss.Headers().HasIDSequence(first, length)
}

// Contains reports whether ss holds the same physical sector as o.
func (ss Sectors) Contains(o *Sector, trackLen int) bool {
	return slices.ContainsFunc(ss, func(s *Sector) bool {
		return s.ToleratedSame(o, geom.CompareToleranceBytes, trackLen)
	})
}

func (ss Sectors) String() string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

// UniqueSectors collects sectors from several reads, keeping one entry
// per physical sector. Entries are ordered by header, then offset.
type UniqueSectors struct {
	trackLen int
	sectors  Sectors
}

// NewUniqueSectors returns an empty set for a track of trackLen cells.
func NewUniqueSectors(trackLen int) *UniqueSectors {
	return &UniqueSectors{trackLen: trackLen}
}

func compareSectors(a, b *Sector) int {
	switch {
	case a.Header.Less(b.Header):
		return -1
	case b.Header.Less(a.Header):
		return 1
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}

// Add inserts s unless the same physical sector is already present.
func (u *UniqueSectors) Add(s *Sector) bool {
	if u.Contains(s) {
		return false
	}
	i, _ := slices.BinarySearchFunc(u.sectors, s, compareSectors)
	u.sectors = slices.Insert(u.sectors, i, s)
	return true
}

// AddTrack adds every sector of t.
func (u *UniqueSectors) AddTrack(t *Track) int {
	added := 0
	for _, s := range t.Sectors() {
		if u.Add(s) {
			added++
		}
	}
	return added
}

// Contains reports whether the same physical sector is present.
func (u *UniqueSectors) Contains(s *Sector) bool {
	return u.sectors.Contains(s, u.trackLen)
}

func (u *UniqueSectors) Len() int {
	return len(u.sectors)
}

// Sectors returns the entries in header order.
func (u *UniqueSectors) Sectors() Sectors {
	return u.sectors
}

// StableSectors returns the entries holding stable data.
func (u *UniqueSectors) StableSectors() Sectors {
	var stable Sectors
	for _, s := range u.sectors {
		if !s.HasBadIDCRC() && s.HasStableData() {
			stable = append(stable, s)
		}
	}
	return stable
}

// AnyIDsNotContained reports whether any sector id in first..last is
// missing from the set.
func (u *UniqueSectors) AnyIDsNotContained(first, last int) bool {
	return !u.sectors.Headers().HasIDSequence(first, last-first+1)
}
