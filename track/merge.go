package track

import (
	"bytes"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/sergev/fluxscan/geom"
)

// complete8K is the length of data that makes an 8K sector whole:
// the 6K a +3 or CPC FDC can read back.
const complete8K = 0x1800

// CopySet is the data state of one sector.
type CopySet struct {
	Copies []DataCopy
	BadCRC bool
	DAM    byte
}

// MergeCopies folds one newly read data field into a sector's data state
// and returns the new state. The input set is not modified.
//
// size is the natural data length of the sector, candidate8K reports
// the 250Kbps MFM size-6 geometry whose secondary checksums decide
// which copy to keep, and maxCopies bounds the copies kept.
//
// A good read replaces bad data, an identical read only counts itself,
// and a conflicting data mark never overrides a normal one.
func MergeCopies(set CopySet, size int, candidate8K bool, maxCopies int, dc DataCopy, badCRC bool, dam byte) (CopySet, MergeResult) {
	set.Copies = slices.Clone(set.Copies)
	dc.Data = bytes.Clone(dc.Data)
	if dc.ReadCount <= 0 {
		dc.ReadCount = 1
	}

	ret := NewData
	hasData := func() bool { return len(set.Copies) > 0 }
	is8K := func() bool { return candidate8K && hasData() }

	// Bad data never replaces good data.
	if badCRC && hasData() && !set.BadCRC && len(set.Copies[0].Data) <= size {
		return set, Unchanged
	}

	// Good data replaces everything bad.
	if !badCRC && set.BadCRC {
		set = CopySet{DAM: geom.DAM}
		ret = Improved
	}

	if is8K() {
		if len(ChecksumMethods(dc.Data)) > 0 {
			// The new copy checks out, so it replaces the rest.
			set = CopySet{DAM: geom.DAM}
			ret = Improved
		} else if len(set.Copies) == 1 && len(ChecksumMethods(set.Copies[0].Data)) > 0 {
			return set, Unchanged
		}
	}

	complete := len(dc.Data)
	if is8K() {
		complete = complete8K
	}

	for i := range set.Copies {
		old := set.Copies[i].Data
		common := min(len(old), len(dc.Data), complete)
		if !bytes.Equal(old[:common], dc.Data[:common]) {
			continue
		}

		if len(old) == len(dc.Data) {
			set.Copies[i].ReadCount += dc.ReadCount
			return set, Unchanged
		}

		if len(dc.Data) < len(old) {
			// A shorter copy adds nothing unless the old one is incomplete.
			if len(dc.Data) < complete {
				return set, Unchanged
			}
		} else if len(old) >= complete {
			return set, Unchanged
		}

		set.Copies = slices.Delete(set.Copies, i, i+1)
		ret = Improved
		break
	}

	if hasData() {
		// A normal mark beats a deleted one, and a deleted one beats the rest.
		if set.DAM != dam && (set.DAM == geom.DAM || (set.DAM == geom.DAMDeleted && dam != geom.DAM)) {
			return set, Unchanged
		}

		if !set.BadCRC {
			return set, Unchanged
		}

		// Differing bad copies are kept at a common length.
		n := min(len(dc.Data), len(set.Copies[0].Data))
		dc.Data = resize(dc.Data, n)
		for i := range set.Copies {
			set.Copies[i].Data = resize(set.Copies[i].Data, n)
		}
	}

	before := len(set.Copies)
	set.Copies = append(set.Copies, dc)
	if len(set.Copies) > maxCopies {
		set.Copies = set.Copies[:maxCopies]
	}
	if len(set.Copies) == before {
		return set, Unchanged
	}

	set.BadCRC = badCRC
	set.DAM = dam
	return set, ret
}

// resize truncates p to n bytes, or pads it with zeros.
func resize(p []byte, n int) []byte {
	if len(p) >= n {
		return p[:n]
	}
	return append(p, make([]byte, n-len(p))...)
}

func (s *Sector) copySet() CopySet {
	return CopySet{Copies: s.copies, BadCRC: s.badDataCRC, DAM: s.DAM}
}

func (s *Sector) setCopySet(set CopySet) {
	s.copies = set.Copies
	s.badDataCRC = set.BadCRC
	s.DAM = set.DAM
}

// Add merges one read of the sector's data field.
func (s *Sector) Add(data []byte, badCRC bool, dam byte) MergeResult {
	return s.AddCopy(DataCopy{Data: data, ReadCount: 1}, badCRC, dam)
}

// AddCopy merges a data copy carrying its own read count.
func (s *Sector) AddCopy(dc DataCopy, badCRC bool, dam byte) MergeResult {
	// A sector with a bad header has nowhere to keep data.
	if s.badIDCRC {
		return Unchanged
	}

	set, ret := MergeCopies(s.copySet(), s.Size(), s.is8KCandidate(), s.Policy.maxCopies(), dc, badCRC, dam)
	s.setCopySet(set)
	return ret
}

// Merge folds another read of the same sector into s. The two must share
// header, data rate and encoding.
func (s *Sector) Merge(o *Sector) MergeResult {
	if s.Header != o.Header || s.DataRate != o.DataRate || s.Encoding != o.Encoding {
		panic(fmt.Sprintf("track: merging %s into %s", o, s))
	}

	s.readAttempts += o.readAttempts

	// A bad header carries nothing worth keeping.
	if o.badIDCRC {
		return Unchanged
	}

	ret := Unchanged
	if s.badIDCRC {
		s.badIDCRC = false
		ret = Improved
	}

	// Good data is never degraded by a bad read.
	if s.HasData() && !s.badDataCRC && o.badDataCRC {
		return ret
	}

	for _, dc := range o.copies {
		r := s.AddCopy(dc, o.badDataCRC, o.DAM)
		if r == Improved || r == NewData {
			ret = r
		}
	}
	return ret
}
