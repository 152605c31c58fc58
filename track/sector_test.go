package track

import (
	"bytes"
	"testing"

	"github.com/sergev/fluxscan/geom"
)

func newTestSector(id int) *Sector {
	return NewSector(geom.DataRate250K, geom.EncodingMFM, geom.Header{Cyl: 1, Head: 0, Sector: id, Size: 2})
}

// pattern returns n bytes starting at seed and counting up.
func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestSectorAdd(t *testing.T) {
	good := pattern(512, 1)
	bad1 := pattern(512, 2)
	bad2 := pattern(512, 3)
	bad3 := pattern(512, 4)
	bad4 := pattern(512, 5)

	tests := []struct {
		name       string
		reads      [][]byte
		bad        []bool
		want       MergeResult
		wantCopies int
		wantBad    bool
	}{
		{"first good read", [][]byte{good}, []bool{false}, NewData, 1, false},
		{"identical reread", [][]byte{good, good}, []bool{false, false}, Unchanged, 1, false},
		{"good replaces bad", [][]byte{bad1, good}, []bool{true, false}, Improved, 1, false},
		{"bad does not replace good", [][]byte{good, bad1}, []bool{false, true}, Unchanged, 1, false},
		{"differing bad copies", [][]byte{bad1, bad2}, []bool{true, true}, NewData, 2, true},
		{"copies are limited", [][]byte{bad1, bad2, bad3, bad4}, []bool{true, true, true, true}, Unchanged, DefaultMaxCopies, true},
		{"repeated bad copy", [][]byte{bad1, bad2, bad1}, []bool{true, true, true}, Unchanged, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSector(1)
			var got MergeResult
			for i, data := range tt.reads {
				got = s.Add(data, tt.bad[i], geom.DAM)
			}
			if got != tt.want {
				t.Errorf("last Add() = %s, expected %s", got, tt.want)
			}
			if s.Copies() != tt.wantCopies {
				t.Errorf("Copies() = %d, expected %d", s.Copies(), tt.wantCopies)
			}
			if s.HasBadDataCRC() != tt.wantBad {
				t.Errorf("HasBadDataCRC() = %v, expected %v", s.HasBadDataCRC(), tt.wantBad)
			}
		})
	}
}

func TestSectorReadCount(t *testing.T) {
	s := newTestSector(1)
	data := pattern(512, 9)
	for i := 0; i < 3; i++ {
		s.Add(data, false, geom.DAM)
	}
	if got := s.Datas()[0].ReadCount; got != 3 {
		t.Errorf("ReadCount = %d after three identical reads, expected 3", got)
	}
}

func TestSectorGoodDataSurvives(t *testing.T) {
	s := newTestSector(1)
	good := pattern(512, 1)
	s.Add(good, false, geom.DAM)

	for i := 0; i < 5; i++ {
		if got := s.Add(pattern(512, byte(10+i)), true, geom.DAM); got != Unchanged {
			t.Errorf("bad read %d returned %s", i, got)
		}
	}
	if !s.HasGoodData() || !bytes.Equal(s.DataCopy(0), good) {
		t.Errorf("good data was degraded by bad reads")
	}
}

func TestSectorDAMConflict(t *testing.T) {
	s := newTestSector(1)
	s.Add(pattern(512, 1), true, geom.DAM)

	if got := s.Add(pattern(512, 2), true, geom.DAMDeleted); got != Unchanged {
		t.Errorf("deleted read over normal data returned %s", got)
	}
	if s.Copies() != 1 || s.DAM != geom.DAM {
		t.Errorf("copies %d dam %#02x after conflicting read", s.Copies(), s.DAM)
	}

	// A good read replaces bad data whatever its mark.
	if got := s.Add(pattern(512, 3), false, geom.DAMDeleted); got != Improved {
		t.Errorf("good deleted read returned %s", got)
	}
	if !s.IsDeleted() {
		t.Errorf("IsDeleted() = false after good deleted read")
	}
}

func TestSectorLongerCopyReplaces(t *testing.T) {
	s := newTestSector(1)
	full := pattern(600, 1)
	s.Add(full[:100], true, geom.DAM)

	if got := s.Add(full, true, geom.DAM); got != Improved {
		t.Errorf("longer matching copy returned %s", got)
	}
	if s.Copies() != 1 || s.DataSize() != 600 {
		t.Errorf("copies %d size %d, expected one copy of 600", s.Copies(), s.DataSize())
	}
}

func TestMergeCopiesIsPure(t *testing.T) {
	orig := CopySet{
		Copies: []DataCopy{{Data: pattern(512, 1), ReadCount: 1}},
		BadCRC: true,
		DAM:    geom.DAM,
	}
	data := pattern(512, 1)

	set, ret := MergeCopies(orig, 512, false, 3, DataCopy{Data: data}, true, geom.DAM)
	if ret != Unchanged {
		t.Errorf("identical copy returned %s", ret)
	}
	if set.Copies[0].ReadCount != 2 {
		t.Errorf("ReadCount = %d in result, expected 2", set.Copies[0].ReadCount)
	}
	if orig.Copies[0].ReadCount != 1 {
		t.Errorf("MergeCopies modified its input")
	}

	fresh := pattern(512, 7)
	set, _ = MergeCopies(orig, 512, false, 3, DataCopy{Data: fresh}, true, geom.DAM)
	if len(set.Copies) != 2 || len(orig.Copies) != 1 {
		t.Errorf("result has %d copies, input %d", len(set.Copies), len(orig.Copies))
	}
	fresh[0] ^= 0xff
	if set.Copies[1].Data[0] != 7 {
		t.Errorf("result aliases the caller's data")
	}
}

// make8K returns 8K sector data that either passes Sum1800 or passes
// no checksum method at all.
func make8K(seed byte, checksummed bool) []byte {
	p := pattern(0x2000, seed)
	sum, _ := sum8(p[:0x1800])
	if checksummed {
		p[0x1800] = sum
		return p
	}
	p[0x1800] = sum + 1
	for i := 0; len(ChecksumMethods(p)) > 0; i++ {
		p[0x1800+i%5]++
	}
	return p
}

func TestChecksumMethods(t *testing.T) {
	if m := Checksum8KMethod(make8K(3, true)); m != Sum1800 {
		t.Errorf("Checksum8KMethod() = %s, expected %s", m, Sum1800)
	}
	if m := ChecksumMethods(make8K(3, false)); len(m) != 0 {
		t.Errorf("ChecksumMethods() = %v for unchecked data", m)
	}
	if m := Checksum8KMethod(make([]byte, 100)); m != Checksum8KNone {
		t.Errorf("Checksum8KMethod() = %s for short data", m)
	}
}

func new8KSector() *Sector {
	return NewSector(geom.DataRate250K, geom.EncodingMFM, geom.Header{Cyl: 0, Head: 0, Sector: 1, Size: 6})
}

// The copy kept for an 8K sector depends on the order the reads arrive.
func Test8KOrderDependence(t *testing.T) {
	checked := make8K(1, true)
	unchecked := make8K(2, false)

	s := new8KSector()
	s.Add(checked, true, geom.DAM)
	if got := s.Add(unchecked, true, geom.DAM); got != Unchanged {
		t.Errorf("unchecked copy after checked returned %s", got)
	}
	if s.Copies() != 1 || !s.IsChecksummable8K() {
		t.Errorf("checked copy not kept alone: %d copies", s.Copies())
	}

	s = new8KSector()
	s.Add(unchecked, true, geom.DAM)
	if got := s.Add(checked, true, geom.DAM); got != Improved {
		t.Errorf("checked copy after unchecked returned %s", got)
	}
	if s.Copies() != 1 || !s.IsChecksummable8K() {
		t.Errorf("checked copy did not replace the unchecked one: %d copies", s.Copies())
	}
	if !s.HasStableData() {
		t.Errorf("HasStableData() = false for a checksummed 8K sector")
	}
	s.Policy.NormalDisk = true
	if s.HasStableData() {
		t.Errorf("HasStableData() = true with a bad CRC on a normal disk")
	}
}

func TestSectorMerge(t *testing.T) {
	a := newTestSector(3)
	a.SetBadIDCRC(true)

	b := newTestSector(3)
	b.Add(pattern(512, 1), false, geom.DAM)

	if got := a.Merge(b); got != NewData {
		t.Errorf("Merge() = %s, expected %s", got, NewData)
	}
	if a.HasBadIDCRC() || !a.HasGoodData() {
		t.Errorf("merge did not repair the header or take the data")
	}

	c := newTestSector(3)
	c.Add(pattern(512, 2), true, geom.DAM)
	if got := a.Merge(c); got != Unchanged {
		t.Errorf("merging bad data into good returned %s", got)
	}

	d := newTestSector(3)
	d.SetBadIDCRC(true)
	if got := a.Merge(d); got != Unchanged {
		t.Errorf("merging a bad header returned %s", got)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("merging different headers did not panic")
		}
	}()
	a.Merge(newTestSector(4))
}

func TestSetBadDataCRC(t *testing.T) {
	s := newTestSector(1)
	s.Policy.Fill = 0xe5
	s.SetBadDataCRC(false)
	if s.Copies() != 1 || s.DataSize() != 512 || s.DataCopy(0)[100] != 0xe5 {
		t.Fatalf("clearing the CRC on an empty sector: %d copies of %d", s.Copies(), s.DataSize())
	}

	s = newTestSector(1)
	s.Add(pattern(100, 1), true, geom.DAM)
	s.Add(pattern(100, 50), true, geom.DAM)
	s.SetBadDataCRC(false)
	if s.Copies() != 1 || s.DataSize() != 512 {
		t.Errorf("%d copies of %d bytes, expected one of 512", s.Copies(), s.DataSize())
	}
	if s.DataCopy(0)[0] != 1 || s.DataCopy(0)[511] != 0 {
		t.Errorf("first copy not kept and zero padded")
	}

	s.SetBadIDCRC(true)
	if s.HasData() {
		t.Errorf("bad header kept its data")
	}
}

func TestRemoveGapData(t *testing.T) {
	s := newTestSector(1)
	s.Add(pattern(600, 1), true, geom.DAM)
	s.RemoveGapData(true)
	if s.DataSize() != 514 {
		t.Errorf("DataSize() = %d keeping the CRC, expected 514", s.DataSize())
	}
	s.RemoveGapData(false)
	if s.DataSize() != 512 || s.HasGapData() {
		t.Errorf("DataSize() = %d, expected 512", s.DataSize())
	}
}

func TestToleratedSame(t *testing.T) {
	a := newTestSector(1)
	a.Offset = 100
	b := newTestSector(1)

	tests := []struct {
		offset int
		want   bool
	}{
		{100, true},
		{100 + 64*16, true},
		{100 + 64*16 + 1, false},
		{100000 - 200, true}, // across the index
	}
	for _, tt := range tests {
		b.Offset = tt.offset
		if got := a.ToleratedSame(b, geom.CompareToleranceBytes, 100000); got != tt.want {
			t.Errorf("ToleratedSame(offset %d) = %v, expected %v", tt.offset, got, tt.want)
		}
	}
}

func TestDeepThought(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	block := []byte{0xff, 0xff, 0xff, 42}
	block = append(block, payload...)
	block = append(block, 1^2^3^4)

	if off := DeepThoughtDataOffset(block); off != 4 {
		t.Errorf("DeepThoughtDataOffset() = %d, expected 4", off)
	}
	if !IsValidDeepThoughtData(block) {
		t.Errorf("valid block rejected")
	}
	block[5] ^= 1
	if IsValidDeepThoughtData(block) {
		t.Errorf("corrupt block accepted")
	}
	if IsValidDeepThoughtData([]byte{0xff, 0xff}) {
		t.Errorf("block without sync accepted")
	}
	if off := DeepThoughtDataOffset([]byte{0x12, 0xff, 42, 7, 7}); off != 3 {
		t.Errorf("offset after a stray byte = %d, expected 3", off)
	}
	if off := DeepThoughtDataOffset([]byte{42, 7, 7}); off != -1 {
		t.Errorf("offset without lead-in = %d, expected -1", off)
	}
}
