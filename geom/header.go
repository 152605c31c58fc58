package geom

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Physical limits for a CylHead.
const (
	MaxDiskCyls  = 256
	MaxDiskHeads = 2
)

// CylHead identifies one physical track.
type CylHead struct {
	Cyl  int
	Head int
}

// NewCylHead returns a CylHead, panicking if it falls outside the
// physical limits of a disk.
func NewCylHead(cyl, head int) CylHead {
	if cyl < 0 || cyl >= MaxDiskCyls {
		panic(fmt.Sprintf("geom: cylinder %d out of range (0-%d)", cyl, MaxDiskCyls-1))
	}
	if head < 0 || head >= MaxDiskHeads {
		panic(fmt.Sprintf("geom: head %d out of range (0-%d)", head, MaxDiskHeads-1))
	}
	return CylHead{Cyl: cyl, Head: head}
}

// Less orders tracks by cylinder, then head.
func (ch CylHead) Less(o CylHead) bool {
	if ch.Cyl != o.Cyl {
		return ch.Cyl < o.Cyl
	}
	return ch.Head < o.Head
}

// Next returns the same head on the following cylinder.
func (ch CylHead) Next() CylHead {
	return NewCylHead(ch.Cyl+1, ch.Head)
}

// AmigaTrack is the logical track number recorded in Amiga sector headers.
func (ch CylHead) AmigaTrack() int {
	return ch.Cyl<<1 + ch.Head
}

func (ch CylHead) String() string {
	return fmt.Sprintf("cyl %d head %d", ch.Cyl, ch.Head)
}

// Header is the CHRN identity of a sector as recorded in its ID field.
type Header struct {
	Cyl    int
	Head   int
	Sector int
	Size   int
}

// SectorSize returns the data length implied by the size code.
func (h Header) SectorSize() int {
	return SizeCodeToLength(h.Size)
}

// CompareCHRN reports whether all four fields match.
func (h Header) CompareCHRN(o Header) bool {
	return h == o
}

// CompareCRN matches cylinder, record and size, ignoring the head
// like a WD177x controller does.
func (h Header) CompareCRN(o Header) bool {
	return h.Cyl == o.Cyl && h.Sector == o.Sector && h.Size == o.Size
}

// Less orders headers by cylinder, head, sector and size.
func (h Header) Less(o Header) bool {
	switch {
	case h.Cyl != o.Cyl:
		return h.Cyl < o.Cyl
	case h.Head != o.Head:
		return h.Head < o.Head
	case h.Sector != o.Sector:
		return h.Sector < o.Sector
	}
	return h.Size < o.Size
}

// CylHead returns the track the header claims to belong to.
func (h Header) CylHead() CylHead {
	return CylHead{Cyl: h.Cyl, Head: h.Head}
}

func (h Header) String() string {
	return fmt.Sprintf("cyl %d head %d sector %d size %d", h.Cyl, h.Head, h.Sector, h.Size)
}

// Headers is an ordered list of sector headers.
type Headers []Header

// Contains reports whether an identical header is present.
func (hs Headers) Contains(h Header) bool {
	return slices.Contains(hs, h)
}

// HasIDSequence reports whether sector ids first..first+length-1 are
// all present.
func (hs Headers) HasIDSequence(first, length int) bool {
	for id := first; id < first+length; id++ {
		found := slices.ContainsFunc(hs, func(h Header) bool {
			return h.Sector == id
		})
		if !found {
			return false
		}
	}
	return true
}

// SectorIDs formats the sector numbers as a space separated list.
func (hs Headers) SectorIDs() string {
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = fmt.Sprint(h.Sector)
	}
	return strings.Join(ids, " ")
}

func (hs Headers) String() string {
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = h.String()
	}
	return strings.Join(parts, ", ")
}

// SizeCodeToRealSizeCode maps a size code the way the uPD765 treats it:
// anything above 7 behaves as 8 (32K).
func SizeCodeToRealSizeCode(size int) int {
	if size <= 7 {
		return size
	}
	return 8
}

// SizeCodeToLength returns the sector length for a size code.
func SizeCodeToLength(size int) int {
	return 128 << SizeCodeToRealSizeCode(size)
}

// SizeCodeToRealLength returns the length the uPD765 transfers for a size code.
func SizeCodeToRealLength(size int) int {
	return SizeCodeToLength(SizeCodeToRealSizeCode(size))
}

// SizeToCode returns the size code for a sector length, or 0xff if the
// length has no code.
func SizeToCode(length int) int {
	for code := 0; code <= 8; code++ {
		if length == SizeCodeToLength(code) {
			return code
		}
	}
	return 0xff
}
