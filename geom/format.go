package geom

import (
	"errors"
	"fmt"
)

// Geometry limits for a Format.
const (
	MaxTracks  = 128
	MaxSides   = 2
	MaxSectors = 255
)

// ErrBadGeometry is returned when a format has impossible dimensions.
var ErrBadGeometry = errors.New("geom: bad geometry")

// FdcType selects the head matching rules of a controller.
type FdcType int

const (
	FdcNone FdcType = iota
	FdcPC
	FdcWD
	FdcAmiga
	FdcApple
)

// RegularFormat names a well-known disk layout.
type RegularFormat int

const (
	FormatNone RegularFormat = iota
	FormatMGT
	FormatProDos
	FormatTRDOS
	FormatQDOS
	FormatOPD
	FormatD80
	FormatPC320
	FormatPC360
	FormatPC640
	FormatPC720
	FormatPC1200
	FormatPC1232
	FormatPC1440
	FormatPC2880
	FormatTO640KMFM
	FormatTO320KMFM
	FormatTO160KMFM
	FormatTO160KFM
	FormatTO80KFM
	FormatAmigaDOS
	FormatAmigaDOSHD
	FormatMBD820
	FormatMBD1804
	FormatD2M
	FormatD4M
	Format2D
	FormatD81
	FormatLIF
	FormatAtariST
	FormatDO
)

// Default dimensions of a Format.
const (
	DefaultTracks = 80
	DefaultSides  = 2
)

// Format describes the regular layout of a disk.
type Format struct {
	Cyls      int
	Heads     int
	Fdc       FdcType
	DataRate  DataRate
	Encoding  Encoding
	Sectors   int  // sectors per track
	Size      int  // sector size code
	Base      int  // first sector number
	Offset    int  // rotational offset of the first sector on cyl 0 head 0
	Interleave int
	Skew      int  // per-cylinder skew
	Head0     int  // head value recorded on side 0
	Head1     int  // head value recorded on side 1
	Gap3      int
	Fill      byte
	CylsFirst bool // media order is all cyls on head 0 before head 1
	Regular   RegularFormat
}

// NewFormat returns the generic defaults every preset starts from.
func NewFormat() Format {
	return Format{
		Cyls:       DefaultTracks,
		Heads:      DefaultSides,
		Fdc:        FdcPC,
		Size:       2,
		Base:       1,
		Interleave: 1,
		Head1:      1,
	}
}

// SectorSize returns the length of each sector.
func (f Format) SectorSize() int {
	return SizeCodeToLength(f.Size)
}

// TrackSize returns the data bytes on one track.
func (f Format) TrackSize() int {
	return f.SectorSize() * f.Sectors
}

// SideSize returns the data bytes on one side.
func (f Format) SideSize() int {
	return f.TrackSize() * f.Cyls
}

// DiskSize returns the data bytes on the whole disk.
func (f Format) DiskSize() int {
	return f.SideSize() * f.Heads
}

// TotalSectors returns the number of sectors on the whole disk.
func (f Format) TotalSectors() int {
	return f.Cyls * f.Heads * f.Sectors
}

// IsNone reports whether the format was not built from a preset.
func (f Format) IsNone() bool {
	return f.Regular == FormatNone
}

// Validate checks the dimensions against the supported limits.
func (f Format) Validate() error {
	return ValidateGeometry(f.Cyls, f.Heads, f.Sectors, f.SectorSize(), 0)
}

// ValidateGeometry checks arbitrary dimensions against the supported limits.
// A zero maxSectorSize means no limit on sector size.
func ValidateGeometry(cyls, heads, sectors, sectorSize, maxSectorSize int) error {
	if cyls <= 0 || cyls > MaxTracks {
		return fmt.Errorf("%w: %d cylinders", ErrBadGeometry, cyls)
	}
	if heads <= 0 || heads > MaxSides {
		return fmt.Errorf("%w: %d heads", ErrBadGeometry, heads)
	}
	if sectors <= 0 || sectors > MaxSectors {
		return fmt.Errorf("%w: %d sectors", ErrBadGeometry, sectors)
	}
	if maxSectorSize != 0 && sectorSize > maxSectorSize {
		return fmt.Errorf("%w: sector size %d exceeds %d", ErrBadGeometry, sectorSize, maxSectorSize)
	}
	return nil
}

// IDs returns the sector numbers of a track in physical order.
func (f Format) IDs(ch CylHead) []int {
	return SectorIDs(ch, f.Sectors, f.Interleave, f.Skew, f.Offset, f.Base)
}

// SectorIDs lays out sector numbers using an interleave and a
// per-cylinder skew. Collisions move to the next free slot.
func SectorIDs(ch CylHead, sectors, interleave, skew, offset, base int) []int {
	used := make([]bool, sectors)
	ids := make([]int, sectors)

	for s := 0; s < sectors; s++ {
		index := (offset + s*interleave + skew*ch.Cyl) % sectors
		for used[index] {
			index = (index + 1) % sectors
		}
		used[index] = true
		ids[index] = base + s
	}
	return ids
}

// GetFormat returns the layout of a well-known format.
func GetFormat(reg RegularFormat) Format {
	f := NewFormat()

	switch reg {
	case FormatMGT: // 800K
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Skew, f.Gap3 = 10, 1, 24

	case FormatProDos: // 720K
		f.DataRate, f.Encoding = DataRate250K, EncodingMFM
		f.Sectors, f.Interleave, f.Skew = 9, 2, 2
		f.Gap3, f.Fill = 0x50, 0xe5

	case FormatPC320, FormatPC360:
		f.DataRate, f.Encoding = DataRate250K, EncodingMFM
		f.Cyls, f.Sectors, f.Skew = 40, 8, 1
		if reg == FormatPC360 {
			f.Sectors = 9
		}
		f.Gap3, f.Fill = 0x50, 0xf6

	case FormatPC640, FormatPC720:
		f.DataRate, f.Encoding = DataRate250K, EncodingMFM
		f.Sectors, f.Skew = 8, 1
		f.Gap3, f.Fill = 0x50, 0xe5
		if reg == FormatPC720 {
			f.Sectors, f.Fill = 9, 0xf6
		}

	case FormatPC1200: // 1.2M
		f.DataRate, f.Encoding = DataRate500K, EncodingMFM
		f.Sectors, f.Skew = 15, 1
		f.Gap3, f.Fill = 0x54, 0xf6

	case FormatPC1232: // 1232K
		f.DataRate, f.Encoding = DataRate500K, EncodingMFM
		f.Cyls, f.Sectors, f.Size, f.Skew = 77, 8, 3, 1
		f.Gap3, f.Fill = 0x54, 0xf6

	case FormatPC1440: // 1.44M
		f.DataRate, f.Encoding = DataRate500K, EncodingMFM
		f.Sectors, f.Skew = 18, 1
		f.Gap3, f.Fill = 0x65, 0xf6

	case FormatPC2880: // 2.88M
		f.DataRate, f.Encoding = DataRate1M, EncodingMFM
		f.Sectors, f.Skew = 36, 1
		f.Gap3, f.Fill = 0x53, 0xf6

	case FormatD80:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Skew, f.Fill = 9, 5, 0xe5

	case FormatOPD:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Size, f.Fill = 18, 1, 0xe5
		f.Base, f.Offset, f.Interleave, f.Skew = 0, 17, 13, 13

	case FormatMBD820:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Cyls, f.Sectors, f.Size, f.Skew, f.Gap3 = 82, 5, 3, 1, 44

	case FormatMBD1804:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate500K, EncodingMFM
		f.Cyls, f.Sectors, f.Size, f.Skew = 82, 11, 3, 1

	case FormatTRDOS:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Size, f.Interleave, f.Head1 = 16, 1, 2, 0

	case FormatQDOS:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors = 9

	case FormatD2M, FormatD4M:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate500K, EncodingMFM
		f.Cyls, f.Sectors, f.Size = 81, 10, 3
		if reg == FormatD4M {
			f.DataRate, f.Sectors = DataRate1M, 20
		}
		f.Fill, f.Gap3, f.Head0, f.Head1 = 0xe5, 0x64, 1, 0

	case FormatD81:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Gap3, f.Head0, f.Head1 = 10, 0x26, 1, 0

	case Format2D:
		f.DataRate, f.Encoding = DataRate250K, EncodingMFM
		f.Cyls, f.Sectors, f.Size = 40, 16, 1

	case FormatAmigaDOS, FormatAmigaDOSHD:
		f.Fdc, f.DataRate, f.Encoding = FdcAmiga, DataRate250K, EncodingAmiga
		f.Sectors, f.Base = 11, 0
		if reg == FormatAmigaDOSHD {
			f.DataRate, f.Sectors = DataRate500K, 22
		}

	case FormatLIF:
		f.DataRate, f.Encoding = DataRate250K, EncodingMFM
		f.Cyls, f.Sectors, f.Size = 77, 16, 1

	case FormatAtariST:
		f.Fdc, f.DataRate, f.Encoding = FdcWD, DataRate250K, EncodingMFM
		f.Sectors, f.Gap3 = 9, 40

	case FormatTO640KMFM, FormatTO320KMFM, FormatTO160KMFM:
		f.Fdc, f.DataRate, f.Encoding = FdcNone, DataRate250K, EncodingMFM
		f.Sectors, f.Size, f.Interleave = 16, 1, 7
		f.Gap3, f.Fill, f.CylsFirst = 50, 0xe5, true
		if reg != FormatTO640KMFM {
			f.Heads = 1
		}
		if reg == FormatTO160KMFM {
			f.Cyls = 40
		}

	case FormatTO160KFM, FormatTO80KFM:
		f = GetFormat(FormatTO320KMFM)
		f.Size, f.Encoding = 0, EncodingFM
		if reg == FormatTO80KFM {
			f.Cyls = 40
		}

	case FormatDO:
		f.Fdc, f.DataRate, f.Encoding = FdcApple, DataRate250K, EncodingApple
		f.Cyls, f.Heads, f.Sectors, f.Base, f.Size = 35, 1, 16, 0, 1

	case FormatNone:
	default:
		panic(fmt.Sprintf("geom: unknown regular format %d", reg))
	}

	f.Regular = reg
	return f
}

// FormatFromSize guesses the layout of a raw sector image from its size.
func FormatFromSize(size int64) (Format, bool) {
	var f Format

	switch size {
	case 143360: // Apple ][
		f = GetFormat(FormatDO)
	case 163840: // 5.25" SSSD (160K)
		f = GetFormat(FormatPC320)
		f.Heads = 1
	case 184320: // 5.25" SSSD (180K)
		f = GetFormat(FormatPC360)
		f.Heads = 1
	case 327680: // 5.25" DSDD (320K)
		f = GetFormat(FormatPC320)
	case 368640: // 5.25" DSDD (360K)
		f = GetFormat(FormatPC360)
	case 655360: // 3.5" DSDD (640K)
		f = GetFormat(FormatPC640)
	case 737280: // 3.5" DSDD (720K)
		f = GetFormat(FormatPC720)
	case 819200: // MGT (800K)
		f = GetFormat(FormatMGT)
	case 1228800: // 5.25" DSHD (1200K)
		f = GetFormat(FormatPC1200)
	case 1261568: // 5.25" DSHD (1232K)
		f = GetFormat(FormatPC1232)
	case 1474560: // 3.5" DSHD (1440K)
		f = GetFormat(FormatPC1440)
	case 2949120: // 3.5" DSED (2880K)
		f = GetFormat(FormatPC2880)
	default:
		// Extended 1.44M layouts: 80-83 cylinders, 20-24 sectors.
		for _, ext := range []struct {
			cyls, sectors int
		}{
			{80, 20}, {80, 21}, {82, 21}, {83, 21}, {80, 22}, {80, 23}, {80, 24},
		} {
			if size == int64(ext.cyls*2*ext.sectors*512) {
				f = GetFormat(FormatPC1440)
				f.Cyls, f.Sectors, f.Gap3 = ext.cyls, ext.sectors, 0
				return f, true
			}
		}
		return Format{}, false
	}
	return f, true
}
