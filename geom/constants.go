package geom

// IBM System 34 address marks.
const (
	IDAM          = 0xfe // ID address mark
	IAM           = 0xfc // index address mark
	DAM           = 0xfb // normal data
	DAMAlt        = 0xfa // alternate normal data
	DAMDeleted    = 0xf8 // deleted data
	DAMDeletedAlt = 0xf9 // alternate deleted data
	DAMRX02       = 0xfd // DEC RX02 double density data
)

// Rotation time in microseconds.
const (
	RPMTime300 = 200000
	RPMTime360 = 166667
)

// Gap sizes in data bytes.
const (
	Gap2MFMDDHD = 22
	Gap2MFMED   = 41
	Gap2FM      = 11

	Gap4aMFM = 80
	Gap1MFM  = 50
	Gap4aFM  = 40
	Gap1FM   = 26
)

// DefaultMaxSplice is the largest run of unsynchronised bits tolerated
// inside a gap before it is treated as data.
const DefaultMaxSplice = 72

// Two reads of the same sector are considered the same physical sector
// when their offsets are within this distance.
const (
	CompareToleranceBytes = 64
	CompareToleranceBits  = CompareToleranceBytes * 16
)

// SyncOverhead returns the size of the sync run before each address mark.
func SyncOverhead(enc Encoding) int {
	if enc == EncodingFM {
		return 6
	}
	return 12
}

// IDOverhead returns the size of an ID field, from address mark to CRC.
func IDOverhead(enc Encoding) int {
	if enc == EncodingFM {
		return 1 + 4 + 2
	}
	return 3 + 1 + 4 + 2
}

// DataOverhead returns the framing around sector data: A1 syncs, DAM and CRC.
func DataOverhead(enc Encoding) int {
	if enc == EncodingFM {
		return 1 + 2
	}
	return 3 + 1 + 2
}

// Gap2Size returns the gap between ID and data fields.
func Gap2Size(enc Encoding, dr DataRate) int {
	switch {
	case enc == EncodingFM:
		return Gap2FM
	case dr == DataRate1M:
		return Gap2MFMED
	}
	return Gap2MFMDDHD
}

// SectorOverhead returns the bytes a sector occupies on top of its data and gap3.
func SectorOverhead(enc Encoding) int {
	return SyncOverhead(enc) + IDOverhead(enc) + Gap2Size(enc, DataRate250K) +
		SyncOverhead(enc) + DataOverhead(enc)
}

// TrackCapacity returns the number of data bytes in one revolution.
func TrackCapacity(driveSpeed int, dr DataRate, enc Encoding) int {
	bits := int(int64(dr.BitsPerSecond()) * int64(driveSpeed) / 1000000)
	if enc == EncodingFM {
		return bits / 16
	}
	return bits / 8
}

// RawTrackCapacity returns the number of bitstream cells in one revolution.
// FM and MFM are both captured at the MFM cell rate, so it only depends
// on the data rate.
func RawTrackCapacity(driveSpeed int, dr DataRate, enc Encoding) int {
	bytes := TrackCapacity(driveSpeed, dr, enc)
	if enc == EncodingFM {
		return bytes * 32
	}
	return bytes * 16
}

// DriveSpeed returns the rotation time a drive uses for a data rate.
// 300Kbps is a high density drive spinning a double density disk at 360rpm.
func DriveSpeed(dr DataRate) int {
	if dr == DataRate300K {
		return RPMTime360
	}
	return RPMTime300
}

// GapSizes returns gap2 and gap3 for an IBM PC track.
//
//	            Floppy  Media   Sectors
//	Bit rate    Drive   Volume  per track  Heads  Tracks  gap2  gap3
//	----------------------------------------------------------------
//	500 kbps    5¼"AT   1.2M    15         2      80      22    84
//	            3½"     1.44M   18         2      80      22    108
//	            3½"     1.6M    20         2      80      22    44
//	----------------------------------------------------------------
//	250 kbps    5¼"SS   160K    8          1      40      22    80
//	            5¼"PC   320K    8          2      40      22    80
//	            5¼"SS   180K    9          1      40      22    80
//	            5¼"PC   360K    9          2      40      22    80
//	            3½"SS   360K    9          1      80      22    80
//	            3½"     720K    9          2      80      22    80
//	            3½"     800K    10         2      80      22    34
//	----------------------------------------------------------------
//	300 kbps    5¼"AT   360K    9          2      40      22    80
//	----------------------------------------------------------------
//	1000 kbps   3½"     2.88M   36         2      80      41    84
//	            3½"     3.12M   39         2      80      41    40
func GapSizes(dr DataRate, sectors int) (gap2, gap3 int) {
	gap2 = Gap2MFMDDHD
	if dr == DataRate1M {
		gap2 = Gap2MFMED
	}

	gap3 = 80
	switch dr {
	case DataRate500K:
		gap3 = 108
		if sectors < 18 {
			gap3 = 84
		}
		if sectors > 18 {
			gap3 = 44
		}
	case DataRate1M:
		gap3 = 84
		if sectors > 36 {
			gap3 = 40
		}
	case DataRate250K, DataRate300K:
		if sectors > 9 {
			gap3 = 34
		}
	}
	return gap2, gap3
}
