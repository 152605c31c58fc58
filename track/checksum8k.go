package track

import (
	"encoding/binary"
	"fmt"

	"github.com/sergev/fluxscan/crc16"
)

// Checksum8K identifies a secondary checksum stored in the data of an
// 8K sector, used by copy protections that read back only the first 6K.
type Checksum8K int

const (
	Checksum8KNone Checksum8K = iota
	Sum1800
	XOR1800
	Sum18A0
	XOR18A0
	CRCD2F6_1800
	CRCD2F6_1802
)

var checksum8KNames = []string{
	Checksum8KNone: "none",
	Sum1800:        "sum 0x1800",
	XOR1800:        "xor 0x1800",
	Sum18A0:        "sum 0x18a0",
	XOR18A0:        "xor 0x18a0",
	CRCD2F6_1800:   "crc-d2f6 0x1800",
	CRCD2F6_1802:   "crc-d2f6 0x1802",
}

func (c Checksum8K) String() string {
	if c >= 0 && int(c) < len(checksum8KNames) {
		return checksum8KNames[c]
	}
	return fmt.Sprintf("Checksum8K(%d)", int(c))
}

const crcD2F6 = 0xd2f6

func sum8(p []byte) (sum, xor byte) {
	for _, b := range p {
		sum += b
		xor ^= b
	}
	return sum, xor
}

// ChecksumMethods returns every checksum method the data satisfies,
// in declaration order.
func ChecksumMethods(data []byte) []Checksum8K {
	var methods []Checksum8K

	if len(data) > 0x1800 {
		sum, xor := sum8(data[:0x1800])
		if sum == data[0x1800] {
			methods = append(methods, Sum1800)
		}
		if xor == data[0x1800] {
			methods = append(methods, XOR1800)
		}
	}
	if len(data) > 0x18a0 {
		sum, xor := sum8(data[:0x18a0])
		if sum == data[0x18a0] {
			methods = append(methods, Sum18A0)
		}
		if xor == data[0x18a0] {
			methods = append(methods, XOR18A0)
		}
	}
	if len(data) >= 0x1802 {
		if crc16.Checksum(crcD2F6, data[:0x1800]) == binary.BigEndian.Uint16(data[0x1800:]) {
			methods = append(methods, CRCD2F6_1800)
		}
	}
	if len(data) >= 0x1804 {
		if crc16.Checksum(crcD2F6, data[:0x1802]) == binary.BigEndian.Uint16(data[0x1802:]) {
			methods = append(methods, CRCD2F6_1802)
		}
	}
	return methods
}

// Checksum8KMethod returns the first checksum method the data satisfies,
// or Checksum8KNone.
func Checksum8KMethod(data []byte) Checksum8K {
	if m := ChecksumMethods(data); len(m) > 0 {
		return m[0]
	}
	return Checksum8KNone
}
