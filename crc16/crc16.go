// Package crc16 implements the CRC-16/CCITT checksum used by IBM
// System 34 floppy ID and data fields.
package crc16

// Seeds for the two kinds of field.
const (
	// Init is the seed for FM fields and anything without sync bytes.
	Init = 0xffff

	// A1A1A1 is the state after the three MFM A1 sync bytes, which
	// are part of the checksum but never passed to it.
	A1A1A1 = 0xcdb4
)

const poly = 0x1021

var table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// CRC is a running checksum. The zero value is not seeded; use New.
type CRC uint16

// New returns a checksum starting from the given seed.
func New(seed uint16) CRC {
	return CRC(seed)
}

// Add returns the checksum updated with one byte.
func (c CRC) Add(b byte) CRC {
	return CRC(uint16(c)<<8 ^ table[byte(uint16(c)>>8)^b])
}

// AddBytes returns the checksum updated with a block of bytes.
func (c CRC) AddBytes(p []byte) CRC {
	for _, b := range p {
		c = c.Add(b)
	}
	return c
}

// Value returns the checksum as stored on disk, high byte first.
func (c CRC) Value() uint16 {
	return uint16(c)
}

// Bytes returns the checksum in on-disk byte order.
func (c CRC) Bytes() [2]byte {
	return [2]byte{byte(c >> 8), byte(c)}
}

// Valid reports a zero residue, which is what a field followed by its
// own correct checksum leaves behind.
func (c CRC) Valid() bool {
	return c == 0
}

// Checksum computes the checksum of data from a seed.
func Checksum(seed uint16, data []byte) uint16 {
	return New(seed).AddBytes(data).Value()
}
