package crc16

import "testing"

func TestCheckValue(t *testing.T) {
	// CRC-16/CCITT-FALSE check value.
	if got := Checksum(Init, []byte("123456789")); got != 0x29b1 {
		t.Errorf("Checksum(\"123456789\") = %#04x, expected 0x29b1", got)
	}
}

func TestSyncSeed(t *testing.T) {
	if got := Checksum(Init, []byte{0xa1, 0xa1, 0xa1}); got != A1A1A1 {
		t.Errorf("CRC of A1A1A1 = %#04x, expected %#04x", got, A1A1A1)
	}
	if got := New(A1A1A1).Add(0xfe).Value(); got != 0xb230 {
		t.Errorf("CRC after A1A1A1 FE = %#04x, expected 0xb230", got)
	}
}

func TestResidue(t *testing.T) {
	tests := []struct {
		name string
		seed uint16
		data []byte
	}{
		{"mfm id", A1A1A1, []byte{0xfe, 0, 0, 1, 2}},
		{"fm id", Init, []byte{0xfe, 39, 1, 9, 2}},
		{"empty", Init, nil},
		{"data", A1A1A1, append([]byte{0xfb}, make([]byte, 512)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := New(tt.seed).AddBytes(tt.data)
			sum := crc.Bytes()
			if !crc.AddBytes(sum[:]).Valid() {
				t.Errorf("residue is not zero after appending %#04x", crc.Value())
			}

			// A single flipped bit must be detected.
			if len(tt.data) > 0 {
				bad := append([]byte(nil), tt.data...)
				bad[len(bad)-1] ^= 0x01
				if New(tt.seed).AddBytes(bad).AddBytes(sum[:]).Valid() {
					t.Errorf("corrupted field still has zero residue")
				}
			}
		})
	}
}

func TestAddMatchesAddBytes(t *testing.T) {
	data := []byte{0x00, 0x4e, 0xa1, 0xfb, 0xe5, 0xff}
	c := New(Init)
	for _, b := range data {
		c = c.Add(b)
	}
	if c != New(Init).AddBytes(data) {
		t.Errorf("Add and AddBytes disagree: %#04x vs %#04x", c.Value(), New(Init).AddBytes(data).Value())
	}
}
