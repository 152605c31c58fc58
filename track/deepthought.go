package track

// Jupiter Ace Deep Thought blocks start with a run of 0xff bytes and a
// 42 (0x2a) sync byte. The payload ends in an XOR checksum of the
// bytes before it.
const (
	deepThoughtLead = 0xff
	deepThoughtSync = 42
)

// DeepThoughtDataOffset returns the offset of the payload that follows
// the lead-in and sync byte, or -1 when there is none. A stray byte read
// before the lead-in is skipped.
func DeepThoughtDataOffset(data []byte) int {
	i := 0
	if len(data) > 0 && data[0] != deepThoughtLead {
		i = 1
	}
	if i == len(data) || data[i] != deepThoughtLead {
		return -1
	}
	for i < len(data) && data[i] == deepThoughtLead {
		i++
	}
	if i == len(data) || data[i] != deepThoughtSync {
		return -1
	}
	return i + 1
}

// IsValidDeepThoughtData reports whether a block carries a payload whose
// trailing checksum matches.
func IsValidDeepThoughtData(data []byte) bool {
	off := DeepThoughtDataOffset(data)
	if off < 0 {
		return false
	}
	payload := data[off:]
	if len(payload) < 2 {
		return false
	}

	var xor byte
	for _, b := range payload[:len(payload)-1] {
		xor ^= b
	}
	return xor == payload[len(payload)-1]
}
