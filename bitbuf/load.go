package bitbuf

import (
	"fmt"

	"github.com/sergev/fluxscan/geom"
	"golang.org/x/exp/mmap"
)

// Load maps a raw bit dump from disk into a new buffer. A bitlen of zero
// or less takes every bit in the file.
func Load(path string, rate geom.DataRate, bitlen int) (*BitBuffer, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bitbuf: %w", err)
	}
	defer r.Close()

	if bitlen <= 0 {
		bitlen = r.Len() * 8
	}
	if bitlen > r.Len()*8 {
		return nil, fmt.Errorf("bitbuf: %s holds %d bits, %d requested", path, r.Len()*8, bitlen)
	}

	p := make([]byte, (bitlen+7)/8)
	if _, err := r.ReadAt(p, 0); err != nil {
		return nil, fmt.Errorf("bitbuf: reading %s: %w", path, err)
	}
	return FromBytes(rate, p, bitlen), nil
}
