package scan

import (
	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/geom"
)

// gapParser walks decoded sector bytes one bit at a time, looking for
// runs of a repeated byte. Runs must start on the same bit alignment,
// so a splice in the write shifts everything after it.
type gapParser struct {
	data    []byte
	bitpos  int
	wrapped bool
}

func newGapParser(data []byte) *gapParser {
	return &gapParser{data: data}
}

func (p *gapParser) remaining() int {
	return len(p.data)*8 - p.bitpos
}

// byteAt returns the 8 bits starting at a bit position.
func (p *gapParser) byteAt(pos int) byte {
	i, shift := pos/8, pos%8
	v := p.data[i] << shift
	if shift != 0 && i+1 < len(p.data) {
		v |= p.data[i+1] >> (8 - shift)
	}
	return v
}

// run reports the repeated byte at the current position. A run needs at
// least three bytes; anything shorter advances a single bit and reports
// a zero length. It returns false once too few bits remain to hold a run.
func (p *gapParser) run() (length int, fill byte, ok bool) {
	if p.remaining() < 24 {
		p.wrapped = true
		return 0, 0, false
	}

	fill = p.byteAt(p.bitpos)
	n := 1
	for p.remaining()-n*8 >= 8 && p.byteAt(p.bitpos+n*8) == fill {
		n++
	}
	if n < 3 {
		p.bitpos++
		return 0, 0, true
	}
	p.bitpos += n * 8
	return n, fill, true
}

// splice counts the unaligned bits before the next run, returning the
// count with the run that ended it.
func (p *gapParser) splice() (bits, length int, fill byte) {
	bits = 1
	for {
		l, f, ok := p.run()
		if !ok || l > 0 {
			return bits, l, f
		}
		bits++
	}
}

func (p *gapParser) peekByte() (byte, bool) {
	if p.remaining() < 8 {
		return 0, false
	}
	return p.byteAt(p.bitpos), true
}

func (p *gapParser) readByte() byte {
	v, ok := p.peekByte()
	if !ok {
		p.wrapped = true
		return 0
	}
	p.bitpos += 8
	return v
}

// isFiller reports the bytes written to fill a gap: 0x4e for MFM and
// 0xff for FM.
func isFiller(fill byte) bool {
	return fill == 0x4e || fill == 0xff
}

// gapTester decides whether bytes read past the end of a sector are
// nothing but gap, so they can be dropped.
type gapTester struct {
	maxSplice int
	log       hclog.Logger
}

// removeGap2 checks the bytes after the next ID field: gap2 filler, the
// sync zeros, and nothing else.
func (g gapTester) removeGap2(data []byte, offset int) bool {
	if len(data) < offset {
		return false
	}
	p := newGapParser(data[offset:])

	length, fill, _ := p.run()
	if length > 0 && isFiller(fill) {
		g.log.Trace("gap2 filler", "bytes", length, "fill", fill)
		length, fill, _ = p.run()
	}

	if length == 0 {
		var bits int
		bits, length, fill = p.splice()
		if bits > g.maxSplice {
			g.log.Trace("gap2 splice too long", "bits", bits)
			return false
		}
	}

	if length > 0 && fill == 0x00 {
		length, _, _ = p.run()
	}

	if length == 0 {
		var bits int
		bits, length, fill = p.splice()
		if bits > g.maxSplice {
			return false
		}
	}

	if length > 0 {
		g.log.Trace("gap2 ends in data", "bytes", length, "fill", fill)
		return false
	}
	return true
}

// removeGap3 checks the bytes between the end of a sector and the next
// address mark. The first filler run found is stored in gap3 if it is
// still zero.
func (g gapTester) removeGap3(data []byte, offset int, gap3 *int) bool {
	if len(data) < offset {
		return false
	}
	p := newGapParser(data[offset:])

	for !p.wrapped {
		length, fill, _ := p.run()

		if length == 0 {
			var bits int
			bits, length, fill = p.splice()
			if bits > g.maxSplice {
				g.log.Trace("gap3 splice too long", "bits", bits)
				return false
			}
		}

		// MFM sync before the next mark.
		if length == 3 && fill == 0xa1 {
			am := p.readByte()
			g.log.Trace("gap3 reached address mark", "mark", am)
			break
		}

		if length > 0 && fill != 0x00 && !isFiller(fill) {
			g.log.Trace("gap3 ends in data", "bytes", length, "fill", fill)
			return false
		}

		if length > 0 && isFiller(fill) && *gap3 == 0 {
			*gap3 = length & 0xff
		}

		// FM sync, which runs straight into the next mark.
		if length > 0 && fill == 0x00 {
			if am, ok := p.peekByte(); ok && am == geom.IDAM {
				break
			}
		}
	}
	return true
}

// removeGap4b checks the bytes after the last sector on the track. Splices
// are expected there, so their length isn't limited.
func (g gapTester) removeGap4b(data []byte, offset int) bool {
	if len(data) < offset {
		return false
	}
	p := newGapParser(data[offset:])

	length, fill, _ := p.run()
	if length == 0 {
		var bits int
		bits, length, fill = p.splice()
		g.log.Trace("gap4b splice", "bits", bits)
	}

	if length > 0 && fill != 0x00 && !isFiller(fill) {
		g.log.Trace("gap4b ends in data", "bytes", length, "fill", fill)
		return false
	}
	return true
}
