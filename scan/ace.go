package scan

import (
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/pll"
	"github.com/sergev/fluxscan/track"
)

// Jupiter Ace Deep Thought disks record serial frames: each unit is a
// clock cell and a data cell, and each byte is a start bit, 8 data bits
// least significant first, odd parity and a stop bit.
const (
	aceBitcellNs  = 4000
	aceBlockSize  = 4096
	aceIdleLimit  = 64
	aceFrameUnits = 10
	aceLeadInByte = 255
	aceSyncByte   = 42
)

type aceState int

const (
	aceWantLeadIn aceState = iota
	aceWantSync
	aceData
)

// ScanFluxAce decodes flux at the Deep Thought cell width.
func (s *Scanner) ScanFluxAce(ch geom.CylHead, flux pll.FluxData) *track.Track {
	buf := s.decode(flux, geom.DataRate250K, aceBitcellNs, 100)
	t := s.ScanBitstreamAce(ch, buf)
	t.TrackTime = fluxTrackTime(flux)
	return t
}

// readUnit returns a clock cell and a data cell as a two-bit value.
func readUnit(buf *bitbuf.BitBuffer) int {
	return buf.Read1()<<1 | buf.Read1()
}

// ScanBitstreamAce collects the block of serial bytes on a track and
// stores it as a single 4K sector 0.
func (s *Scanner) ScanBitstreamAce(ch geom.CylHead, buf *bitbuf.BitBuffer) *track.Track {
	t := track.New()
	buf.Seek(0)
	t.TrackLen = buf.TrackBitsize()
	t.TrackTime = bitstreamTrackTime(t.TrackLen, geom.DataRate250K)

	state := aceWantLeadIn
	var block []byte
	idle := 0
	dataError := false

	for !buf.Wrapped() {
		word := readUnit(buf)

		// Missing clock: step one cell to resync.
		if word&2 == 0 {
			buf.Read1()
			continue
		}

		// Outside a frame the line idles at 1.
		if word&1 == 0 {
			idle++
			if idle > aceIdleLimit && state == aceData {
				break
			}
			continue
		}

		// Start bit.
		idle = 0
		var data byte
		bit := 0
		parity := 1
		clock := 2
		for i := 0; i < aceFrameUnits; i++ {
			word = readUnit(buf)
			bit = ^word & 1
			parity ^= bit
			clock &= word
			if i < 8 {
				data |= byte(bit) << i
			}
		}

		// The stop bit is included in parity, which inverts the sense.
		if clock == 0 || bit == 0 || parity == 0 {
			if state != aceData {
				continue
			}
			if !dataError || s.opts.Verbose {
				dataError = true
				if clock == 0 || bit == 0 {
					s.log.Warn("framing error", "track", ch, "offset", len(block))
				} else {
					s.log.Warn("parity error", "track", ch, "offset", len(block))
				}
			}
		} else {
			switch state {
			case aceWantLeadIn:
				if data == aceLeadInByte {
					state = aceWantSync
				} else {
					block = block[:0]
				}
			case aceWantSync:
				if data == aceSyncByte {
					state = aceData
				} else if data != aceLeadInByte {
					state = aceWantLeadIn
					block = block[:0]
				}
			}
		}

		block = append(block, data)
	}

	if state == aceData {
		sec := track.NewSector(geom.DataRate250K, geom.EncodingAce,
			geom.Header{Cyl: ch.Cyl, Head: ch.Head, Sector: 0, Size: geom.SizeToCode(aceBlockSize)})
		sec.Policy = s.opts.Policy

		if !track.IsValidDeepThoughtData(block) {
			s.log.Warn("block checksum error", "track", ch)
			dataError = true
		}

		sec.Add(block, dataError, 0x00)
		t.Add(sec)
	}
	return t
}
