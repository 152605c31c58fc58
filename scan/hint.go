package scan

import (
	"sync/atomic"

	"github.com/sergev/fluxscan/geom"
)

// Hint remembers the encoding and data rate of the last track that
// decoded, so the next track tries them first. Neighbouring tracks almost
// always share both. It is safe to share between scanners on different
// goroutines; a stale value only costs extra attempts.
type Hint struct {
	encoding atomic.Int32
	dataRate atomic.Int32
}

// Encoding returns the last successful encoding.
func (h *Hint) Encoding() geom.Encoding {
	return geom.Encoding(h.encoding.Load())
}

// DataRate returns the last successful data rate.
func (h *Hint) DataRate() geom.DataRate {
	return geom.DataRate(h.dataRate.Load())
}

// Set records a successful combination.
func (h *Hint) Set(enc geom.Encoding, rate geom.DataRate) {
	h.encoding.Store(int32(enc))
	h.dataRate.Store(int32(rate))
}

// Reset forgets the remembered combination.
func (h *Hint) Reset() {
	h.Set(geom.EncodingUnknown, geom.DataRateUnknown)
}
