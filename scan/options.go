package scan

import (
	"fmt"

	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/track"
)

// GapMode selects how much inter-sector gap is kept with sector data.
type GapMode int

const (
	GapsAuto  GapMode = iota // strip gaps recognised as plain filler
	GapsNone                 // never keep bytes past the natural size
	GapsClean                // strip filler, keep anything unusual
	GapsAll                  // keep everything captured
)

func (g GapMode) String() string {
	switch g {
	case GapsAuto:
		return "auto"
	case GapsNone:
		return "none"
	case GapsClean:
		return "clean"
	case GapsAll:
		return "all"
	}
	return fmt.Sprintf("GapMode(%d)", int(g))
}

// ParseGapMode accepts the names printed by String.
func ParseGapMode(s string) (GapMode, error) {
	for _, g := range []GapMode{GapsAuto, GapsNone, GapsClean, GapsAll} {
		if g.String() == s {
			return g, nil
		}
	}
	return GapsAuto, fmt.Errorf("unknown gap mode %q", s)
}

// Options control detection and the data kept from each read.
type Options struct {
	Encoding geom.Encoding // only try this encoding when set
	DataRate geom.DataRate // only try this data rate when set

	Ace         bool    // scan for Jupiter Ace blocks and nothing else
	FM          bool    // look for FM address marks as well as MFM
	IDCRC       bool    // keep MFM headers with a bad ID CRC
	Gaps        GapMode // gap retention
	NoGap2      bool    // don't read through gap2 of the next sector
	NoGap4b     bool    // drop gap4b after the last sector
	KeepOverlap bool    // keep data overlapping the next header
	MaxSplice   int     // splice bits tolerated inside a gap
	NoWobble    bool    // skip the motor speed retries on flux
	GCR         bool    // include GCR in automatic detection
	Verbose     bool    // report every Ace framing error

	Policy track.Policy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		FM:        true,
		MaxSplice: geom.DefaultMaxSplice,
		Policy:    track.DefaultPolicy(),
	}
}

// Normalize replaces out of range values with their defaults.
func (o *Options) Normalize() {
	if o.MaxSplice < 0 {
		o.MaxSplice = geom.DefaultMaxSplice
	}
	if o.Policy.MaxCopies < 1 {
		o.Policy.MaxCopies = track.DefaultMaxCopies
	}
	if o.Policy.Fill < -1 || o.Policy.Fill > 0xff {
		o.Policy.Fill = -1
	}
}
