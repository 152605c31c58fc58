// Package metrics exports scanner activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/scan"
	"github.com/sergev/fluxscan/track"
)

// Sector status label values.
const (
	StatusGood    = "good"
	StatusBadData = "bad_data"
	StatusBadID   = "bad_id"
	StatusNoData  = "no_data"
)

// Collector counts decoded tracks and sectors. It implements
// scan.Recorder.
type Collector struct {
	Tracks      *prometheus.CounterVec
	Sectors     *prometheus.CounterVec
	Retries     *prometheus.CounterVec
	Unsupported *prometheus.CounterVec
	ScanSeconds prometheus.Histogram
}

var _ scan.Recorder = (*Collector)(nil)

// New creates the metrics and registers them with reg, if not nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Tracks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxscan_tracks_scanned_total",
			Help: "Total number of tracks scanned, by detected encoding and data rate",
		}, []string{"encoding", "datarate"}),

		Sectors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxscan_sectors_total",
			Help: "Total number of sectors found, by status",
		}, []string{"status"}),

		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxscan_wobble_retries_total",
			Help: "Flux decodes repeated at an adjusted motor speed",
		}, []string{"encoding"}),

		Unsupported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fluxscan_unsupported_format_total",
			Help: "Tracks recognised in a format that can't be decoded",
		}, []string{"encoding"}),

		ScanSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fluxscan_scan_seconds",
			Help:    "Time taken to scan one track",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(c.Tracks, c.Sectors, c.Retries, c.Unsupported, c.ScanSeconds)
	}
	return c
}

// SectorStatus returns the status label for a sector.
func SectorStatus(s *track.Sector) string {
	switch {
	case s.HasBadIDCRC():
		return StatusBadID
	case !s.HasData():
		return StatusNoData
	case s.HasBadDataCRC():
		return StatusBadData
	}
	return StatusGood
}

// TrackScanned counts a track and its sectors. Blank tracks are counted
// with an unknown encoding.
func (c *Collector) TrackScanned(ch geom.CylHead, t *track.Track, elapsed time.Duration) {
	enc, rate := geom.EncodingUnknown, geom.DataRateUnknown
	if !t.Empty() {
		enc, rate = t.At(0).Encoding, t.At(0).DataRate
	}
	c.Tracks.WithLabelValues(enc.String(), rate.String()).Inc()

	for _, s := range t.Sectors() {
		c.Sectors.WithLabelValues(SectorStatus(s)).Inc()
	}
	c.ScanSeconds.Observe(elapsed.Seconds())
}

func (c *Collector) WobbleRetry(enc geom.Encoding) {
	c.Retries.WithLabelValues(enc.String()).Inc()
}

func (c *Collector) UnsupportedFormat(enc geom.Encoding) {
	c.Unsupported.WithLabelValues(enc.String()).Inc()
}
