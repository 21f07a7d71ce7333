// ABOUTME: Alignment health metrics and snapshot types
// ABOUTME: Mutated only by the alignment worker, read as copies
package align

import "github.com/sdrsync/sdrsync-go/internal/audio"

// Metrics is a snapshot of alignment engine health. Readers always get
// a copy; the worker is the only writer of the live values.
type Metrics struct {
	TotalAttempts    uint64
	SuccessfulAligns uint64
	SuccessRate      float64

	// Exponentially smoothed stddev of the normalized timestamps mixed
	// together in one cycle
	TimestampJitterMs float64

	PlaybackUtilization float64
	Underruns           uint64
	ChunksDropped       uint64

	SourceUtilization map[audio.SourceID]float64
	SourceOffsetMs    map[audio.SourceID]float64
	SourceDriftRate   map[audio.SourceID]float64
}

func newMetrics() Metrics {
	return Metrics{
		SourceUtilization: make(map[audio.SourceID]float64),
		SourceOffsetMs:    make(map[audio.SourceID]float64),
		SourceDriftRate:   make(map[audio.SourceID]float64),
	}
}

// clone returns a deep copy safe to hand to concurrent readers
func (m Metrics) clone() Metrics {
	out := m
	out.SourceUtilization = make(map[audio.SourceID]float64, len(m.SourceUtilization))
	out.SourceOffsetMs = make(map[audio.SourceID]float64, len(m.SourceOffsetMs))
	out.SourceDriftRate = make(map[audio.SourceID]float64, len(m.SourceDriftRate))
	for id, v := range m.SourceUtilization {
		out.SourceUtilization[id] = v
	}
	for id, v := range m.SourceOffsetMs {
		out.SourceOffsetMs[id] = v
	}
	for id, v := range m.SourceDriftRate {
		out.SourceDriftRate[id] = v
	}
	return out
}

// FixedMetrics is a snapshot of fixed-offset aligner health
type FixedMetrics struct {
	SoftTrims       uint64
	HardTruncations uint64
	SourceOffsetMs  map[audio.SourceID]float64
	PendingSamples  map[audio.SourceID]int
}
