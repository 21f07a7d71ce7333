// ABOUTME: Chunk feeder that drives a source into the alignment engine
// ABOUTME: Applies synthetic clock offset and drift to chunk timestamps
package source

import (
	"context"
	"log"
	"time"

	"github.com/sdrsync/sdrsync-go/internal/audio"
)

// Sink accepts timestamped chunks from a source. The alignment engine
// implements this.
type Sink interface {
	AddData(id audio.SourceID, timestampMs float64, samples []int16)
}

// FeederConfig configures a simulated feed
type FeederConfig struct {
	SourceID audio.SourceID
	// OffsetMs is added to every chunk timestamp, simulating a source
	// whose clock is ahead (positive) or behind (negative) of ours.
	OffsetMs float64
	// DriftPPM simulates clock drift in parts per million. 100 PPM
	// means the source clock gains 0.1ms per second.
	DriftPPM float64
}

// Feeder reads chunks from a source on a fixed cadence and pushes them
// into a sink with simulated clock skew applied
type Feeder struct {
	config  FeederConfig
	source  Source
	sink    Sink
	started time.Time
}

// NewFeeder creates a feeder
func NewFeeder(config FeederConfig, src Source, sink Sink) *Feeder {
	return &Feeder{
		config: config,
		source: src,
		sink:   sink,
	}
}

// Run feeds chunks until the context is cancelled
func (f *Feeder) Run(ctx context.Context) {
	f.started = time.Now()

	interval := time.Duration(audio.ChunkDurationMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Feeder %d started (offset %.1fms, drift %.1f PPM)",
		f.config.SourceID, f.config.OffsetMs, f.config.DriftPPM)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Feeder %d stopped", f.config.SourceID)
			return
		case <-ticker.C:
			f.feedOnce()
		}
	}
}

// feedOnce reads one chunk and pushes it with skewed timestamp
func (f *Feeder) feedOnce() {
	samples := make([]int16, audio.ChunkSamples)
	n, err := f.source.Read(samples)
	if err != nil {
		log.Printf("Feeder %d read error: %v", f.config.SourceID, err)
		return
	}

	f.sink.AddData(f.config.SourceID, f.skewedNow(), samples[:n])
}

// skewedNow returns the current time as seen by the simulated source clock
func (f *Feeder) skewedNow() float64 {
	now := audio.NowMs()
	elapsedSec := time.Since(f.started).Seconds()
	drift := f.config.DriftPPM / 1000.0 * elapsedSec // PPM -> ms/s
	return now + f.config.OffsetMs + drift
}
