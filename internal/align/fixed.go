// ABOUTME: Fixed-offset aligner for lightweight single-pair alignment
// ABOUTME: Delays or passes through one source's audio using a constant offset
package align

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/sdrsync/sdrsync-go/internal/audio"
)

// FixedConfig holds fixed-offset aligner tuning
type FixedConfig struct {
	SampleRate       int
	NoiseThresholdMs float64       // offset changes below this are not logged
	SoftCapMs        float64       // pending growth beyond target+soft triggers gradual trim
	HardCapMs        float64       // absolute pending maximum before truncation
	LogInterval      time.Duration // minimum spacing of cap warnings
}

// DefaultFixedConfig returns the standard aligner tuning
func DefaultFixedConfig() FixedConfig {
	return FixedConfig{
		SampleRate:       audio.DefaultSampleRate,
		NoiseThresholdMs: 5,
		SoftCapMs:        500,
		HardCapMs:        2000,
		LogInterval:      5 * time.Second,
	}
}

// delayState is one source's pending delay buffer
type delayState struct {
	offsetMs      float64
	offsetSamples int
	pending       []int16
	lastSoftLog   time.Time
	lastHardLog   time.Time
}

// FixedOffsetAligner shifts a single source's chunks by a known
// constant offset and forwards them immediately, with no cross-source
// search. Used when only a long-window-averaged offset is available
// and the full engine's buffering overhead is unwanted.
type FixedOffsetAligner struct {
	mu      sync.Mutex
	cfg     FixedConfig
	sources map[audio.SourceID]*delayState

	reference audio.SourceID
	hasRef    bool

	softTrims       uint64
	hardTruncations uint64

	nowFn func() time.Time
}

// NewFixedOffsetAligner creates a fixed-offset aligner
func NewFixedOffsetAligner(cfg FixedConfig) *FixedOffsetAligner {
	if cfg.SampleRate <= 0 {
		cfg = DefaultFixedConfig()
	}
	return &FixedOffsetAligner{
		cfg:     cfg,
		sources: make(map[audio.SourceID]*delayState),
		nowFn:   time.Now,
	}
}

// UpdateOffset stores a source's offset and its sample-count
// equivalent. Changes below the noise threshold are applied silently
// to avoid log spam. The reference becomes whichever source has the
// smallest absolute offset.
func (a *FixedOffsetAligner) UpdateOffset(id audio.SourceID, offsetMs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sources[id]
	if !ok {
		s = &delayState{}
		a.sources[id] = s
	}

	if math.Abs(offsetMs-s.offsetMs) > a.cfg.NoiseThresholdMs {
		log.Printf("Fixed aligner: source %d offset %.1fms -> %.1fms", id, s.offsetMs, offsetMs)
	}
	s.offsetMs = offsetMs
	s.offsetSamples = audio.MsToSamples(offsetMs, a.cfg.SampleRate)

	a.selectReferenceLocked()
}

// ApplyAlignment shifts one chunk of a source's audio by its stored
// offset and returns the samples to emit now.
//
// Positive offset (source ahead of the reference): incoming samples
// are buffered and emitted only once enough are held to sustain the
// target delay; while the delay builds, silence is emitted in their
// place. Negative or zero offset: audio passes through immediately,
// draining any still-pending delayed audio ahead of the new samples so
// a sign flip neither duplicates nor skips samples.
func (a *FixedOffsetAligner) ApplyAlignment(id audio.SourceID, samples []int16) []int16 {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sources[id]
	if !ok {
		// Unknown source: nothing to shift
		return samples
	}

	if s.offsetSamples == 0 {
		s.pending = nil
		return samples
	}

	if s.offsetSamples < 0 {
		// Source is behind the reference (or the offset sign just
		// flipped): play immediately, oldest delayed audio first
		if len(s.pending) > 0 {
			out := make([]int16, 0, len(s.pending)+len(samples))
			out = append(out, s.pending...)
			out = append(out, samples...)
			s.pending = nil
			return out
		}
		return samples
	}

	// Source is ahead: hold the audio back by offsetSamples
	s.pending = append(s.pending, samples...)
	a.enforceCapsLocked(id, s)

	n := len(samples)
	out := make([]int16, n)
	if excess := len(s.pending) - s.offsetSamples; excess > 0 {
		emit := excess
		if emit > n {
			emit = n
		}
		// Silence leads while the delay is still building
		copy(out[n-emit:], s.pending[:emit])
		s.pending = s.pending[emit:]
	}
	return out
}

// ClearOffset drops all state for a disconnected source, including its
// pending buffer and log timestamps
func (a *FixedOffsetAligner) ClearOffset(id audio.SourceID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sources, id)
	a.selectReferenceLocked()
	log.Printf("Fixed aligner: cleared source %d", id)
}

// Metrics returns a snapshot of aligner health
func (a *FixedOffsetAligner) Metrics() FixedMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := FixedMetrics{
		SoftTrims:       a.softTrims,
		HardTruncations: a.hardTruncations,
		SourceOffsetMs:  make(map[audio.SourceID]float64, len(a.sources)),
		PendingSamples:  make(map[audio.SourceID]int, len(a.sources)),
	}
	for id, s := range a.sources {
		m.SourceOffsetMs[id] = s.offsetMs
		m.PendingSamples[id] = len(s.pending)
	}
	return m
}

// Reference returns the source currently closest to zero offset
func (a *FixedOffsetAligner) Reference() (audio.SourceID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reference, a.hasRef
}

// enforceCapsLocked keeps the pending buffer bounded: a soft cap trims
// a small fraction per call for smooth convergence, a hard cap
// truncates straight to the target size. Both warn at most once per
// log interval.
func (a *FixedOffsetAligner) enforceCapsLocked(id audio.SourceID, s *delayState) {
	now := a.nowFn()

	// The hard cap is an absolute bound, raised only when the target
	// delay itself exceeds it
	hardCap := audio.MsToSamples(a.cfg.HardCapMs, a.cfg.SampleRate)
	if s.offsetSamples > hardCap {
		hardCap = s.offsetSamples
	}
	if len(s.pending) > hardCap {
		dropped := len(s.pending) - s.offsetSamples
		s.pending = s.pending[len(s.pending)-s.offsetSamples:]
		a.hardTruncations++
		if now.Sub(s.lastHardLog) > a.cfg.LogInterval {
			log.Printf("Fixed aligner: source %d pending hit hard cap, truncated %d samples", id, dropped)
			s.lastHardLog = now
		}
		return
	}

	softCap := s.offsetSamples + audio.MsToSamples(a.cfg.SoftCapMs, a.cfg.SampleRate)
	if len(s.pending) > softCap {
		trim := (len(s.pending) - softCap) / 8
		if trim < 1 {
			trim = 1
		}
		s.pending = s.pending[trim:]
		a.softTrims++
		if now.Sub(s.lastSoftLog) > a.cfg.LogInterval {
			log.Printf("Fixed aligner: source %d pending over soft cap, trimming %d samples/cycle", id, trim)
			s.lastSoftLog = now
		}
	}
}

func (a *FixedOffsetAligner) selectReferenceLocked() {
	a.hasRef = false
	best := 0.0
	for id, s := range a.sources {
		if !a.hasRef || math.Abs(s.offsetMs) < best {
			a.reference = id
			best = math.Abs(s.offsetMs)
			a.hasRef = true
		}
	}
}
