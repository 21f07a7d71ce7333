// ABOUTME: Continuous alignment worker mixing multiple receiver streams
// ABOUTME: Pulls nearest-matching chunks per source and fills the playback buffer
package align

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sdrsync/sdrsync-go/internal/audio"
	"github.com/sdrsync/sdrsync-go/internal/buffer"
	"github.com/sdrsync/sdrsync-go/internal/clock"
)

// Config holds alignment engine tuning
type Config struct {
	SampleRate       int
	ChunkSamples     int
	RingCapacity     int // chunks held per source
	PlaybackCapacity int // samples held for the sink

	TargetFillMs float64 // playback fill level the worker maintains
	LookaheadMs  float64 // how far behind real time the mix target sits
	ToleranceMs  float64 // acceptance window around the target timestamp

	CycleInterval time.Duration // worker sleep granularity
	RecalInterval time.Duration // clock recalibration period
}

// DefaultConfig returns the standard engine tuning
func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.DefaultSampleRate,
		ChunkSamples:     audio.ChunkSamples,
		RingCapacity:     64,
		PlaybackCapacity: audio.DefaultSampleRate * 2, // 2 seconds
		TargetFillMs:     150,
		LookaheadMs:      100,
		ToleranceMs:      50,
		CycleInterval:    5 * time.Millisecond,
		RecalInterval:    60 * time.Second,
	}
}

// source is one tracked receiver stream
type source struct {
	id   audio.SourceID
	ring *buffer.Ring[audio.Chunk]
}

// Engine aligns chunks from independently clocked sources onto one
// playback timeline. Each source's feed goroutine writes its ring; the
// worker goroutine is the sole ring consumer and the sole playback
// writer; the audio sink is the sole playback reader.
type Engine struct {
	cfg      Config
	clock    *clock.Compensator
	playback *buffer.Playback

	mu      sync.RWMutex
	sources map[audio.SourceID]*source

	running  bool
	stopChan chan struct{}

	metricsMu sync.Mutex
	metrics   Metrics
	lastRecal time.Time

	nowMs func() float64
}

// NewEngine creates an alignment engine
func NewEngine(cfg Config) *Engine {
	if cfg.SampleRate <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:       cfg,
		clock:     clock.NewCompensator(),
		playback:  buffer.NewPlayback(cfg.PlaybackCapacity),
		sources:   make(map[audio.SourceID]*source),
		metrics:   newMetrics(),
		lastRecal: time.Now(),
		nowMs:     audio.NowMs,
	}
}

// AddSource registers a source and allocates its ring buffer
func (e *Engine) AddSource(id audio.SourceID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[id]; ok {
		return
	}
	e.sources[id] = &source{
		id:   id,
		ring: buffer.NewRing[audio.Chunk](e.cfg.RingCapacity),
	}
	log.Printf("Alignment engine: added source %d", id)
}

// RemoveSource releases a source's buffers and clock state. Other
// sources' alignment is undisturbed.
func (e *Engine) RemoveSource(id audio.SourceID) {
	e.mu.Lock()
	delete(e.sources, id)
	e.mu.Unlock()

	e.clock.RemoveSource(id)

	e.metricsMu.Lock()
	delete(e.metrics.SourceUtilization, id)
	delete(e.metrics.SourceOffsetMs, id)
	delete(e.metrics.SourceDriftRate, id)
	e.metricsMu.Unlock()

	log.Printf("Alignment engine: removed source %d", id)
}

// AddData enqueues one timestamped chunk from a source's feed. The
// source is created on first data. Never blocks: when the source's
// ring is full the chunk is dropped and counted.
func (e *Engine) AddData(id audio.SourceID, timestampMs float64, samples []int16) {
	e.mu.RLock()
	s, ok := e.sources[id]
	e.mu.RUnlock()
	if !ok {
		e.AddSource(id)
		e.mu.RLock()
		s = e.sources[id]
		e.mu.RUnlock()
		if s == nil {
			// Removed again before we could enqueue
			return
		}
	}

	e.clock.MeasureOffset(id, timestampMs)

	if !s.ring.Write(audio.Chunk{TimestampMs: timestampMs, Samples: samples}) {
		e.metricsMu.Lock()
		e.metrics.ChunksDropped++
		e.metricsMu.Unlock()
	}
}

// Start launches the worker goroutine. Safe to call more than once.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	go e.run(e.stopChan)
	log.Printf("Alignment engine started")
}

// Stop signals the worker to exit; it finishes within one cycle
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopChan)
	log.Printf("Alignment engine stopped")
}

// ReadSamples hands the sink a block of exactly n samples, zero-padded
// on underrun
func (e *Engine) ReadSamples(n int) []int16 {
	return e.playback.ReadSamples(n)
}

// Metrics returns a snapshot copy of engine health
func (e *Engine) Metrics() Metrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	return e.metrics.clone()
}

func (e *Engine) run(stop chan struct{}) {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

// cycle tops the playback buffer up to the target fill level. A panic
// inside one cycle is recovered and logged so the worker survives to
// the next tick.
func (e *Engine) cycle() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Alignment cycle recovered: %v", r)
		}
	}()

	targetFill := audio.MsToSamples(e.cfg.TargetFillMs, e.cfg.SampleRate)
	for e.playback.Available() < targetFill {
		if !e.alignOnce() {
			break
		}
	}

	e.maybeRecalibrate()
	e.refreshGauges()
}

// alignOnce attempts to mix one chunk across all active sources.
// Output is produced only when every source has a chunk within
// tolerance of the target timestamp; partial matches yield nothing so
// the mix composition stays deterministic.
func (e *Engine) alignOnce() bool {
	e.mu.RLock()
	active := make([]*source, 0, len(e.sources))
	for _, s := range e.sources {
		active = append(active, s)
	}
	e.mu.RUnlock()

	if len(active) == 0 {
		return false
	}
	sort.Slice(active, func(i, j int) bool { return active[i].id < active[j].id })

	target := e.nowMs() - e.cfg.LookaheadMs

	type match struct {
		src  *source
		idx  int
		norm float64
	}
	matches := make([]match, 0, len(active))
	allMatched := true
	for _, s := range active {
		idx, norm, ok := e.bestChunk(s, target)
		if !ok {
			allMatched = false
			continue
		}
		matches = append(matches, match{src: s, idx: idx, norm: norm})
	}

	e.metricsMu.Lock()
	e.metrics.TotalAttempts++
	if allMatched {
		e.metrics.SuccessfulAligns++
	}
	if e.metrics.TotalAttempts > 0 {
		e.metrics.SuccessRate = float64(e.metrics.SuccessfulAligns) / float64(e.metrics.TotalAttempts)
	}
	e.metricsMu.Unlock()

	if !allMatched {
		return false
	}

	// Consume the chosen chunk from each ring, discarding anything older
	chunks := make([]audio.Chunk, 0, len(matches))
	stamps := make([]float64, 0, len(matches))
	for _, m := range matches {
		var chosen audio.Chunk
		for i := 0; i <= m.idx; i++ {
			chosen, _ = m.src.ring.Read()
		}
		chunks = append(chunks, chosen)
		stamps = append(stamps, m.norm)
	}

	mixed := mixChunks(chunks, e.cfg.ChunkSamples)
	e.playback.WriteSamples(mixed)

	e.updateJitter(stamps)
	return true
}

// bestChunk scans a source's ring for the chunk whose normalized
// timestamp lies nearest the target, accepting it only within
// tolerance. Chunks already too old to ever match are consumed and
// discarded (the target only moves forward). Ties keep the first
// chunk found. Does not consume the candidate.
func (e *Engine) bestChunk(s *source, target float64) (int, float64, bool) {
	// Prune heads that fell out of the acceptance window for good
	for {
		c, ok := s.ring.Peek(0)
		if !ok {
			return 0, 0, false
		}
		norm := e.clock.NormalizeTimestamp(s.id, c.TimestampMs)
		if norm >= target-e.cfg.ToleranceMs {
			break
		}
		s.ring.Read()
	}

	bestIdx := -1
	bestNorm := 0.0
	bestDiff := math.MaxFloat64
	for i := 0; ; i++ {
		c, ok := s.ring.Peek(i)
		if !ok {
			break
		}
		norm := e.clock.NormalizeTimestamp(s.id, c.TimestampMs)
		diff := math.Abs(norm - target)
		if diff <= e.cfg.ToleranceMs && diff < bestDiff {
			bestIdx = i
			bestNorm = norm
			bestDiff = diff
		}
		if norm > target+e.cfg.ToleranceMs {
			// Ring is timestamp-ordered: later chunks are only newer
			break
		}
	}

	if bestIdx < 0 {
		return 0, 0, false
	}
	return bestIdx, bestNorm, true
}

// mixChunks elementwise-averages the sample sequences, truncated to
// the shortest contributor, padded with silence to the chunk length
func mixChunks(chunks []audio.Chunk, chunkSamples int) []int16 {
	shortest := math.MaxInt
	for _, c := range chunks {
		if len(c.Samples) < shortest {
			shortest = len(c.Samples)
		}
	}
	if shortest == math.MaxInt {
		shortest = 0
	}

	outLen := chunkSamples
	if shortest > outLen {
		outLen = shortest
	}
	out := make([]int16, outLen)

	n := int32(len(chunks))
	for i := 0; i < shortest; i++ {
		var sum int32
		for _, c := range chunks {
			sum += int32(c.Samples[i])
		}
		out[i] = int16(sum / n)
	}
	return out
}

// updateJitter folds the stddev of this cycle's contributing
// normalized timestamps into the smoothed jitter gauge
func (e *Engine) updateJitter(stamps []float64) {
	if len(stamps) < 2 {
		return
	}
	var mean float64
	for _, s := range stamps {
		mean += s
	}
	mean /= float64(len(stamps))

	var variance float64
	for _, s := range stamps {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(stamps))
	stddev := math.Sqrt(variance)

	const alpha = 0.1
	e.metricsMu.Lock()
	e.metrics.TimestampJitterMs = (1-alpha)*e.metrics.TimestampJitterMs + alpha*stddev
	e.metricsMu.Unlock()
}

func (e *Engine) maybeRecalibrate() {
	if time.Since(e.lastRecal) < e.cfg.RecalInterval {
		return
	}
	e.clock.Recalibrate()
	e.lastRecal = time.Now()
}

// refreshGauges updates buffer and per-source gauges
func (e *Engine) refreshGauges() {
	e.mu.RLock()
	type gauge struct {
		id          audio.SourceID
		utilization float64
	}
	gauges := make([]gauge, 0, len(e.sources))
	for id, s := range e.sources {
		gauges = append(gauges, gauge{id: id, utilization: s.ring.Utilization()})
	}
	e.mu.RUnlock()

	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	e.metrics.PlaybackUtilization = e.playback.Utilization()
	e.metrics.Underruns = e.playback.Underruns()
	for _, g := range gauges {
		e.metrics.SourceUtilization[g.id] = g.utilization
		e.metrics.SourceOffsetMs[g.id] = e.clock.OffsetMs(g.id)
		e.metrics.SourceDriftRate[g.id] = e.clock.DriftRate(g.id)
	}
}
