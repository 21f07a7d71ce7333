// ABOUTME: Tests for the continuous alignment engine
// ABOUTME: Covers matching, mixing, partial cycles, and source lifecycle
package align

import (
	"testing"
	"time"

	"github.com/sdrsync/sdrsync-go/internal/audio"
)

func constSamples(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// feedWindow pushes chunks covering [now-200ms, now-40ms) for a source
// whose clock runs offset ms ahead of local time
func feedWindow(e *Engine, id audio.SourceID, now, offset float64, value int16) {
	base := now - 200
	for k := 0; k < 5; k++ {
		ts := base + float64(k*40)
		e.AddData(id, ts+offset, constSamples(audio.ChunkSamples, value))
	}
}

func TestEngineMixesWhenAllSourcesMatch(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := audio.NowMs()
	e.nowMs = func() float64 { return now }

	// Source 2's clock reports +50ms relative to source 1
	feedWindow(e, 1, now, 0, 1000)
	feedWindow(e, 2, now, 50, 2000)

	if !e.alignOnce() {
		t.Fatal("expected alignment to succeed with overlapping data")
	}

	out := e.ReadSamples(audio.ChunkSamples)
	if out[0] != 1500 {
		t.Errorf("expected mixed sample 1500, got %d", out[0])
	}

	m := e.Metrics()
	if m.TotalAttempts != 1 || m.SuccessfulAligns != 1 {
		t.Errorf("expected 1/1 attempts, got %d/%d", m.SuccessfulAligns, m.TotalAttempts)
	}
	if m.SuccessRate != 1.0 {
		t.Errorf("expected success rate 1.0, got %f", m.SuccessRate)
	}
}

func TestEnginePartialMatchYieldsNoOutput(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := audio.NowMs()
	e.nowMs = func() float64 { return now }

	feedWindow(e, 1, now, 0, 1000)
	e.AddSource(2) // tracked but has no data

	if e.alignOnce() {
		t.Fatal("expected no output when a source cannot match")
	}

	if e.playback.Available() != 0 {
		t.Errorf("expected empty playback buffer, got %d", e.playback.Available())
	}

	m := e.Metrics()
	if m.TotalAttempts != 1 || m.SuccessfulAligns != 0 {
		t.Errorf("expected 0/1 attempts, got %d/%d", m.SuccessfulAligns, m.TotalAttempts)
	}
}

func TestEngineOutOfToleranceSourceSkipsCycle(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := audio.NowMs()
	e.nowMs = func() float64 { return now }

	// Train both clocks identically so relative offset is zero
	e.AddSource(1)
	e.AddSource(2)
	for k := 0; k < 10; k++ {
		ts := now - 200 + float64(k*20)
		e.clock.MeasureOffset(1, ts)
		e.clock.MeasureOffset(2, ts)
	}

	feedWindow(e, 1, now, 0, 1000)
	// Source 2's only chunk normalizes ~90ms from the target: outside
	// the 50ms window
	e.AddData(2, now-10, constSamples(audio.ChunkSamples, 2000))

	if e.alignOnce() {
		t.Fatal("expected cycle to fail with an out-of-tolerance source")
	}
}

func TestEngineSuccessRateConverges(t *testing.T) {
	e := NewEngine(DefaultConfig())
	simNow := audio.NowMs()
	e.nowMs = func() float64 { return simNow }

	// Two sources at 12kHz emitting 40ms chunks every 40ms, source 2
	// fixed at +50ms
	for i := 0; i < 50; i++ {
		e.AddData(1, simNow, constSamples(audio.ChunkSamples, 100))
		e.AddData(2, simNow+50, constSamples(audio.ChunkSamples, 300))
		e.alignOnce()
		e.ReadSamples(audio.ChunkSamples) // sink keeps draining
		simNow += 40
	}

	m := e.Metrics()
	if m.SuccessRate < 0.9 {
		t.Errorf("expected success rate above 0.9 at steady state, got %f (%d/%d)",
			m.SuccessRate, m.SuccessfulAligns, m.TotalAttempts)
	}
	if m.TimestampJitterMs > 10 {
		t.Errorf("expected small jitter for constant offset, got %f", m.TimestampJitterMs)
	}
}

func TestEngineRemoveSourceReleasesState(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := audio.NowMs()
	e.nowMs = func() float64 { return now }

	feedWindow(e, 1, now, 0, 1000)
	e.AddSource(2)

	// Source 2 blocks alignment until removed
	if e.alignOnce() {
		t.Fatal("expected failure while source 2 is empty")
	}

	e.RemoveSource(2)

	if !e.alignOnce() {
		t.Fatal("expected success after removing the empty source")
	}

	m := e.Metrics()
	if _, ok := m.SourceUtilization[2]; ok {
		t.Error("expected source 2 gauges to be released")
	}
}

func TestEngineDropsChunksWhenRingFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RingCapacity = 4 // holds 3 chunks
	e := NewEngine(cfg)

	now := audio.NowMs()
	for k := 0; k < 10; k++ {
		e.AddData(1, now+float64(k*40), constSamples(audio.ChunkSamples, 1))
	}

	m := e.Metrics()
	if m.ChunksDropped != 7 {
		t.Errorf("expected 7 dropped chunks, got %d", m.ChunksDropped)
	}
}

func TestEngineStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleInterval = time.Millisecond
	e := NewEngine(cfg)

	e.Start()
	e.Start() // idempotent

	now := audio.NowMs()
	feedWindow(e, 1, now, 0, 500)
	time.Sleep(20 * time.Millisecond)

	e.Stop()
	e.Stop() // idempotent

	if e.Metrics().TotalAttempts == 0 {
		t.Error("expected the worker to have attempted alignment")
	}
}

func TestMixChunksTruncatesAndPads(t *testing.T) {
	chunks := []audio.Chunk{
		{Samples: []int16{100, 200, 300}},
		{Samples: []int16{300, 400, 500, 600, 700}},
	}

	out := mixChunks(chunks, 8)
	if len(out) != 8 {
		t.Fatalf("expected padded length 8, got %d", len(out))
	}

	// Averaged over the shortest contributor
	for i, want := range []int16{200, 300, 400} {
		if out[i] != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, out[i])
		}
	}
	// Remainder is silence
	for i := 3; i < 8; i++ {
		if out[i] != 0 {
			t.Errorf("sample %d: expected silence, got %d", i, out[i])
		}
	}
}

func TestEngineGaugesRefresh(t *testing.T) {
	e := NewEngine(DefaultConfig())
	now := audio.NowMs()
	e.nowMs = func() float64 { return now }

	feedWindow(e, 1, now, 0, 1000)
	e.refreshGauges()

	m := e.Metrics()
	if m.SourceUtilization[1] <= 0 {
		t.Errorf("expected nonzero ring utilization, got %f", m.SourceUtilization[1])
	}
}
