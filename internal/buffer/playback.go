// ABOUTME: Circular sample buffer feeding the audio sink
// ABOUTME: Single writer (alignment worker), single reader (output device)
package buffer

import "sync/atomic"

// Playback is a fixed-capacity circular buffer of raw PCM samples with
// the same SPSC discipline as Ring: the alignment worker writes, the
// audio sink reads, and one slot stays free so the two indices fully
// describe the fill state (available + free = capacity - 1).
type Playback struct {
	samples   []int16
	capacity  uint64
	readPos   atomic.Uint64
	writePos  atomic.Uint64
	underruns atomic.Uint64
}

// NewPlayback creates a playback buffer holding at most capacity-1 samples
func NewPlayback(capacity int) *Playback {
	if capacity < 2 {
		capacity = 2
	}
	return &Playback{
		samples:  make([]int16, capacity),
		capacity: uint64(capacity),
	}
}

// WriteSamples appends as many samples as fit and returns the count
// written. Samples beyond the free space are dropped; never blocks.
func (p *Playback) WriteSamples(block []int16) int {
	w := p.writePos.Load()
	rd := p.readPos.Load()
	free := p.capacity - 1 - (w - rd)
	n := uint64(len(block))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	// Split the copy in two when it crosses the buffer end
	start := w % p.capacity
	first := p.capacity - start
	if first > n {
		first = n
	}
	copy(p.samples[start:start+first], block[:first])
	copy(p.samples[:n-first], block[first:n])

	p.writePos.Store(w + n)
	return int(n)
}

// ReadSamples returns a block of exactly n samples. When fewer are
// available the tail is zero-padded so the sink's fixed callback timing
// is preserved; the shortfall is counted as an underrun.
func (p *Playback) ReadSamples(n int) []int16 {
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)

	rd := p.readPos.Load()
	w := p.writePos.Load()
	avail := w - rd
	take := uint64(n)
	if take > avail {
		take = avail
		p.underruns.Add(1)
	}
	if take == 0 {
		return out
	}

	start := rd % p.capacity
	first := p.capacity - start
	if first > take {
		first = take
	}
	copy(out[:first], p.samples[start:start+first])
	copy(out[first:take], p.samples[:take-first])

	p.readPos.Store(rd + take)
	return out
}

// Available returns the number of samples ready to read
func (p *Playback) Available() int {
	return int(p.writePos.Load() - p.readPos.Load())
}

// Utilization returns fill level in [0,1]
func (p *Playback) Utilization() float64 {
	return float64(p.Available()) / float64(p.capacity-1)
}

// Underruns returns the number of short reads so far
func (p *Playback) Underruns() uint64 {
	return p.underruns.Load()
}

// Clear drains all pending samples. Reader-side only.
func (p *Playback) Clear() {
	p.readPos.Store(p.writePos.Load())
}
