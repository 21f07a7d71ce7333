// ABOUTME: Core audio type definitions for receiver streams
// ABOUTME: Defines formats, source ids, and timestamped PCM chunks
package audio

import "time"

const (
	// Default receiver stream format (mono 16-bit narrowband audio)
	DefaultSampleRate = 12000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// Chunk timing
	ChunkDurationMs = 40
	ChunkSamples    = (DefaultSampleRate * ChunkDurationMs) / 1000
)

// SourceID identifies one upstream receiver stream.
type SourceID int

// Format describes a receiver audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat returns the standard receiver stream format
func DefaultFormat() Format {
	return Format{
		Codec:      "pcm",
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// Chunk is a block of PCM samples stamped with the source's reported
// wall-clock time in milliseconds. Chunks are immutable once enqueued;
// buffers store copies so producer and consumer never share a slice.
type Chunk struct {
	TimestampMs float64
	Samples     []int16
}

// Clone returns a deep copy of the chunk
func (c Chunk) Clone() Chunk {
	samples := make([]int16, len(c.Samples))
	copy(samples, c.Samples)
	return Chunk{TimestampMs: c.TimestampMs, Samples: samples}
}

// DurationMs returns the chunk's play length at the given sample rate
func (c Chunk) DurationMs(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(sampleRate) * 1000.0
}

// MsToSamples converts a duration in milliseconds to a sample count
func MsToSamples(ms float64, sampleRate int) int {
	return int(ms / 1000.0 * float64(sampleRate))
}

// SamplesToMs converts a sample count to a duration in milliseconds
func SamplesToMs(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate) * 1000.0
}

// NowMs returns local wall-clock time in milliseconds
func NowMs() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}
