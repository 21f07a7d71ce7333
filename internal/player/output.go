// ABOUTME: Audio output using oto library
// ABOUTME: Pulls aligned samples from the playback buffer on demand
package player

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sdrsync/sdrsync-go/internal/audio"
)

// SampleSource supplies fixed-size sample blocks on demand. The
// alignment engine's playback buffer implements this: reads are
// zero-padded rather than blocking, so the device callback cadence is
// never disturbed.
type SampleSource interface {
	ReadSamples(n int) []int16
}

// Output manages the audio device
type Output struct {
	otoCtx *oto.Context
	player *oto.Player
	format audio.Format

	mu     sync.RWMutex
	volume int
	muted  bool
	ready  bool
}

// NewOutput creates an audio output
func NewOutput() *Output {
	return &Output{
		volume: 100,
	}
}

// Initialize sets up oto and starts pulling from the source
func (o *Output) Initialize(format audio.Format, src SampleSource) error {
	if o.otoCtx != nil {
		o.Close()
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = format

	o.player = ctx.NewPlayer(&pcmReader{out: o, src: src})
	o.player.Play()

	o.mu.Lock()
	o.ready = true
	o.mu.Unlock()

	log.Printf("Audio output initialized: %dHz, %d channels",
		format.SampleRate, format.Channels)

	return nil
}

// SetVolume sets the volume (0-100)
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Output) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Output) GetVolume() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.volume
}

// IsMuted returns mute state
func (o *Output) IsMuted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.muted
}

// Close closes the audio output
func (o *Output) Close() {
	o.mu.Lock()
	o.ready = false
	o.mu.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
}

// pcmReader adapts the sample source to the io.Reader oto pulls from
type pcmReader struct {
	out *Output
	src SampleSource
}

func (r *pcmReader) Read(p []byte) (int, error) {
	n := len(p) / 2
	if n == 0 {
		return 0, nil
	}

	samples := r.src.ReadSamples(n)
	samples = applyVolume(samples, r.out.GetVolume(), r.out.IsMuted())

	for i, sample := range samples {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(sample))
	}

	return n * 2, nil
}

// applyVolume applies volume and mute to samples
func applyVolume(samples []int16, volume int, muted bool) []int16 {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		return samples
	}

	result := make([]int16, len(samples))
	for i, sample := range samples {
		result[i] = int16(float64(sample) * multiplier)
	}

	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
