// ABOUTME: Simulated audio sources for feeding the alignment engine
// ABOUTME: Supports test tones and MP3/FLAC files, downmixed to mono int16
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sdrsync/sdrsync-go/internal/audio"
)

// Source provides mono PCM samples for simulation
type Source interface {
	// Read fills the buffer with mono int16 samples. Returns number of
	// samples read or error.
	Read(samples []int16) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Close closes the source
	Close() error
}

// NewSource creates a source from a file path.
// If path is empty, returns a test tone generator.
func NewSource(path string) (Source, error) {
	if path == "" {
		return NewToneSource(440.0), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return NewMP3Source(path)
	case ".flac":
		return NewFLACSource(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

// ToneSource generates a sine wave test tone
type ToneSource struct {
	sampleIndex uint64
	sampleMu    sync.Mutex
	frequency   float64
}

// NewToneSource creates a sine wave generator at the given frequency
func NewToneSource(frequency float64) *ToneSource {
	return &ToneSource{
		frequency: frequency,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(audio.DefaultSampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		samples[i] = int16(sample * 32767.0 * 0.5) // 50% volume
	}

	s.sampleIndex += uint64(len(samples))

	return len(samples), nil
}

func (s *ToneSource) SampleRate() int { return audio.DefaultSampleRate }
func (s *ToneSource) Close() error   { return nil }

// MP3Source reads from an MP3 file, downmixing stereo to mono
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
}

// NewMP3Source creates a new MP3 source
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", filepath.Base(filePath), decoder.SampleRate())

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	// MP3 decoder outputs stereo int16; read frames and downmix
	numBytes := len(samples) * 4 // 2 channels * 2 bytes
	buf := make([]byte, numBytes)

	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}

	frames := n / 4
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(buf[i*4 : i*4+2]))
		right := int16(binary.LittleEndian.Uint16(buf[i*4+2 : i*4+4]))
		samples[i] = int16((int32(left) + int32(right)) / 2)
	}

	if err == io.EOF {
		// Loop the audio - seek back to start
		if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
			return frames, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		newDecoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return frames, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = newDecoder
	}

	return frames, nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// FLACSource reads from a FLAC file, downmixing to mono
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	leftover   []int16
}

// NewFLACSource creates a new FLAC source
func NewFLACSource(filePath string) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	log.Printf("Loaded FLAC: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		filepath.Base(filePath), info.SampleRate, info.NChannels, info.BitsPerSample)

	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}, nil
}

func (s *FLACSource) Read(samples []int16) (int, error) {
	read := 0

	// Drain leftover from the previous frame first
	n := copy(samples, s.leftover)
	s.leftover = s.leftover[n:]
	read += n

	for read < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				// Loop back to start
				if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
					return read, fmt.Errorf("failed to seek to start: %w", seekErr)
				}
				newStream, decErr := flac.New(s.file)
				if decErr != nil {
					return read, fmt.Errorf("failed to create new stream: %w", decErr)
				}
				s.stream = newStream
				continue
			}
			return read, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			var sum int32
			for ch := 0; ch < s.channels; ch++ {
				sum += s.toInt16(frame.Subframes[ch].Samples[i])
			}
			mono := int16(sum / int32(s.channels))

			if read < len(samples) {
				samples[read] = mono
				read++
			} else {
				s.leftover = append(s.leftover, mono)
			}
		}
	}

	return read, nil
}

// toInt16 scales a FLAC sample at the stream's bit depth to 16 bits
func (s *FLACSource) toInt16(sample int32) int32 {
	shift := s.bitDepth - 16
	if shift > 0 {
		return sample >> shift
	}
	return sample << -shift
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Close() error {
	return s.file.Close()
}
