// ABOUTME: Test tone generator used when no audio file is given
// ABOUTME: Produces a 440Hz sine wave at half amplitude
package server

import (
	"math"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Tone generation defaults.
const (
	toneSampleRate = 48000
	toneChannels   = 2
	toneFrequency  = 440.0 // A4
)

// ToneSource generates a continuous sine wave
type ToneSource struct {
	sampleIndex uint64
	frequency   float64
}

// NewToneSource creates a test tone generator
func NewToneSource() *ToneSource {
	return &ToneSource{frequency: toneFrequency}
}

func (s *ToneSource) Read(samples []int32) (int, error) {
	numFrames := len(samples) / toneChannels

	for i := 0; i < numFrames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / toneSampleRate
		v := math.Sin(2 * math.Pi * s.frequency * t)

		// Half amplitude in the 24-bit range, same value on both channels.
		sample := int32(v * audio.Max24Bit * 0.5)
		samples[i*toneChannels] = sample
		samples[i*toneChannels+1] = sample
	}

	s.sampleIndex += uint64(numFrames)
	return numFrames * toneChannels, nil
}

func (s *ToneSource) SampleRate() int { return toneSampleRate }
func (s *ToneSource) Channels() int   { return toneChannels }
func (s *ToneSource) BitDepth() int   { return 16 }
func (s *ToneSource) Metadata() (string, string, string) {
	return "Test Tone", "Tempocast Server", "Development Stream"
}
func (s *ToneSource) Close() error { return nil }
