// ABOUTME: Audio format description and frame math
// ABOUTME: Defines Format plus frame/byte/duration conversion helpers
package audio

import (
	"fmt"
	"time"
)

// Codec identifiers carried in stream negotiation.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
	CodecFLAC = "flac"
	CodecMP3  = "mp3"
)

// Format describes an audio stream format.
type Format struct {
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // For Opus etc., codec-specific setup data
}

// Validate reports whether the format can drive a playback session.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	switch f.BitDepth {
	case 16, 24:
	default:
		return fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the wire size of one sample.
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BytesPerFrame returns the wire size of one frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.BytesPerSample() * f.Channels
}

// FramesDuration returns how long the given number of frames plays for.
func (f Format) FramesDuration(frames int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// FramesFor returns the number of frames that play in the given duration.
func (f Format) FramesFor(d time.Duration) int {
	return int(d * time.Duration(f.SampleRate) / time.Second)
}
