// ABOUTME: Opus audio encoder
// ABOUTME: Encodes int32 samples to Opus packets
package encode

import (
	"fmt"
	"log"

	"github.com/tempocast/tempocast-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus will emit.
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder  *opus.Encoder
	channels int
	pcm16    []int16 // scratch buffer reused across Encode calls
}

// NewOpus creates a new Opus encoder. Opus accepts 8/12/16/24/48kHz and
// frames of 2.5, 5, 10, 20, 40 or 60ms per Encode call.
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	bitrate := 64000 * format.Channels
	if err := encoder.SetBitrate(bitrate); err != nil {
		log.Printf("Warning: failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:  encoder,
		channels: format.Channels,
	}, nil
}

// Encode converts one frame of int32 samples to an Opus packet. Opus is
// 16-bit, so samples narrow from the 24-bit working range first.
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	if cap(e.pcm16) < len(samples) {
		e.pcm16 = make([]int16, len(samples))
	}
	pcm := e.pcm16[:len(samples)]
	for i, sample := range samples {
		pcm[i] = audio.SampleToInt16(sample)
	}

	output := make([]byte, maxOpusPacket)
	n, err := e.encoder.Encode(pcm, output)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return output[:n], nil
}

// Close releases encoder resources
func (e *OpusEncoder) Close() error {
	return nil
}
