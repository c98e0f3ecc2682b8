// ABOUTME: Encoder interface definition and codec dispatch
// ABOUTME: Common interface for all wire-chunk audio encoders
package encode

import (
	"fmt"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Encoder encodes PCM int32 samples into wire-chunk payloads
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for the format's codec.
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported stream codec: %s", format.Codec)
	}
}
