// ABOUTME: Decoder interface definition and codec dispatch
// ABOUTME: Common interface for all wire-chunk audio decoders
package decode

import (
	"fmt"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Decoder decodes audio in various formats to PCM int32 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for the format's codec.
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported stream codec: %s", format.Codec)
	}
}
