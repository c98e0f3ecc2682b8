// ABOUTME: Sample-to-wire conversion for device output formats
// ABOUTME: Packs int32 working samples into 16/24/32-bit little-endian bytes
package output

import (
	"fmt"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// packSamples converts int32 working samples into device bytes at the given
// bit depth. dst must hold len(samples)*depth/8 bytes.
func packSamples(dst []byte, samples []int32, bitDepth int) error {
	switch bitDepth {
	case 16:
		pack16Bit(dst, samples)
	case 24:
		pack24Bit(dst, samples)
	case 32:
		pack32Bit(dst, samples)
	default:
		return fmt.Errorf("unsupported output bit depth: %d", bitDepth)
	}
	return nil
}

// pack16Bit converts int32 samples to 16-bit output
func pack16Bit(dst []byte, samples []int32) {
	for i, sample := range samples {
		sample16 := audio.SampleToInt16(sample)
		dst[i*2] = byte(sample16)
		dst[i*2+1] = byte(sample16 >> 8)
	}
}

// pack24Bit converts int32 samples to 24-bit output (3 bytes per sample)
func pack24Bit(dst []byte, samples []int32) {
	for i, sample := range samples {
		dst[i*3] = byte(sample)
		dst[i*3+1] = byte(sample >> 8)
		dst[i*3+2] = byte(sample >> 16)
	}
}

// pack32Bit converts int32 samples to 32-bit output, left-shifted so the
// 24-bit working value sits in the container's upper bits
func pack32Bit(dst []byte, samples []int32) {
	for i, sample := range samples {
		sample32 := sample << 8
		dst[i*4] = byte(sample32)
		dst[i*4+1] = byte(sample32 >> 8)
		dst[i*4+2] = byte(sample32 >> 16)
		dst[i*4+3] = byte(sample32 >> 24)
	}
}
