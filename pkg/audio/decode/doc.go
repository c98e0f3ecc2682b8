// ABOUTME: Audio decoder package for wire-chunk codecs
// ABOUTME: Provides Decoder interface and implementations for PCM and Opus
// Package decode provides audio decoders for the codecs a stream session
// can negotiate.
//
// Supports: PCM (16-bit and 24-bit) and Opus. Each wire chunk decodes
// independently; file-level codecs whose parsers need a continuous reader
// (FLAC, MP3) live with the server's file sources instead.
//
// All decoders output int32 samples in 24-bit range for consistent
// hi-res audio processing.
//
// Example:
//
//	decoder, err := decode.New(format)
//	samples, err := decoder.Decode(chunkPayload)
package decode
