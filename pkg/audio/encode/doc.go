// ABOUTME: Audio encoder package for wire-chunk codecs
// ABOUTME: Provides Encoder interface and implementations for PCM and Opus
// Package encode provides audio encoders for the codecs a stream session
// can negotiate. It is the server-side mirror of pkg/audio/decode.
//
// Supports: PCM (16-bit and 24-bit) and Opus.
//
// All encoders accept int32 samples in the 24-bit working range and emit
// one wire-chunk payload per call.
//
// Example:
//
//	encoder, err := encode.New(format)
//	data, err := encoder.Encode(samples)
package encode
