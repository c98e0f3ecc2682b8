// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation and handles both upsampling and downsampling.
// The converter is streaming: feeding a long signal chunk by chunk produces
// the same output as feeding it at once.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := r.Resample(inputSamples)
package resample
