// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Endpoint contract and malgo/oto/portaudio/null backends
// Package output provides paced audio playback endpoints.
//
// An Endpoint accepts exactly one period of samples per WaitReady cycle and
// exposes the device's own consumption clock, which the render loop compares
// against its committed position to measure queue drift.
//
// Backends: malgo (miniaudio, default), oto, portaudio (build tag
// "portaudio"), and null (wall-clock paced, no hardware).
//
// Example:
//
//	ep, err := output.New(output.Config{Backend: output.BackendMalgo})
//	err = ep.Open(format)
//	err = ep.Start()
//	for ep.WaitReady(time.Second) {
//	    err = ep.Commit(period)
//	}
package output
