//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

var errPortAudioDisabled = fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio endpoint implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio endpoint.
func NewPortAudio(cfg Config) *PortAudio {
	return &PortAudio{}
}

// Open initializes PortAudio
func (p *PortAudio) Open(format audio.Format) error { return errPortAudioDisabled }

// BufferFrames returns the frames in one period.
func (p *PortAudio) BufferFrames() int { return 0 }

// WaitReady blocks until the endpoint can accept one period.
func (p *PortAudio) WaitReady(timeout time.Duration) bool { return false }

// Clock returns the device consumption position.
func (p *PortAudio) Clock() (int64, int64) { return 0, 1 }

// Commit submits one period of samples.
func (p *PortAudio) Commit(samples []int32) error { return errPortAudioDisabled }

// Start begins consumption.
func (p *PortAudio) Start() error { return errPortAudioDisabled }

// Stop halts consumption.
func (p *PortAudio) Stop() error { return errPortAudioDisabled }

// Reset discards queued audio.
func (p *PortAudio) Reset() error { return errPortAudioDisabled }

// Close releases resources
func (p *PortAudio) Close() error { return nil }
