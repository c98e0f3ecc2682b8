// ABOUTME: Software volume control applied on the render thread
// ABOUTME: Percent and mute are settable from any goroutine
package player

import (
	"log"
	"sync/atomic"
)

// Volume is a playback gain shared between the control plane and the
// render thread. Apply runs on the render thread every period; the
// setters may be called from anywhere.
type Volume struct {
	percent atomic.Int32
	muted   atomic.Bool
}

// NewVolume returns a volume at 100 percent, unmuted.
func NewVolume() *Volume {
	v := &Volume{}
	v.percent.Store(100)
	return v
}

// SetPercent sets the volume, clamped to 0-100.
func (v *Volume) SetPercent(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	v.percent.Store(int32(percent))
	log.Printf("Volume set to %d", percent)
}

// Percent returns the current volume.
func (v *Volume) Percent() int {
	return int(v.percent.Load())
}

// SetMuted sets the mute state.
func (v *Volume) SetMuted(muted bool) {
	v.muted.Store(muted)
	log.Printf("Muted: %v", muted)
}

// Muted returns the mute state.
func (v *Volume) Muted() bool {
	return v.muted.Load()
}

// Apply scales samples in place by the current gain.
func (v *Volume) Apply(samples []int32) {
	multiplier := volumeMultiplier(v.Percent(), v.Muted())
	if multiplier == 1.0 {
		return
	}
	if multiplier == 0.0 {
		for i := range samples {
			samples[i] = 0
		}
		return
	}
	for i, sample := range samples {
		samples[i] = int32(float64(sample) * multiplier)
	}
}

// volumeMultiplier calculates the linear gain for a percent and mute state.
func volumeMultiplier(percent int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(percent) / 100.0
}
