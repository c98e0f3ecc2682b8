// ABOUTME: Drift computation between logical playback position and hardware clock
// ABOUTME: Recomputed fresh every period, never persisted
package player

// Drift returns the signed microsecond gap between the logical playback
// timeline and the endpoint's hardware clock. framesWritten is the count of
// frames committed since the session started, sampleRate the negotiated
// rate, and ticks/frequency a fresh endpoint clock reading.
//
// A positive drift means committed audio is queued ahead of the hardware
// playback position, so a sample committed now becomes audible drift
// microseconds in the future.
func Drift(framesWritten int64, sampleRate int, ticks, frequency int64) int64 {
	logical := framesWritten * 1_000_000 / int64(sampleRate)
	hardware := ticks * 1_000_000 / frequency
	return logical - hardware
}
