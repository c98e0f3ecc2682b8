// ABOUTME: Timestamped PCM chunk type
// ABOUTME: The unit of audio moving between decoder, buffer and render loop
package audio

import "time"

// Chunk is a block of decoded PCM with its presentation time.
// Samples are interleaved int32 in the left-justified 24-bit range.
type Chunk struct {
	Timestamp int64 // server-timeline presentation time of the first frame (microseconds)
	Samples   []int32
}

// Frames returns the frame count for the given channel layout.
func (c Chunk) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(c.Samples) / channels
}

// Duration returns the chunk's play time under the given format.
func (c Chunk) Duration(f Format) time.Duration {
	return f.FramesDuration(c.Frames(f.Channels))
}

// End returns the server-timeline time just past the chunk's last frame.
func (c Chunk) End(f Format) int64 {
	return c.Timestamp + c.Duration(f).Microseconds()
}
