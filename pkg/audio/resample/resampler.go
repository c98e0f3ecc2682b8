// ABOUTME: Streaming linear resampler between sample rates
// ABOUTME: Carries the boundary frame across calls so chunks stay continuous
package resample

import "math"

// Resampler converts interleaved PCM between sample rates using linear
// interpolation. It is a streaming converter: the final input frame of each
// call is retained so interpolation continues seamlessly into the next call.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int

	// step is how many input frames one output frame advances.
	step float64

	// pos is the fractional read position into the current window,
	// measured in input frames.
	pos  float64
	prev []int32 // final frame of the previous call

	window []int32 // prev + current input, reused between calls
	out    []int32 // output scratch, reused between calls
}

// New creates a resampler for interleaved audio with the given channel count.
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int32, 0, channels),
	}
}

// Ratio returns output frames produced per input frame.
func (r *Resampler) Ratio() float64 {
	return float64(r.outputRate) / float64(r.inputRate)
}

// Resample consumes all of input and returns the produced output samples.
// The returned slice is reused by the next call.
func (r *Resampler) Resample(input []int32) []int32 {
	inFrames := len(input) / r.channels
	if inFrames == 0 {
		return nil
	}

	// Window layout: the previous call's final frame (if any) at position 0,
	// followed by the new input frames.
	r.window = append(r.window[:0], r.prev...)
	r.window = append(r.window, input[:inFrames*r.channels]...)
	frames := len(r.window) / r.channels
	limit := float64(frames - 1)

	out := r.out[:0]
	pos := r.pos
	for ; pos <= limit; pos += r.step {
		i := int(pos)
		base := i * r.channels

		if i >= frames-1 {
			// At the window edge the fraction is zero; emit the frame as-is.
			out = append(out, r.window[base:base+r.channels]...)
			continue
		}

		frac := pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a := float64(r.window[base+ch])
			b := float64(r.window[base+r.channels+ch])
			out = append(out, int32(math.Round(a*(1.0-frac)+b*frac)))
		}
	}

	// The final window frame becomes position 0 of the next call.
	r.pos = pos - limit
	r.prev = append(r.prev[:0], r.window[(frames-1)*r.channels:]...)

	r.out = out
	return out
}

// Reset discards carried state, for reuse across stream restarts.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = r.prev[:0]
}
