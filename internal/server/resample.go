// ABOUTME: Source wrapper that converts a stream to a target sample rate
// ABOUTME: Lets Opus encoding consume sources recorded at other rates
package server

import (
	"github.com/tempocast/tempocast-go/pkg/audio/resample"
)

// resampledSource wraps a source and serves its audio at a different rate.
// Resampled chunks rarely line up with read sizes, so leftovers queue here.
type resampledSource struct {
	inner Source
	rs    *resample.Resampler
	rate  int

	inBuf []int32 // one inner read worth of native-rate samples
	queue []int32 // resampled samples not yet served
}

func newResampledSource(inner Source, rate int) *resampledSource {
	// Pull 20ms of source audio per inner read.
	inFrames := inner.SampleRate() / 50

	return &resampledSource{
		inner: inner,
		rs:    resample.New(inner.SampleRate(), rate, inner.Channels()),
		rate:  rate,
		inBuf: make([]int32, inFrames*inner.Channels()),
	}
}

func (s *resampledSource) Read(samples []int32) (int, error) {
	for len(s.queue) < len(samples) {
		n, err := s.inner.Read(s.inBuf)
		if n > 0 {
			s.queue = append(s.queue, s.rs.Resample(s.inBuf[:n])...)
		}
		if err != nil {
			if len(s.queue) == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}

	n := copy(samples, s.queue)
	remaining := len(s.queue) - n
	copy(s.queue, s.queue[n:])
	s.queue = s.queue[:remaining]
	return n, nil
}

func (s *resampledSource) SampleRate() int { return s.rate }
func (s *resampledSource) Channels() int   { return s.inner.Channels() }
func (s *resampledSource) BitDepth() int   { return s.inner.BitDepth() }
func (s *resampledSource) Metadata() (string, string, string) {
	return s.inner.Metadata()
}
func (s *resampledSource) Close() error {
	return s.inner.Close()
}
