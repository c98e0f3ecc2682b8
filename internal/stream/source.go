// ABOUTME: Time-indexed chunk buffer feeding the render loop
// ABOUTME: Serves period-sized reads aligned to the server timeline
package stream

import (
	"container/heap"
	"log"
	"sync"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

const (
	// tolerance is the alignment slack below which no correction runs.
	tolerance = time.Millisecond

	// hardSyncWindow is how far behind the timeline playback may fall
	// before the source skips straight to the target instead of
	// converging gradually.
	hardSyncWindow = 50 * time.Millisecond

	// softSkipDivisor bounds gradual catch-up: at most one periodFrames/N
	// slice of frames is dropped per request.
	softSkipDivisor = 4
)

// Clock provides the server-timeline time base the source schedules against.
type Clock interface {
	ServerNow() int64 // microseconds on the server timeline
}

// Stats tracks source activity since creation.
type Stats struct {
	Received       int64 // chunks pushed
	Served         int64 // period requests answered with audio or scheduled silence
	SilencePeriods int64 // period requests answered entirely with silence
	SkippedFrames  int64 // frames dropped to catch up with the timeline
	HardSyncs      int64 // catch-ups that exceeded the gradual window
	Starved        int64 // period requests with no usable data
}

// Source buffers decoded chunks ordered by timestamp and serves the render
// loop period-sized slices aligned to the server timeline.
//
// GetPlayerChunk never blocks; WaitForChunk is the blocking probe the
// render loop polls during recovery.
type Source struct {
	clock   Clock
	format  audio.Format
	latency time.Duration

	mu          sync.Mutex
	queue       chunkQueue
	cursor      int   // frames consumed from the head chunk
	totalFrames int64 // frames queued beyond the cursor
	stats       Stats
	notify      chan struct{}
}

// NewSource creates a source for one stream session. latency shifts
// playback to compensate for delay beyond the device clock (sinks that
// buffer after the DAC); zero is correct for direct outputs.
func NewSource(clock Clock, format audio.Format, latency time.Duration) *Source {
	return &Source{
		clock:   clock,
		format:  format,
		latency: latency,
		notify:  make(chan struct{}, 1),
	}
}

// Push queues a decoded chunk and wakes any recovery waiter.
func (s *Source) Push(chunk audio.Chunk) {
	frames := chunk.Frames(s.format.Channels)
	if frames == 0 {
		return
	}

	s.mu.Lock()
	heap.Push(&s.queue, chunk)
	s.totalFrames += int64(frames)
	s.stats.Received++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// GetPlayerChunk fills dst with exactly one period of samples. delay says
// how long the samples will sit in the device queue before becoming
// audible, so frame 0 of dst is aligned to ServerNow()+delay on the
// timeline. It returns false only when no usable data is buffered.
func (s *Source) GetPlayerChunk(dst []int32, delay time.Duration) bool {
	frames := len(dst) / s.format.Channels
	if frames == 0 {
		return false
	}

	target := s.clock.ServerNow() + delay.Microseconds() + s.latency.Microseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.catchUp(target, frames) {
		s.stats.Starved++
		return false
	}

	head := s.queue.peek()
	cursorTime := head.Timestamp + s.framesToMicros(s.cursor)
	gap := cursorTime - target // >0: the head is due in the future

	if gap >= s.framesToMicros(frames) {
		// The whole period precedes the stream: scheduled silence.
		zeroSamples(dst)
		s.stats.SilencePeriods++
		s.stats.Served++
		return true
	}

	written := 0
	if gap > tolerance.Microseconds() {
		// Align the stream start inside this period.
		written = s.microsToFrames(gap)
		zeroSamples(dst[:written*s.format.Channels])
	}

	s.copyFrames(dst, written, frames)
	s.stats.Served++
	return true
}

// catchUp drops frames that are already in the past. Small lags shrink by
// a bounded slice per request; beyond hardSyncWindow it skips straight to
// the target. Returns false when the queue cannot reach the target.
// Callers hold mu.
func (s *Source) catchUp(target int64, periodFrames int) bool {
	softLimit := periodFrames / softSkipDivisor
	if softLimit < 1 {
		softLimit = 1
	}

	for s.queue.Len() > 0 {
		head := s.queue.peek()
		cursorTime := head.Timestamp + s.framesToMicros(s.cursor)
		behind := target - cursorTime
		if behind <= tolerance.Microseconds() {
			return true
		}

		skip := s.microsToFrames(behind)
		hard := behind > hardSyncWindow.Microseconds()
		if hard {
			s.stats.HardSyncs++
			log.Printf("Hard sync: %dμs behind timeline, skipping %d frames", behind, skip)
		} else if skip > softLimit {
			skip = softLimit
		}

		dropped := s.dropFrames(skip)
		if !hard && dropped > 0 {
			// Gradual correction emits after each bounded slice.
			return s.queue.Len() > 0
		}
		if dropped == 0 {
			return s.queue.Len() > 0
		}
	}
	return false
}

// dropFrames consumes up to n frames from the queue head onward and
// returns how many were dropped. Callers hold mu.
func (s *Source) dropFrames(n int) int {
	dropped := 0
	for n > 0 && s.queue.Len() > 0 {
		head := s.queue.peek()
		avail := head.Frames(s.format.Channels) - s.cursor
		take := avail
		if take > n {
			take = n
		}
		s.cursor += take
		s.totalFrames -= int64(take)
		n -= take
		dropped += take
		if s.cursor >= head.Frames(s.format.Channels) {
			heap.Pop(&s.queue)
			s.cursor = 0
		}
	}
	s.stats.SkippedFrames += int64(dropped)
	return dropped
}

// copyFrames fills dst[written:frames] from the queue, following chunk
// boundaries. A timestamp gap between chunks renders as silence for the
// rest of the period. Callers hold mu.
func (s *Source) copyFrames(dst []int32, written, frames int) {
	ch := s.format.Channels

	for written < frames && s.queue.Len() > 0 {
		head := s.queue.peek()
		headFrames := head.Frames(ch)
		avail := headFrames - s.cursor
		if avail <= 0 {
			heap.Pop(&s.queue)
			s.cursor = 0
			continue
		}

		take := frames - written
		if take > avail {
			take = avail
		}
		copy(dst[written*ch:(written+take)*ch], head.Samples[s.cursor*ch:(s.cursor+take)*ch])
		prevEnd := head.Timestamp + s.framesToMicros(s.cursor+take)
		s.cursor += take
		s.totalFrames -= int64(take)
		written += take

		if s.cursor >= headFrames {
			heap.Pop(&s.queue)
			s.cursor = 0

			if written < frames && s.queue.Len() > 0 {
				next := s.queue.peek()
				lead := next.Timestamp - prevEnd
				if lead > tolerance.Microseconds() {
					// Gap in the stream: the remainder of this period
					// is scheduled silence.
					break
				}
				if lead < -tolerance.Microseconds() {
					// Overlap: advance into the next chunk.
					overlap := s.microsToFrames(-lead)
					if overlap > next.Frames(ch) {
						overlap = next.Frames(ch)
					}
					s.cursor = overlap
					s.totalFrames -= int64(overlap)
					s.stats.SkippedFrames += int64(overlap)
				}
			}
		}
	}

	if written < frames {
		zeroSamples(dst[written*s.format.Channels:])
	}
}

// WaitForChunk blocks until data is buffered or the timeout elapses.
// It is level-triggered: already-buffered data returns immediately.
func (s *Source) WaitForChunk(timeout time.Duration) bool {
	if s.buffered() > 0 {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.notify:
			if s.buffered() > 0 {
				return true
			}
		case <-timer.C:
			return s.buffered() > 0
		}
	}
}

func (s *Source) buffered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFrames
}

// Buffered returns the queued play time beyond the read cursor.
func (s *Source) Buffered() time.Duration {
	return s.format.FramesDuration(int(s.buffered()))
}

// Reset discards all queued chunks. The cumulative stats survive.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.items = nil
	s.cursor = 0
	s.totalFrames = 0
}

// Stats returns a snapshot of source activity.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Source) framesToMicros(frames int) int64 {
	return int64(frames) * 1_000_000 / int64(s.format.SampleRate)
}

func (s *Source) microsToFrames(micros int64) int {
	return int(micros * int64(s.format.SampleRate) / 1_000_000)
}

func zeroSamples(dst []int32) {
	for i := range dst {
		dst[i] = 0
	}
}

// chunkQueue is a priority queue of chunks ordered by timestamp.
type chunkQueue struct {
	items []audio.Chunk
}

// Implement heap.Interface
func (q *chunkQueue) Len() int { return len(q.items) }

func (q *chunkQueue) Less(i, j int) bool {
	return q.items[i].Timestamp < q.items[j].Timestamp
}

func (q *chunkQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *chunkQueue) Push(x interface{}) {
	q.items = append(q.items, x.(audio.Chunk))
}

func (q *chunkQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

func (q *chunkQueue) peek() audio.Chunk {
	return q.items[0]
}
