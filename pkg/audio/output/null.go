// ABOUTME: Null endpoint that paces on the wall clock without hardware
// ABOUTME: Emulates a device buffer draining one period per period duration
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Null discards committed audio but consumes it in real time, so the render
// loop paces and measures drift exactly as it would against hardware. The
// clock runs in microseconds of started time since Reset.
type Null struct {
	cfg Config

	mu           sync.Mutex
	open         bool
	started      bool
	format       audio.Format
	periodFrames int
	period       time.Duration
	depth        int

	startedAt time.Time     // wall time of the last Start
	elapsed   time.Duration // running time accumulated before startedAt
	queued    int           // periods waiting in the emulated device buffer
	drainedAt time.Duration // running-time point consumption is applied up to
}

// NewNull creates a null endpoint.
func NewNull(cfg Config) *Null {
	return &Null{cfg: cfg.withDefaults()}
}

// runningTime is the started time accumulated since Reset. Callers hold mu.
func (n *Null) runningTime() time.Duration {
	t := n.elapsed
	if n.started {
		t += time.Since(n.startedAt)
	}
	return t
}

// drain applies clock progress to the emulated buffer. Callers hold mu.
func (n *Null) drain() {
	total := n.runningTime()
	for n.drainedAt+n.period <= total {
		n.drainedAt += n.period
		if n.queued > 0 {
			n.queued-- // empty slots play as silence
		}
	}
}

// Open prepares the endpoint for the stream format.
func (n *Null) Open(format audio.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.open {
		return fmt.Errorf("endpoint already open")
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	periodFrames := format.FramesFor(n.cfg.Period)
	if periodFrames <= 0 {
		return fmt.Errorf("period %v too short for %dHz", n.cfg.Period, format.SampleRate)
	}

	n.format = format
	n.periodFrames = periodFrames
	n.period = n.cfg.Period
	n.depth = n.cfg.BufferPeriods
	n.elapsed = 0
	n.queued = 0
	n.drainedAt = 0
	n.open = true
	return nil
}

// BufferFrames returns the frames in one period.
func (n *Null) BufferFrames() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.periodFrames
}

// WaitReady blocks until the emulated buffer has a free period slot or the
// timeout elapses. A stopped endpoint makes no progress.
func (n *Null) WaitReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		n.mu.Lock()
		if !n.open {
			n.mu.Unlock()
			return false
		}
		n.drain()
		if n.queued < n.depth {
			n.mu.Unlock()
			return true
		}
		started := n.started
		wait := n.drainedAt + n.period - n.runningTime()
		period := n.period
		n.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if !started {
			// No consumption while stopped; nap and recheck in case of Start.
			if period < remaining {
				remaining = period
			}
			time.Sleep(remaining)
			continue
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		if wait > remaining {
			wait = remaining
		}
		time.Sleep(wait)
	}
}

// Clock returns microseconds of started time since Reset, at 1MHz.
func (n *Null) Clock() (int64, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return 0, 1
	}
	return n.runningTime().Microseconds(), 1_000_000
}

// Commit accepts one period of samples into the emulated buffer.
func (n *Null) Commit(samples []int32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.open {
		return ErrNotOpen
	}
	want := n.periodFrames * n.format.Channels
	if len(samples) != want {
		return fmt.Errorf("commit size %d samples, want %d", len(samples), want)
	}
	n.drain()
	if n.queued >= n.depth {
		return fmt.Errorf("device queue full")
	}
	n.queued++
	return nil
}

// Start begins consumption.
func (n *Null) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return ErrNotOpen
	}
	if n.started {
		return nil
	}
	n.startedAt = time.Now()
	n.started = true
	return nil
}

// Stop halts consumption and freezes the clock.
func (n *Null) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return ErrNotOpen
	}
	if !n.started {
		return nil
	}
	n.elapsed += time.Since(n.startedAt)
	n.started = false
	return nil
}

// Reset discards buffered periods and rewinds the clock to zero.
func (n *Null) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return ErrNotOpen
	}
	if n.started {
		return ErrNotStopped
	}
	n.elapsed = 0
	n.queued = 0
	n.drainedAt = 0
	return nil
}

// Close releases the endpoint.
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		n.elapsed += time.Since(n.startedAt)
		n.started = false
	}
	n.open = false
	return nil
}
