// ABOUTME: Endpoint interface definition and backend factory
// ABOUTME: Common contract for paced audio playback backends
package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Backend identifiers accepted by New.
const (
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
)

// Endpoint lifecycle errors shared by all backends.
var (
	ErrNotOpen    = errors.New("endpoint not open")
	ErrNotStopped = errors.New("endpoint must be stopped before reset")
	ErrClosed     = errors.New("endpoint closed")
)

// DefaultPeriod is the commit granularity used when Config.Period is zero.
const DefaultPeriod = 10 * time.Millisecond

// defaultBufferPeriods is how many periods deep a backend queues ahead
// of the device when Config.BufferPeriods is zero.
const defaultBufferPeriods = 4

// Endpoint is a paced audio sink. The render loop waits for WaitReady,
// commits exactly one period of samples, and reads the device clock to
// measure how far playback trails the committed position.
//
// WaitReady reports whether the endpoint can accept one period; it returns
// false on timeout, which a started endpoint only hits when the device has
// stalled. Clock returns the device's consumption position as ticks of an
// endpoint-chosen frequency; Reset rewinds it to zero and requires the
// endpoint to be stopped first.
type Endpoint interface {
	// Open prepares the endpoint for the stream format. The period size in
	// frames is fixed from Open until Close.
	Open(format audio.Format) error

	// BufferFrames returns the frames in one period.
	BufferFrames() int

	// WaitReady blocks until the endpoint can accept one period or the
	// timeout elapses.
	WaitReady(timeout time.Duration) bool

	// Clock returns the device consumption position and its frequency
	// in ticks per second.
	Clock() (ticks, freq int64)

	// Commit submits exactly one period of interleaved samples. It never
	// blocks for longer than one period.
	Commit(samples []int32) error

	// Start begins consumption. Idempotent.
	Start() error

	// Stop halts consumption and freezes the clock. Idempotent.
	Stop() error

	// Reset discards queued audio and rewinds the clock to zero. The
	// endpoint must be stopped.
	Reset() error

	// Close releases the device.
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend       string        // BackendMalgo if empty
	Device        string        // device name, empty for system default
	Period        time.Duration // commit granularity, DefaultPeriod if zero
	BufferPeriods int           // queue depth in periods, 4 if zero
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendMalgo
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.BufferPeriods <= 0 {
		c.BufferPeriods = defaultBufferPeriods
	}
	return c
}

// New creates an endpoint for the configured backend.
func New(cfg Config) (Endpoint, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendMalgo:
		return NewMalgo(cfg), nil
	case BackendOto:
		return NewOto(cfg), nil
	case BackendPortAudio:
		return NewPortAudio(cfg), nil
	case BackendNull:
		return NewNull(cfg), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", cfg.Backend)
	}
}
