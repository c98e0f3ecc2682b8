// ABOUTME: Render loop reconciling the stream timeline with the device clock
// ABOUTME: Owns starvation and pacing-timeout recovery
package player

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

const (
	// DefaultWaitTimeout bounds the wait for the endpoint pacing signal.
	// It exceeds one period by a wide margin: missing it means the device
	// stalled or the process starved, not normal scheduling jitter.
	DefaultWaitTimeout = 500 * time.Millisecond

	// DefaultPollInterval is the probe cadence into the stream source
	// while recovering. The stop signal is rechecked every interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// State is the render loop's session state.
type State int32

const (
	StateRunning State = iota
	StateRecovering
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Endpoint is the device surface the renderer drives. Endpoints from
// pkg/audio/output satisfy it once opened.
type Endpoint interface {
	BufferFrames() int
	WaitReady(timeout time.Duration) bool
	Clock() (ticks, frequency int64)
	Commit(samples []int32) error
	Start() error
	Stop() error
	Reset() error
}

// Source supplies timeline-aligned audio for the renderer.
type Source interface {
	GetPlayerChunk(dst []int32, delay time.Duration) bool
	WaitForChunk(timeout time.Duration) bool
}

// Stats is a snapshot of renderer activity.
type Stats struct {
	State      State
	Periods    int64
	Recoveries int64
	Drift      time.Duration
}

// Config wires a renderer to its collaborators.
type Config struct {
	Endpoint Endpoint
	Source   Source
	Volume   *Volume
	Format   audio.Format

	// WaitTimeout and PollInterval default to the package constants
	// when zero.
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Renderer drains the stream source into the endpoint one period at a
// time, passing a fresh drift measurement with every request so the
// source can keep playback aligned to the server timeline.
//
// Run occupies its calling goroutine; all other methods are safe to call
// concurrently with it.
type Renderer struct {
	endpoint     Endpoint
	source       Source
	volume       *Volume
	format       audio.Format
	waitTimeout  time.Duration
	pollInterval time.Duration

	stop       atomic.Bool
	state      atomic.Int32
	periods    atomic.Int64
	recoveries atomic.Int64
	lastDrift  atomic.Int64
}

// NewRenderer creates a renderer. The endpoint must already be open.
func NewRenderer(cfg Config) *Renderer {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Volume == nil {
		cfg.Volume = NewVolume()
	}
	return &Renderer{
		endpoint:     cfg.Endpoint,
		source:       cfg.Source,
		volume:       cfg.Volume,
		format:       cfg.Format,
		waitTimeout:  cfg.WaitTimeout,
		pollInterval: cfg.PollInterval,
	}
}

// Run drives the render loop until RequestStop or a fatal endpoint error.
// It blocks for the life of the session and must own its goroutine.
func (r *Renderer) Run() error {
	if r.stop.Load() {
		r.state.Store(int32(StateDraining))
		return nil
	}

	periodFrames := r.endpoint.BufferFrames()
	buf := make([]int32, periodFrames*r.format.Channels)

	if err := r.endpoint.Start(); err != nil {
		r.state.Store(int32(StateDraining))
		return fmt.Errorf("starting endpoint: %w", err)
	}
	defer func() {
		r.state.Store(int32(StateDraining))
		if err := r.endpoint.Stop(); err != nil {
			log.Printf("Failed to stop endpoint on teardown: %v", err)
		}
	}()

	var bufferPosition int64

	for {
		if r.stop.Load() {
			return nil
		}

		if !r.endpoint.WaitReady(r.waitTimeout) {
			if r.stop.Load() {
				return nil
			}
			log.Printf("Pacing signal timed out after %v, resynchronizing", r.waitTimeout)
			resumed, err := r.recover()
			if err != nil {
				return err
			}
			if !resumed {
				return nil
			}
			bufferPosition = 0
			continue
		}

		if r.stop.Load() {
			return nil
		}

		ticks, frequency := r.endpoint.Clock()
		drift := Drift(bufferPosition, r.format.SampleRate, ticks, frequency)
		r.lastDrift.Store(drift)

		if !r.source.GetPlayerChunk(buf, time.Duration(drift)*time.Microsecond) {
			log.Printf("Stream source starved at position %d, resynchronizing", bufferPosition)
			resumed, err := r.recover()
			if err != nil {
				return err
			}
			if !resumed {
				return nil
			}
			bufferPosition = 0
			continue
		}

		r.volume.Apply(buf)
		if err := r.endpoint.Commit(buf); err != nil {
			return fmt.Errorf("committing period: %w", err)
		}
		bufferPosition += int64(periodFrames)
		r.periods.Add(1)
	}
}

// recover stops and resets the endpoint, waits for the source to fill,
// then restarts playback. The logical position restarts from zero because
// the hardware clock advanced by an unknown amount during the gap; the
// caller zeroes bufferPosition when resumed is true. resumed is false
// when the stop signal ended the wait.
func (r *Renderer) recover() (resumed bool, err error) {
	r.state.Store(int32(StateRecovering))
	r.recoveries.Add(1)

	if err := r.endpoint.Stop(); err != nil {
		return false, fmt.Errorf("stopping endpoint for resync: %w", err)
	}
	if err := r.endpoint.Reset(); err != nil {
		return false, fmt.Errorf("resetting endpoint: %w", err)
	}

	for !r.stop.Load() {
		if !r.source.WaitForChunk(r.pollInterval) {
			continue
		}
		if err := r.endpoint.Start(); err != nil {
			return false, fmt.Errorf("restarting endpoint: %w", err)
		}
		r.state.Store(int32(StateRunning))
		log.Printf("Playback resumed after resync")
		return true, nil
	}
	return false, nil
}

// RequestStop asks the loop to exit at its next checkpoint. It is
// idempotent and safe from any goroutine; the loop exits within one
// wait-timeout or poll-interval window.
func (r *Renderer) RequestStop() {
	r.stop.Store(true)
}

// State returns the current session state.
func (r *Renderer) State() State {
	return State(r.state.Load())
}

// Stats returns a snapshot of renderer activity.
func (r *Renderer) Stats() Stats {
	return Stats{
		State:      r.State(),
		Periods:    r.periods.Load(),
		Recoveries: r.recoveries.Load(),
		Drift:      time.Duration(r.lastDrift.Load()) * time.Microsecond,
	}
}
