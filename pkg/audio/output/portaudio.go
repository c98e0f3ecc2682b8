//go:build portaudio

// ABOUTME: PortAudio endpoint implementation
// ABOUTME: Callback-paced playback via PortAudio at 16-bit depth
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/smallnest/ringbuffer"
	"github.com/tempocast/tempocast-go/pkg/audio"
)

// PortAudio plays through PortAudio. Output is 16-bit; the stream callback
// drains the ring one buffer at a time and paces the render loop.
type PortAudio struct {
	cfg Config

	mu           sync.Mutex
	stream       *portaudio.Stream
	format       audio.Format
	periodFrames int
	periodBytes  int
	ring         *ringbuffer.RingBuffer
	scratch      []byte
	cbScratch    []byte
	open         bool
	started      bool

	ticks   atomic.Int64 // frames consumed by the callback since Reset
	readyCh chan struct{}
}

// NewPortAudio creates a PortAudio endpoint.
func NewPortAudio(cfg Config) *PortAudio {
	return &PortAudio{cfg: cfg.withDefaults()}
}

// Open initializes PortAudio and a stopped default stream.
func (p *PortAudio) Open(format audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return fmt.Errorf("endpoint already open")
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	periodFrames := format.FramesFor(p.cfg.Period)
	if periodFrames <= 0 {
		return fmt.Errorf("period %v too short for %dHz", p.cfg.Period, format.SampleRate)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	bytesPerFrame := 2 * format.Channels // 16-bit out
	p.periodFrames = periodFrames
	p.periodBytes = periodFrames * bytesPerFrame
	p.ring = ringbuffer.New(p.periodBytes * p.cfg.BufferPeriods)
	p.scratch = make([]byte, p.periodBytes)
	p.cbScratch = make([]byte, p.periodBytes)
	p.readyCh = make(chan struct{}, 1)
	p.ticks.Store(0)

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), periodFrames,
		func(out []int16) {
			p.renderCallback(out)
		})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	p.stream = stream
	p.format = format
	p.open = true

	log.Printf("Audio endpoint open: %dHz, %d channels, %d-frame period (portaudio)",
		format.SampleRate, format.Channels, periodFrames)

	return nil
}

// renderCallback runs on the PortAudio thread. It must not block.
func (p *PortAudio) renderCallback(out []int16) {
	want := len(out) * 2
	buf := p.cbScratch
	if len(buf) < want {
		buf = make([]byte, want)
		p.cbScratch = buf
	}
	n, _ := p.ring.Read(buf[:want])
	for i := 0; i < n/2; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	for i := n / 2; i < len(out); i++ {
		out[i] = 0 // underrun plays silence
	}
	p.ticks.Add(int64(len(out) / p.format.Channels))
	if p.ring.Free() >= p.periodBytes {
		select {
		case p.readyCh <- struct{}{}:
		default:
		}
	}
}

// BufferFrames returns the frames in one period.
func (p *PortAudio) BufferFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.periodFrames
}

// WaitReady blocks until the ring has room for one period or the timeout
// elapses.
func (p *PortAudio) WaitReady(timeout time.Duration) bool {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return false
	}
	ring, periodBytes, readyCh := p.ring, p.periodBytes, p.readyCh
	p.mu.Unlock()

	if ring.Free() >= periodBytes {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-readyCh:
			if ring.Free() >= periodBytes {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}

// Clock returns frames consumed by the callback since Reset, at the stream
// sample rate.
func (p *PortAudio) Clock() (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return 0, 1
	}
	return p.ticks.Load(), int64(p.format.SampleRate)
}

// Commit narrows one period of samples to 16-bit and queues it.
func (p *PortAudio) Commit(samples []int32) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return ErrNotOpen
	}
	want := p.periodFrames * p.format.Channels
	if len(samples) != want {
		p.mu.Unlock()
		return fmt.Errorf("commit size %d samples, want %d", len(samples), want)
	}
	ring, scratch := p.ring, p.scratch
	p.mu.Unlock()

	pack16Bit(scratch, samples)
	n, err := ring.Write(scratch)
	if err != nil {
		return fmt.Errorf("device queue write failed: %w", err)
	}
	if n != len(scratch) {
		return fmt.Errorf("short write to device queue: %d of %d bytes", n, len(scratch))
	}
	return nil
}

// Start begins stream consumption.
func (p *PortAudio) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrNotOpen
	}
	if p.started {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	p.started = true
	return nil
}

// Stop halts stream consumption, freezing the clock.
func (p *PortAudio) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrNotOpen
	}
	if !p.started {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	p.started = false
	return nil
}

// Reset discards queued audio and rewinds the clock to zero.
func (p *PortAudio) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrNotOpen
	}
	if p.started {
		return ErrNotStopped
	}
	p.ring.Reset()
	p.ticks.Store(0)
	select {
	case p.readyCh <- struct{}{}:
	default:
	}
	return nil
}

// Close releases the stream and terminates PortAudio.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		if p.started {
			if err := p.stream.Stop(); err != nil {
				log.Printf("Warning: stream stop error: %v", err)
			}
			p.started = false
		}
		if err := p.stream.Close(); err != nil {
			log.Printf("Warning: stream close error: %v", err)
		}
		p.stream = nil
		if err := portaudio.Terminate(); err != nil {
			log.Printf("Warning: portaudio terminate error: %v", err)
		}
	}
	p.open = false
	return nil
}
