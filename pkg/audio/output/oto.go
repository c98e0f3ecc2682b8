// ABOUTME: Oto-based endpoint implementation
// ABOUTME: Feeds a persistent oto player from a byte ring at 16-bit depth
package output

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/smallnest/ringbuffer"
	"github.com/tempocast/tempocast-go/pkg/audio"
)

// oto allows one context per process and no reinitialization, so endpoints
// share it. A later Open with a different rate or layout is refused.
var otoShared struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

func otoContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, error) {
	otoShared.mu.Lock()
	defer otoShared.mu.Unlock()

	if otoShared.ctx != nil {
		if otoShared.sampleRate != sampleRate || otoShared.channels != channels {
			return nil, fmt.Errorf("oto context already initialized at %dHz/%dch, cannot reopen at %dHz/%dch",
				otoShared.sampleRate, otoShared.channels, sampleRate, channels)
		}
		return otoShared.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoShared.ctx = ctx
	otoShared.sampleRate = sampleRate
	otoShared.channels = channels
	return ctx, nil
}

// otoRingReader feeds the oto player from the ring. Underruns read as
// silence so the consumption count keeps advancing like a real DAC.
type otoRingReader struct {
	ring        *ringbuffer.RingBuffer
	periodBytes int
	readyCh     chan struct{}
	consumed    *atomic.Int64
	closed      atomic.Bool
}

func (r *otoRingReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	n, _ := r.ring.Read(p)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	r.consumed.Add(int64(len(p)))
	if r.ring.Free() >= r.periodBytes {
		select {
		case r.readyCh <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Oto plays through the oto library. Output is always 16-bit; the clock
// counts bytes pulled by the player.
type Oto struct {
	cfg Config

	mu           sync.Mutex
	player       *oto.Player
	reader       *otoRingReader
	ring         *ringbuffer.RingBuffer
	format       audio.Format
	periodFrames int
	periodBytes  int
	clockFreq    int64
	scratch      []byte
	open         bool
	started      bool

	consumed atomic.Int64 // bytes pulled by the player since Reset
	readyCh  chan struct{}
}

// NewOto creates an oto endpoint.
func NewOto(cfg Config) *Oto {
	return &Oto{cfg: cfg.withDefaults()}
}

// Open initializes the shared oto context and a paused player.
func (o *Oto) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open {
		return fmt.Errorf("endpoint already open")
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	if format.BitDepth != 16 {
		log.Printf("oto output is 16-bit, narrowing from %d-bit", format.BitDepth)
	}

	periodFrames := format.FramesFor(o.cfg.Period)
	if periodFrames <= 0 {
		return fmt.Errorf("period %v too short for %dHz", o.cfg.Period, format.SampleRate)
	}

	bufferDepth := o.cfg.Period * time.Duration(o.cfg.BufferPeriods)
	ctx, err := otoContext(format.SampleRate, format.Channels, bufferDepth)
	if err != nil {
		return err
	}
	ctx.Resume()

	bytesPerFrame := 2 * format.Channels // 16-bit out
	o.periodFrames = periodFrames
	o.periodBytes = periodFrames * bytesPerFrame
	o.clockFreq = int64(format.SampleRate * bytesPerFrame)
	o.ring = ringbuffer.New(o.periodBytes * o.cfg.BufferPeriods)
	o.scratch = make([]byte, o.periodBytes)
	o.readyCh = make(chan struct{}, 1)
	o.consumed.Store(0)

	o.reader = &otoRingReader{
		ring:        o.ring,
		periodBytes: o.periodBytes,
		readyCh:     o.readyCh,
		consumed:    &o.consumed,
	}
	o.player = ctx.NewPlayer(o.reader)
	o.format = format
	o.open = true

	log.Printf("Audio endpoint open: %dHz, %d channels, %d-frame period (oto)",
		format.SampleRate, format.Channels, periodFrames)

	return nil
}

// BufferFrames returns the frames in one period.
func (o *Oto) BufferFrames() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.periodFrames
}

// WaitReady blocks until the ring has room for one period or the timeout
// elapses.
func (o *Oto) WaitReady(timeout time.Duration) bool {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return false
	}
	ring, periodBytes, readyCh := o.ring, o.periodBytes, o.readyCh
	o.mu.Unlock()

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

// Clock returns bytes consumed by the player since Reset, in bytes per
// second of the output format.
func (o *Oto) Clock() (int64, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return 0, 1
	}
	return o.consumed.Load(), o.clockFreq
}

// Commit narrows one period of samples to 16-bit and queues it.
func (o *Oto) Commit(samples []int32) error {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return ErrNotOpen
	}
	want := o.periodFrames * o.format.Channels
	if len(samples) != want {
		o.mu.Unlock()
		return fmt.Errorf("commit size %d samples, want %d", len(samples), want)
	}
	ring, scratch := o.ring, o.scratch
	o.mu.Unlock()

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

// Start resumes the player.
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return ErrNotOpen
	}
	if o.started {
		return nil
	}
	o.player.Play()
	o.started = true
	return nil
}

// Stop pauses the player, freezing the clock.
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return ErrNotOpen
	}
	if !o.started {
		return nil
	}
	o.player.Pause()
	o.started = false
	return nil
}

// Reset discards our queued audio and rewinds the clock. Audio already
// inside oto's internal buffer cannot be flushed and plays out on Start.
func (o *Oto) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return ErrNotOpen
	}
	if o.started {
		return ErrNotStopped
	}
	o.ring.Reset()
	o.consumed.Store(0)
	select {
	case o.readyCh <- struct{}{}:
	default:
	}
	return nil
}

// Close releases the player and suspends the shared context.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reader != nil {
		o.reader.closed.Store(true)
	}
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	otoShared.mu.Lock()
	if otoShared.ctx != nil {
		otoShared.ctx.Suspend()
	}
	otoShared.mu.Unlock()
	o.open = false
	o.started = false
	return nil
}
