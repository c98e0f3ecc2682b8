// ABOUTME: Malgo-based endpoint implementation with 24-bit support
// ABOUTME: Uses miniaudio via malgo; the device callback paces the render loop
package output

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Malgo plays through miniaudio. Commit packs samples into a byte ring;
// the device callback drains one period per callback, zero-filling on
// underrun so the device clock keeps running through starvation.
type Malgo struct {
	cfg Config

	mu           sync.Mutex
	device       *malgo.Device
	format       audio.Format
	periodFrames int
	periodBytes  int
	ring         *ringbuffer.RingBuffer
	scratch      []byte
	open         bool
	started      bool

	ticks   atomic.Int64 // frames consumed by the device since Reset
	readyCh chan struct{}
}

// NewMalgo creates a malgo endpoint.
func NewMalgo(cfg Config) *Malgo {
	return &Malgo{cfg: cfg.withDefaults()}
}

// Open initializes the playback device for the stream format.
func (m *Malgo) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return fmt.Errorf("endpoint already open")
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	ctx, err := subsystemContext()
	if err != nil {
		return err
	}

	deviceID, err := findPlaybackDevice(ctx, m.cfg.Device)
	if err != nil {
		return err
	}

	var mf malgo.FormatType
	switch format.BitDepth {
	case 16:
		mf = malgo.FormatS16
	case 24:
		mf = malgo.FormatS24
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	periodFrames := format.FramesFor(m.cfg.Period)
	if periodFrames <= 0 {
		return fmt.Errorf("period %v too short for %dHz", m.cfg.Period, format.SampleRate)
	}

	m.periodFrames = periodFrames
	m.periodBytes = periodFrames * format.BytesPerFrame()
	m.ring = ringbuffer.New(m.periodBytes * m.cfg.BufferPeriods)
	m.scratch = make([]byte, m.periodBytes)
	m.readyCh = make(chan struct{}, 1)
	m.ticks.Store(0)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = mf
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(periodFrames)
	deviceConfig.Alsa.NoMMap = 1
	if deviceID != nil {
		deviceConfig.Playback.DeviceID = deviceID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			m.renderCallback(out, frameCount)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	m.device = device
	m.format = format
	m.open = true

	log.Printf("Audio endpoint open: %dHz, %d channels, %d-bit, %d-frame period (malgo)",
		format.SampleRate, format.Channels, format.BitDepth, periodFrames)

	return nil
}

// renderCallback runs on the miniaudio thread. It must not block.
func (m *Malgo) renderCallback(out []byte, frameCount uint32) {
	n, _ := m.ring.Read(out)
	for i := n; i < len(out); i++ {
		out[i] = 0 // underrun plays silence, the clock keeps counting
	}
	m.ticks.Add(int64(frameCount))
	if m.ring.Free() >= m.periodBytes {
		select {
		case m.readyCh <- struct{}{}:
		default:
		}
	}
}

// BufferFrames returns the frames in one period.
func (m *Malgo) BufferFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.periodFrames
}

// WaitReady blocks until the ring has room for one period or the timeout
// elapses. No lock is held while waiting.
func (m *Malgo) WaitReady(timeout time.Duration) bool {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return false
	}
	ring, periodBytes, readyCh := m.ring, m.periodBytes, m.readyCh
	m.mu.Unlock()

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

// Clock returns frames consumed by the device since Reset, at the stream
// sample rate.
func (m *Malgo) Clock() (int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, 1
	}
	return m.ticks.Load(), int64(m.format.SampleRate)
}

// Commit packs one period of samples into the device queue.
func (m *Malgo) Commit(samples []int32) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrNotOpen
	}
	want := m.periodFrames * m.format.Channels
	if len(samples) != want {
		m.mu.Unlock()
		return fmt.Errorf("commit size %d samples, want %d", len(samples), want)
	}
	ring, scratch, bitDepth := m.ring, m.scratch, m.format.BitDepth
	m.mu.Unlock()

	if err := packSamples(scratch, samples, bitDepth); err != nil {
		return err
	}
	n, err := ring.Write(scratch)
	if err != nil {
		return fmt.Errorf("device queue write failed: %w", err)
	}
	if n != len(scratch) {
		return fmt.Errorf("short write to device queue: %d of %d bytes", n, len(scratch))
	}
	return nil
}

// Start begins device consumption.
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.started {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.started = true
	return nil
}

// Stop halts device consumption, freezing the clock.
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if !m.started {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	m.started = false
	return nil
}

// Reset discards queued audio and rewinds the clock to zero.
func (m *Malgo) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.started {
		return ErrNotStopped
	}
	m.ring.Reset()
	m.ticks.Store(0)
	// Wake a waiter so it observes the freed space.
	select {
	case m.readyCh <- struct{}{}:
	default:
	}
	return nil
}

// Close releases the device. The shared subsystem context stays up for
// other endpoints.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		if m.started {
			if err := m.device.Stop(); err != nil {
				log.Printf("Warning: device stop error: %v", err)
			}
			m.started = false
		}
		m.device.Uninit()
		m.device = nil
	}
	m.open = false
	return nil
}
