// ABOUTME: Process-wide miniaudio context shared by malgo endpoints
// ABOUTME: Guarded init-on-first-use plus playback device enumeration
package output

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// The miniaudio context is process-wide state. Endpoints and device
// enumeration share one context; initializing it again is a no-op.
var subsystem struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

func subsystemContext() (*malgo.AllocatedContext, error) {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()

	if subsystem.closed {
		return nil, fmt.Errorf("audio subsystem: %w", ErrClosed)
	}
	if subsystem.ctx != nil {
		return subsystem.ctx, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio subsystem: %w", err)
	}
	subsystem.ctx = ctx
	return ctx, nil
}

// ShutdownSubsystem releases the shared miniaudio context. Call once at
// process teardown, after every endpoint is closed.
func ShutdownSubsystem() {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()

	subsystem.closed = true
	if subsystem.ctx == nil {
		return
	}
	_ = subsystem.ctx.Uninit()
	subsystem.ctx.Free()
	subsystem.ctx = nil
}

// DeviceInfo describes one playback device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// Devices lists the playback devices the subsystem can open.
func Devices() ([]DeviceInfo, error) {
	ctx, err := subsystemContext()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// findPlaybackDevice resolves a device name to its miniaudio ID.
// An empty name selects the system default (nil ID).
func findPlaybackDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	for i := range infos {
		if infos[i].Name() == name {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("playback device not found: %s", name)
}
