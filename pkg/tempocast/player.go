// ABOUTME: High-level Player API for Tempocast streaming
// ABOUTME: Connects to a server and renders the timed stream through an audio endpoint
package tempocast

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tempocast/tempocast-go/internal/client"
	"github.com/tempocast/tempocast-go/internal/player"
	"github.com/tempocast/tempocast-go/internal/protocol"
	"github.com/tempocast/tempocast-go/internal/stream"
	clocksync "github.com/tempocast/tempocast-go/internal/sync"
	"github.com/tempocast/tempocast-go/internal/version"
	"github.com/tempocast/tempocast-go/pkg/audio"
	"github.com/tempocast/tempocast-go/pkg/audio/decode"
	"github.com/tempocast/tempocast-go/pkg/audio/output"
)

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// ServerAddr is the server address (host:port)
	ServerAddr string

	// PlayerName is the display name for this player
	PlayerName string

	// Backend selects the audio backend (default: malgo)
	Backend string

	// Device is the playback device name (default: system default)
	Device string

	// Volume is the initial volume (0-100, default: 100)
	Volume int

	// BufferMs is the device queue depth in milliseconds (default: 40)
	BufferMs int

	// LatencyMs shifts playback earlier to compensate output hardware
	// latency, in milliseconds (default: 0)
	LatencyMs int

	// DeviceInfo provides device identification
	DeviceInfo DeviceInfo

	// OnMetadata is called when track metadata is received
	OnMetadata func(Metadata)

	// OnStateChange is called when playback state changes
	OnStateChange func(PlayerState)

	// OnError is called when errors occur
	OnError func(error)
}

// DeviceInfo describes the player device
type DeviceInfo struct {
	ProductName     string
	Manufacturer    string
	SoftwareVersion string
}

// Metadata contains track information
type Metadata struct {
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
}

// PlayerState describes the current state
type PlayerState struct {
	State      string // "idle", "synchronized", "recovering"
	Volume     int
	Muted      bool
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Connected  bool
}

// PlayerStats contains playback statistics
type PlayerStats struct {
	State          string
	Periods        int64
	Recoveries     int64
	Drift          time.Duration
	Received       int64
	Served         int64
	SilencePeriods int64
	SkippedFrames  int64
	HardSyncs      int64
	Starved        int64
	BufferMs       int
	SyncOffset     int64
	SyncRTT        int64
	SyncQuality    clocksync.Quality
}

// session is the per-stream pipeline, rebuilt on every stream/start.
type session struct {
	format     audio.Format
	decoder    decode.Decoder
	endpoint   output.Endpoint
	source     *stream.Source
	controller *player.Controller
}

// Player provides synchronized audio playback from Tempocast servers
type Player struct {
	config PlayerConfig

	client    *client.Client
	clockSync *clocksync.ClockSync
	volume    *player.Volume

	mu      sync.Mutex
	session *session
	state   PlayerState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPlayer creates a new player with the given configuration. The audio
// device is not opened until the server starts a stream.
func NewPlayer(config PlayerConfig) (*Player, error) {
	// Set defaults
	if config.Volume == 0 {
		config.Volume = 100
	}
	if config.BufferMs == 0 {
		config.BufferMs = 40
	}
	if config.DeviceInfo.ProductName == "" {
		config.DeviceInfo.ProductName = version.Product
	}
	if config.DeviceInfo.Manufacturer == "" {
		config.DeviceInfo.Manufacturer = version.Manufacturer
	}
	if config.DeviceInfo.SoftwareVersion == "" {
		config.DeviceInfo.SoftwareVersion = version.Version
	}

	ctx, cancel := context.WithCancel(context.Background())

	volume := player.NewVolume()
	volume.SetPercent(config.Volume)

	return &Player{
		config:    config,
		clockSync: clocksync.NewClockSync(),
		volume:    volume,
		ctx:       ctx,
		cancel:    cancel,
		state: PlayerState{
			State:  "idle",
			Volume: volume.Percent(),
		},
	}, nil
}

// Connect establishes the server connection, runs the initial clock sync
// and starts the protocol handlers.
func (p *Player) Connect() error {
	clientID := uuid.New().String()

	p.client = client.NewClient(client.Config{
		ServerAddr: p.config.ServerAddr,
		ClientID:   clientID,
		Name:       p.config.PlayerName,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     p.config.DeviceInfo.ProductName,
			Manufacturer:    p.config.DeviceInfo.Manufacturer,
			SoftwareVersion: p.config.DeviceInfo.SoftwareVersion,
		},
		PlayerSupport: protocol.PlayerSupport{
			SupportCodecs:      []string{"pcm", "opus"},
			SupportChannels:    []int{2, 1},
			SupportSampleRates: []int{48000, 44100},
			SupportBitDepth:    []int{16, 24},
			BufferCapacityMs:   1000,
			SupportedCommands:  []string{"volume", "mute"},
		},
	})

	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	log.Printf("Connected to server: %s", p.config.ServerAddr)
	p.mu.Lock()
	p.state.Connected = true
	p.mu.Unlock()
	p.notifyStateChange()

	if err := p.performInitialSync(); err != nil {
		log.Printf("Initial clock sync failed: %v", err)
	}

	go p.handleStreamStart()
	go p.handleStreamEnd()
	go p.handleAudioChunks()
	go p.handleControls()
	go p.handleMetadata()
	go p.clockSyncLoop()
	go p.watchConnection()

	return nil
}

// performInitialSync does multiple sync rounds before audio starts
func (p *Player) performInitialSync() error {
	log.Printf("Performing initial clock synchronization...")

	for i := 0; i < 5; i++ {
		t1 := clocksync.ClientMicros()
		if err := p.client.SendTimeSync(t1); err != nil {
			return fmt.Errorf("time sync send failed: %w", err)
		}

		select {
		case resp := <-p.client.TimeSyncResp:
			t4 := clocksync.ClientMicros()
			p.clockSync.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)

		case <-time.After(500 * time.Millisecond):
			log.Printf("Initial sync round %d timeout", i+1)
		}

		time.Sleep(100 * time.Millisecond)
	}

	offset, rtt, quality := p.clockSync.GetStats()
	log.Printf("Initial clock sync complete: offset=%dμs, rtt=%dμs, quality=%v", offset, rtt, quality)

	return nil
}

// clockSyncLoop continuously syncs the clock
func (p *Player) clockSyncLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Drain stale responses
			for {
				select {
				case <-p.client.TimeSyncResp:
					log.Printf("Discarded stale time sync response")
				default:
					goto sendRequest
				}
			}

		sendRequest:
			if err := p.client.SendTimeSync(clocksync.ClientMicros()); err != nil {
				log.Printf("Time sync send failed: %v", err)
			}

		case resp := <-p.client.TimeSyncResp:
			t4 := clocksync.ClientMicros()
			p.clockSync.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)

		case <-p.ctx.Done():
			return
		}
	}
}

// handleStreamStart builds the playback pipeline for each new stream
func (p *Player) handleStreamStart() {
	for {
		select {
		case start := <-p.client.StreamStart:
			format, err := start.Format()
			if err != nil {
				p.notifyError(fmt.Errorf("rejecting stream: %w", err))
				continue
			}

			log.Printf("Stream starting: %s %dHz %dch %dbit",
				format.Codec, format.SampleRate, format.Channels, format.BitDepth)

			if err := p.startSession(format); err != nil {
				p.notifyError(fmt.Errorf("failed to start stream session: %w", err))
				continue
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// handleStreamEnd tears the pipeline down when the server ends the stream
func (p *Player) handleStreamEnd() {
	for {
		select {
		case end := <-p.client.StreamEnd:
			if end.Reason != "" {
				log.Printf("Stream ended: %s", end.Reason)
			} else {
				log.Printf("Stream ended")
			}
			p.stopSession()
			p.notifyStateChange()
			p.sendState()

		case <-p.ctx.Done():
			return
		}
	}
}

// handleAudioChunks decodes wire chunks and feeds the stream source
func (p *Player) handleAudioChunks() {
	for {
		select {
		case chunk := <-p.client.AudioChunks:
			p.mu.Lock()
			sess := p.session
			p.mu.Unlock()
			if sess == nil {
				continue
			}

			pcm, err := sess.decoder.Decode(chunk.Data)
			if err != nil {
				p.notifyError(fmt.Errorf("decode error: %w", err))
				continue
			}

			sess.source.Push(audio.Chunk{
				Timestamp: chunk.Timestamp,
				Samples:   pcm,
			})

		case <-p.ctx.Done():
			return
		}
	}
}

// handleControls processes server commands
func (p *Player) handleControls() {
	for {
		select {
		case cmd := <-p.client.ControlMsgs:
			switch cmd.Command {
			case "volume":
				p.SetVolume(cmd.Volume)
			case "mute":
				p.Mute(cmd.Mute)
			default:
				log.Printf("Unknown server command: %s", cmd.Command)
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// handleMetadata processes metadata updates
func (p *Player) handleMetadata() {
	for {
		select {
		case meta := <-p.client.Metadata:
			if p.config.OnMetadata != nil {
				p.config.OnMetadata(Metadata{
					Title:      meta.Title,
					Artist:     meta.Artist,
					Album:      meta.Album,
					ArtworkURL: meta.ArtworkURL,
				})
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// watchConnection surfaces connection loss
func (p *Player) watchConnection() {
	select {
	case <-p.client.Done():
		if p.ctx.Err() != nil {
			return
		}
		log.Printf("Connection to server lost")
		p.stopSession()
		p.mu.Lock()
		p.state.Connected = false
		p.mu.Unlock()
		p.notifyStateChange()

	case <-p.ctx.Done():
	}
}

// startSession opens the audio endpoint and starts the render loop for
// the announced format. Any previous session is torn down first.
func (p *Player) startSession(format audio.Format) error {
	p.stopSession()

	decoder, err := decode.New(format)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	endpoint, err := output.New(output.Config{
		Backend:       p.config.Backend,
		Device:        p.config.Device,
		BufferPeriods: int(time.Duration(p.config.BufferMs) * time.Millisecond / output.DefaultPeriod),
	})
	if err != nil {
		decoder.Close()
		return err
	}
	if err := endpoint.Open(format); err != nil {
		decoder.Close()
		return fmt.Errorf("failed to open audio endpoint: %w", err)
	}

	source := stream.NewSource(p.clockSync, format, time.Duration(p.config.LatencyMs)*time.Millisecond)

	controller := player.NewController(player.NewRenderer(player.Config{
		Endpoint: endpoint,
		Source:   source,
		Volume:   p.volume,
		Format:   format,
	}))
	controller.Start()

	sess := &session{
		format:     format,
		decoder:    decoder,
		endpoint:   endpoint,
		source:     source,
		controller: controller,
	}

	p.mu.Lock()
	p.session = sess
	p.state.Codec = format.Codec
	p.state.SampleRate = format.SampleRate
	p.state.Channels = format.Channels
	p.state.BitDepth = format.BitDepth
	p.state.State = "synchronized"
	p.mu.Unlock()
	p.notifyStateChange()
	p.sendState()

	go p.watchSession(sess)

	return nil
}

// watchSession surfaces a fatal render loop error and retires the session.
func (p *Player) watchSession(sess *session) {
	select {
	case <-sess.controller.Done():
		if err := sess.controller.Err(); err != nil {
			p.notifyError(fmt.Errorf("render loop failed: %w", err))
			p.stopSession()
			p.notifyStateChange()
			p.sendState()
		}

	case <-p.ctx.Done():
	}
}

// stopSession tears down the active pipeline, if any. Safe to call from
// multiple goroutines; only the first caller does the teardown.
func (p *Player) stopSession() {
	p.mu.Lock()
	sess := p.session
	p.session = nil
	if sess != nil {
		p.state.State = "idle"
	}
	p.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.controller.Stop(); err != nil {
		log.Printf("Render loop stopped with error: %v", err)
	}
	if err := sess.endpoint.Close(); err != nil {
		log.Printf("Warning: endpoint close error: %v", err)
	}
	if err := sess.decoder.Close(); err != nil {
		log.Printf("Warning: decoder close error: %v", err)
	}
}

// SetVolume sets the volume (0-100)
func (p *Player) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	p.volume.SetPercent(volume)
	p.mu.Lock()
	p.state.Volume = volume
	p.mu.Unlock()

	p.sendState()
	p.notifyStateChange()
	return nil
}

// Mute sets the mute state
func (p *Player) Mute(muted bool) error {
	p.volume.SetMuted(muted)
	p.mu.Lock()
	p.state.Muted = muted
	p.mu.Unlock()

	p.sendState()
	p.notifyStateChange()
	return nil
}

// sendState reports the current player state to the server
func (p *Player) sendState() {
	p.mu.Lock()
	connected := p.state.Connected
	state := protocol.PlayerState{
		State:  p.state.State,
		Volume: p.state.Volume,
		Muted:  p.state.Muted,
	}
	p.mu.Unlock()

	if p.client == nil || !connected {
		return
	}
	if err := p.client.SendState(state); err != nil {
		log.Printf("Failed to send player state: %v", err)
	}
}

// Status returns the current player state
func (p *Player) Status() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state
	if p.session != nil {
		switch p.session.controller.Renderer().State() {
		case player.StateRunning:
			st.State = "synchronized"
		case player.StateRecovering:
			st.State = "recovering"
		default:
			st.State = "idle"
		}
	}
	return st
}

// Stats returns playback and sync statistics
func (p *Player) Stats() PlayerStats {
	stats := PlayerStats{State: "idle"}

	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess != nil {
		rs := sess.controller.Renderer().Stats()
		stats.State = rs.State.String()
		stats.Periods = rs.Periods
		stats.Recoveries = rs.Recoveries
		stats.Drift = rs.Drift

		ss := sess.source.Stats()
		stats.Received = ss.Received
		stats.Served = ss.Served
		stats.SilencePeriods = ss.SilencePeriods
		stats.SkippedFrames = ss.SkippedFrames
		stats.HardSyncs = ss.HardSyncs
		stats.Starved = ss.Starved
		stats.BufferMs = int(sess.source.Buffered().Milliseconds())
	}

	offset, rtt, quality := p.clockSync.GetStats()
	stats.SyncOffset = offset
	stats.SyncRTT = rtt
	stats.SyncQuality = quality

	return stats
}

// Close shuts down the player and releases all resources
func (p *Player) Close() error {
	p.cancel()
	p.stopSession()

	if p.client != nil {
		p.client.Close()
	}

	p.mu.Lock()
	p.state.Connected = false
	p.state.State = "idle"
	p.mu.Unlock()
	p.notifyStateChange()

	return nil
}

// notifyStateChange calls the OnStateChange callback if set
func (p *Player) notifyStateChange() {
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(p.Status())
	}
}

// notifyError calls the OnError callback if set
func (p *Player) notifyError(err error) {
	if p.config.OnError != nil {
		p.config.OnError(err)
	} else {
		log.Printf("Player error: %v", err)
	}
}
