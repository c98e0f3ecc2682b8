// ABOUTME: Tests for the high-level Player API
// ABOUTME: Covers configuration, volume control and a full session against a fake server
package tempocast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tempocast/tempocast-go/internal/protocol"
)

func TestNewPlayer(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
		Volume:     80,
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	if player.config.BufferMs != 40 {
		t.Errorf("Expected BufferMs=40, got %d", player.config.BufferMs)
	}
	if player.config.DeviceInfo.ProductName == "" {
		t.Error("Expected default ProductName to be set")
	}

	state := player.Status()
	if state.State != "idle" {
		t.Errorf("Expected initial state 'idle', got %q", state.State)
	}
	if state.Volume != 80 {
		t.Errorf("Expected volume=80, got %d", state.Volume)
	}
	if state.Connected {
		t.Error("Expected connected=false initially")
	}
}

func TestNewPlayerDefaults(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	if player.config.Volume != 100 {
		t.Errorf("Expected default volume=100, got %d", player.config.Volume)
	}
	if player.config.DeviceInfo.Manufacturer == "" {
		t.Error("Expected default Manufacturer")
	}
	if player.config.DeviceInfo.SoftwareVersion == "" {
		t.Error("Expected default SoftwareVersion")
	}
}

func TestPlayerSetVolume(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	if err := player.SetVolume(50); err != nil {
		t.Errorf("SetVolume failed: %v", err)
	}
	if got := player.Status().Volume; got != 50 {
		t.Errorf("Expected volume=50, got %d", got)
	}

	// Clamp above
	player.SetVolume(150)
	if got := player.Status().Volume; got != 100 {
		t.Errorf("Expected volume clamped to 100, got %d", got)
	}

	// Clamp below
	player.SetVolume(-10)
	if got := player.Status().Volume; got != 0 {
		t.Errorf("Expected volume clamped to 0, got %d", got)
	}
}

func TestPlayerMute(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	player.Mute(true)
	if !player.Status().Muted {
		t.Error("Expected muted=true")
	}

	player.Mute(false)
	if player.Status().Muted {
		t.Error("Expected muted=false")
	}
}

func TestPlayerCallbacks(t *testing.T) {
	var mu sync.Mutex
	stateChanges := 0

	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
		OnStateChange: func(s PlayerState) {
			mu.Lock()
			stateChanges++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	player.SetVolume(50)

	mu.Lock()
	n := stateChanges
	mu.Unlock()
	if n == 0 {
		t.Error("Expected OnStateChange to be called")
	}
}

func TestPlayerStatsBeforeConnect(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	stats := player.Stats()
	if stats.State != "idle" {
		t.Errorf("Expected idle state, got %q", stats.State)
	}
	if stats.Received != 0 || stats.Served != 0 {
		t.Errorf("Expected zero counters, got received=%d served=%d", stats.Received, stats.Served)
	}
}

func TestPlayerClose(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{
		ServerAddr: "localhost:8927",
		PlayerName: "Test Player",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}

	if err := player.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	state := player.Status()
	if state.Connected {
		t.Error("Expected connected=false after close")
	}
	if state.State != "idle" {
		t.Errorf("Expected state 'idle' after close, got %q", state.State)
	}
}

// fakeServer speaks just enough of the protocol to drive a player: it
// answers the handshake and time syncs, and lets the test push stream
// messages and chunks.
type fakeServer struct {
	t     *testing.T
	srv   *httptest.Server
	start time.Time

	mu   sync.Mutex
	conn *websocket.Conn

	ready chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{
		t:     t,
		start: time.Now(),
		ready: make(chan struct{}),
	}

	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tempocast" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var hello protocol.Message
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeClientHello {
			conn.Close()
			return
		}
		conn.WriteJSON(protocol.Message{
			Type:    protocol.TypeServerHello,
			Payload: protocol.ServerHello{ServerID: "fake-1", Name: "fake server", Version: protocol.Version},
		})

		fs.mu.Lock()
		fs.conn = conn
		fs.mu.Unlock()
		close(fs.ready)

		// Answer time syncs, ignore everything else.
		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != protocol.TypeClientTime {
				continue
			}
			data, _ := json.Marshal(msg.Payload)
			var ct protocol.ClientTime
			json.Unmarshal(data, &ct)

			now := fs.now()
			fs.send(protocol.Message{
				Type: protocol.TypeServerTime,
				Payload: protocol.ServerTime{
					ClientTransmitted: ct.ClientTransmitted,
					ServerReceived:    now,
					ServerTransmitted: now,
				},
			})
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) addr() string {
	return strings.TrimPrefix(fs.srv.URL, "http://")
}

func (fs *fakeServer) now() int64 {
	return time.Since(fs.start).Microseconds()
}

func (fs *fakeServer) send(msg protocol.Message) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.conn != nil {
		fs.conn.WriteJSON(msg)
	}
}

func (fs *fakeServer) sendChunk(timestamp int64, payload []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.conn != nil {
		fs.conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeChunkFrame(timestamp, payload))
	}
}

func waitForState(t *testing.T, player *Player, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if player.Status().State == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("player never reached state %q (now %q)", want, player.Status().State)
}

func TestPlayerSessionAgainstFakeServer(t *testing.T) {
	if testing.Short() {
		t.Skip("session test uses real timers")
	}

	fs := newFakeServer(t)

	player, err := NewPlayer(PlayerConfig{
		ServerAddr: fs.addr(),
		PlayerName: "Test Player",
		Backend:    "null",
	})
	if err != nil {
		t.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	if err := player.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-fs.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}

	if !player.Status().Connected {
		t.Error("expected connected status")
	}

	// Announce a PCM stream and feed it silence chunks stamped slightly
	// in the future.
	fs.send(protocol.Message{
		Type: protocol.TypeStreamStart,
		Payload: protocol.StreamStart{
			Codec:      "pcm",
			SampleRate: 48000,
			Channels:   2,
			BitDepth:   16,
		},
	})
	fs.send(protocol.Message{
		Type:    protocol.TypeMetadata,
		Payload: protocol.StreamMetadata{Title: "Fake Track", Artist: "Fake Artist"},
	})

	// Feed silence chunks stamped slightly in the future. The render loop
	// sits in recovery until the first chunk lands, so the feeder must run
	// before the player can reach the synchronized state.
	payload := make([]byte, 960*2*2) // 20ms of 16-bit stereo silence
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fs.sendChunk(fs.now()+100_000, payload)
			}
		}
	}()

	waitForState(t, player, "synchronized", 3*time.Second)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if player.Stats().Received > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	close(stop)

	stats := player.Stats()
	if stats.Received == 0 {
		t.Error("expected chunks to reach the stream source")
	}

	// Stream end tears the session down.
	fs.send(protocol.Message{
		Type:    protocol.TypeStreamEnd,
		Payload: protocol.StreamEnd{Reason: "test over"},
	})
	waitForState(t, player, "idle", 3*time.Second)
}
