// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, message handling, and key input
package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tempocast/tempocast-go/internal/sync"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // VolumeControl is optional for testing

	if model.connected {
		t.Error("expected connected to be false initially")
	}

	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}

	if model.muted {
		t.Error("expected muted to be false initially")
	}

	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	msg := StatusMsg{
		Connected:  &connected,
		ServerName: "test-server",
	}

	model.applyStatus(msg)

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}

	if model.serverName != "test-server" {
		t.Errorf("expected serverName 'test-server', got '%s'", model.serverName)
	}
}

func TestStatusMsgDisconnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected})

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})

	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
}

func TestStatusMsgSyncStats(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		SyncRTT:     5000,
		SyncQuality: sync.QualityGood,
	}

	model.applyStatus(msg)

	if model.syncRTT != 5000 {
		t.Errorf("expected syncRTT 5000, got %d", model.syncRTT)
	}

	if model.syncQuality != sync.QualityGood {
		t.Errorf("expected QualityGood, got %v", model.syncQuality)
	}
}

func TestStatusMsgStreamInfo(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Codec:      "opus",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	model.applyStatus(msg)

	if model.codec != "opus" {
		t.Errorf("expected codec 'opus', got '%s'", model.codec)
	}

	if model.sampleRate != 48000 {
		t.Errorf("expected sampleRate 48000, got %d", model.sampleRate)
	}

	if model.channels != 2 {
		t.Errorf("expected channels 2, got %d", model.channels)
	}

	if model.bitDepth != 16 {
		t.Errorf("expected bitDepth 16, got %d", model.bitDepth)
	}
}

func TestStatusMsgMetadata(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Title:  "Test Song",
		Artist: "Test Artist",
		Album:  "Test Album",
	}

	model.applyStatus(msg)

	if model.title != "Test Song" {
		t.Errorf("expected title 'Test Song', got '%s'", model.title)
	}

	if model.artist != "Test Artist" {
		t.Errorf("expected artist 'Test Artist', got '%s'", model.artist)
	}

	if model.album != "Test Album" {
		t.Errorf("expected album 'Test Album', got '%s'", model.album)
	}
}

func TestStatusMsgRenderStats(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		RenderState: "running",
		Drift:       1500,
		Periods:     4200,
		Recoveries:  2,
		BufferMs:    180,
	}

	model.applyStatus(msg)

	if model.renderState != "running" {
		t.Errorf("expected renderState 'running', got '%s'", model.renderState)
	}

	if model.drift != 1500 {
		t.Errorf("expected drift 1500, got %d", model.drift)
	}

	if model.periods != 4200 {
		t.Errorf("expected periods 4200, got %d", model.periods)
	}

	if model.recoveries != 2 {
		t.Errorf("expected recoveries 2, got %d", model.recoveries)
	}

	if model.bufferMs != 180 {
		t.Errorf("expected bufferMs 180, got %d", model.bufferMs)
	}
}

func TestStatusMsgVolume(t *testing.T) {
	model := NewModel(nil)

	volume := 75
	model.applyStatus(StatusMsg{Volume: &volume})

	if model.volume != 75 {
		t.Errorf("expected volume 75, got %d", model.volume)
	}

	zero := 0
	model.applyStatus(StatusMsg{Volume: &zero})

	if model.volume != 0 {
		t.Errorf("expected volume 0 via pointer, got %d", model.volume)
	}
}

func TestMultipleStatusUpdates(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{
		Connected: &connected,
		Codec:     "opus",
	})

	if model.codec != "opus" {
		t.Error("first update failed")
	}

	model.applyStatus(StatusMsg{
		Codec:      "opus",
		SampleRate: 48000,
	})

	if model.codec != "opus" {
		t.Error("previous codec value was lost")
	}

	if model.sampleRate != 48000 {
		t.Error("new sampleRate not applied")
	}
}

func TestMetadataClearing(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Title:  "Song",
		Artist: "Artist",
		Album:  "Album",
	})

	model.applyStatus(StatusMsg{
		Title:  "",
		Artist: "",
		Album:  "",
	})

	// Empty strings should not clear (only non-empty values are applied)
	if model.title != "Song" {
		t.Error("title should not be cleared by empty string")
	}
}

func TestVolumeKeysSendChanges(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(Model)

	select {
	case change := <-ctrl.Changes:
		if change.Volume != 95 {
			t.Errorf("expected volume 95, got %d", change.Volume)
		}
		if change.Muted {
			t.Error("expected unmuted")
		}
	default:
		t.Fatal("expected a volume change message")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model = updated.(Model)

	select {
	case change := <-ctrl.Changes:
		if !change.Muted {
			t.Error("expected muted after m key")
		}
	default:
		t.Fatal("expected a mute change message")
	}
}

func TestVolumeClampsAtBounds(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	for i := 0; i < 25; i++ {
		updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyUp})
		model = updated.(Model)
	}

	if model.volume != 100 {
		t.Errorf("expected volume clamped at 100, got %d", model.volume)
	}
}

func TestQuitKeyNotifies(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}

	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected quit notification")
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten c", 14, "exactly ten c"},
		{"this is longer than allowed", 10, "this is..."},
		{"this is longer than allowed", 15, "this is long..."},
		{"", 10, ""},
		{"a", 10, "a"},
		{"abc", 3, "abc"},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestChannelNameFunction(t *testing.T) {
	tests := []struct {
		channels int
		expected string
	}{
		{1, "Mono"},
		{2, "Stereo"},
		{3, "Stereo"},
		{6, "Stereo"},
		{0, "Stereo"},
	}

	for _, tt := range tests {
		result := channelName(tt.channels)
		if result != tt.expected {
			t.Errorf("channelName(%d) = %q, expected %q",
				tt.channels, result, tt.expected)
		}
	}
}

func TestSyncQualityDisplay(t *testing.T) {
	model := NewModel(nil)

	qualities := []sync.Quality{
		sync.QualityGood,
		sync.QualityDegraded,
		sync.QualityLost,
	}

	for _, q := range qualities {
		model.applyStatus(StatusMsg{
			SyncQuality: q,
			SyncRTT:     1000,
		})

		if model.syncQuality != q {
			t.Errorf("quality not updated to %v", q)
		}
	}
}
