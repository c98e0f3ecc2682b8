// ABOUTME: Tempocast protocol message type definitions
// ABOUTME: Defines the JSON envelope and payload structs for all message types
package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Protocol version spoken by this implementation.
const Version = 1

// Message type identifiers.
const (
	TypeClientHello = "client/hello"
	TypeClientTime  = "client/time"
	TypeServerHello = "server/hello"
	TypeServerTime  = "server/time"
	TypeStreamStart = "stream/start"
	TypeStreamEnd   = "stream/end"
	TypeCommand     = "server/command"
	TypeUpdate      = "player/update"
	TypeMetadata    = "stream/metadata"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID      string         `json:"client_id"`
	Name          string         `json:"name"`
	Version       int            `json:"version"`
	DeviceInfo    *DeviceInfo    `json:"device_info,omitempty"`
	PlayerSupport *PlayerSupport `json:"player_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerSupport describes player capabilities
type PlayerSupport struct {
	SupportCodecs      []string `json:"support_codecs"`
	SupportChannels    []int    `json:"support_channels"`
	SupportSampleRates []int    `json:"support_sample_rates"`
	SupportBitDepth    []int    `json:"support_bit_depth"`
	BufferCapacityMs   int      `json:"buffer_capacity_ms"`
	SupportedCommands  []string `json:"supported_commands"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// PlayerState reports the player's current state (player/update payload)
type PlayerState struct {
	State  string `json:"state"` // "synchronized", "recovering" or "idle"
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// PlayerCommand is a control message from the server (server/command payload)
type PlayerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// StreamStart notifies the client of the stream format
type StreamStart struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// Format converts the announcement into the stream's audio format.
func (s StreamStart) Format() (audio.Format, error) {
	f := audio.Format{
		Codec:      s.Codec,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		BitDepth:   s.BitDepth,
	}
	if s.CodecHeader != "" {
		header, err := base64.StdEncoding.DecodeString(s.CodecHeader)
		if err != nil {
			return audio.Format{}, fmt.Errorf("invalid codec header: %w", err)
		}
		f.CodecHeader = header
	}
	return f, f.Validate()
}

// StreamStartFor builds the announcement for a stream format.
func StreamStartFor(f audio.Format) StreamStart {
	s := StreamStart{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
	if len(f.CodecHeader) > 0 {
		s.CodecHeader = base64.StdEncoding.EncodeToString(f.CodecHeader)
	}
	return s
}

// StreamEnd terminates the active stream
type StreamEnd struct {
	Reason string `json:"reason,omitempty"`
}

// StreamMetadata contains track information
type StreamMetadata struct {
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`    // Server receive timestamp
	ServerTransmitted int64 `json:"server_transmitted"` // Server send timestamp
}
