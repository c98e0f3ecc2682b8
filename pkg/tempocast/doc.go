// ABOUTME: High-level Tempocast player API
// ABOUTME: Provides the Player type most library users want
// Package tempocast provides a high-level API for synchronized audio playback.
//
// A Player connects to a Tempocast server, keeps its clock synchronized,
// and renders the timed audio stream through a local audio endpoint. The
// playback pipeline is built when the server announces a stream and torn
// down when the stream ends.
//
// Example:
//
//	player, err := tempocast.NewPlayer(tempocast.PlayerConfig{
//	    ServerAddr: "localhost:8927",
//	    PlayerName: "Living Room",
//	    Volume:     80,
//	})
//	err = player.Connect()
//	defer player.Close()
//
// For lower-level control, see the pkg/audio packages.
package tempocast
