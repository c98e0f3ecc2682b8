// ABOUTME: Entry point for the Tempocast player
// ABOUTME: Parses CLI flags and starts the player application
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tempocast/tempocast-go/internal/discovery"
	"github.com/tempocast/tempocast-go/internal/ui"
	"github.com/tempocast/tempocast-go/internal/version"
	"github.com/tempocast/tempocast-go/pkg/audio/output"
	"github.com/tempocast/tempocast-go/pkg/tempocast"
)

var (
	serverAddr  = flag.String("server", "", "Manual server address host:port (skip mDNS)")
	name        = flag.String("name", "", "Player friendly name (default: hostname-tempocast)")
	backend     = flag.String("backend", "", "Audio backend: malgo, oto, portaudio, null (default: malgo)")
	device      = flag.String("device", "", "Playback device name (default: system default)")
	listDevices = flag.Bool("list-devices", false, "List playback devices and exit")
	bufferMs    = flag.Int("buffer-ms", 40, "Device queue depth in milliseconds")
	latencyMs   = flag.Int("latency-ms", 0, "Output latency compensation in milliseconds")
	volume      = flag.Int("volume", 100, "Initial volume (0-100)")
	logFile     = flag.String("log-file", "tempocast-player.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	if *listDevices {
		printDevices()
		return
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file, the terminal belongs to the TUI.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-tempocast", hostname)
	}

	log.Printf("Starting Tempocast Player %s: %s", version.Version, playerName)

	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl

	if useTUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg = ui.Run(volumeCtrl)
		go tuiProg.Run()
	}

	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	serverAddress, err := resolveServer(playerName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	config := tempocast.PlayerConfig{
		ServerAddr: serverAddress,
		PlayerName: playerName,
		Backend:    *backend,
		Device:     *device,
		Volume:     *volume,
		BufferMs:   *bufferMs,
		LatencyMs:  *latencyMs,
		OnStateChange: func(state tempocast.PlayerState) {
			connected := state.Connected
			vol := state.Volume
			muted := state.Muted
			msg := ui.StatusMsg{
				Connected: &connected,
				Volume:    &vol,
				Muted:     &muted,
				Codec:     state.Codec,
			}
			if state.Connected {
				msg.ServerName = serverAddress
			}
			if state.Codec != "" {
				msg.SampleRate = state.SampleRate
				msg.Channels = state.Channels
				msg.BitDepth = state.BitDepth
			}
			updateTUI(msg)
		},
		OnMetadata: func(meta tempocast.Metadata) {
			updateTUI(ui.StatusMsg{
				Title:  meta.Title,
				Artist: meta.Artist,
				Album:  meta.Album,
			})
		},
		OnError: func(err error) {
			log.Printf("Player error: %v", err)
		},
	}

	player, err := tempocast.NewPlayer(config)
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	if err := player.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}

	if volumeCtrl != nil {
		go handleVolumeControl(player, volumeCtrl)
	}
	if tuiProg != nil {
		go statsUpdateLoop(player, updateTUI)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if volumeCtrl != nil {
		select {
		case <-volumeCtrl.Quit:
			log.Printf("Received quit signal from TUI")
		case <-sigChan:
			log.Printf("Shutdown signal received")
		}
	} else {
		<-sigChan
		log.Printf("Shutdown signal received")
	}

	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}
	output.ShutdownSubsystem()

	if tuiProg != nil {
		tuiProg.Quit()
	}

	log.Printf("Player stopped")
}

// printDevices lists playback devices on stdout
func printDevices() {
	devices, err := output.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Playback devices:")
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, d.Name)
	}
	output.ShutdownSubsystem()
}

// resolveServer returns the configured server address, browsing mDNS when
// none was given on the command line.
func resolveServer(playerName string) (string, error) {
	if *serverAddr != "" {
		return *serverAddr, nil
	}

	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{ServiceName: playerName})
	defer disc.Stop()

	server, err := disc.FindServer(10 * time.Second)
	if err != nil {
		return "", fmt.Errorf("server discovery failed: %w", err)
	}

	log.Printf("Discovered server %s at %s", server.Name, server.Addr())
	return server.Addr(), nil
}

// handleVolumeControl applies TUI volume changes to the player
func handleVolumeControl(player *tempocast.Player, volumeCtrl *ui.VolumeControl) {
	for vol := range volumeCtrl.Changes {
		log.Printf("Volume change: %d%%, muted=%v", vol.Volume, vol.Muted)
		player.SetVolume(vol.Volume)
		player.Mute(vol.Muted)
	}
}

// statsUpdateLoop periodically pushes playback statistics to the TUI
func statsUpdateLoop(player *tempocast.Player, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		stats := player.Stats()

		updateTUI(ui.StatusMsg{
			SyncOffset:  stats.SyncOffset,
			SyncRTT:     stats.SyncRTT,
			SyncQuality: stats.SyncQuality,
			RenderState: stats.State,
			Drift:       stats.Drift.Microseconds(),
			Periods:     stats.Periods,
			Recoveries:  stats.Recoveries,
			BufferMs:    stats.BufferMs,
		})
	}
}
