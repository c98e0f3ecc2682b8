// ABOUTME: Entry point for the Tempocast development server
// ABOUTME: Parses CLI flags and streams one audio source to all players
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tempocast/tempocast-go/internal/server"
)

var (
	port    = flag.Int("port", 8927, "WebSocket server port")
	name    = flag.String("name", "", "Server friendly name (default: hostname-tempocast-server)")
	codec   = flag.String("codec", "pcm", "Wire codec: pcm or opus")
	file    = flag.String("file", "", "Audio file or HTTP URL to stream (MP3, FLAC). If not specified, plays a test tone")
	logFile = flag.String("log-file", "tempocast-server.log", "Log file path")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-tempocast-server", hostname)
	}

	log.Printf("Starting Tempocast Server: %s on port %d (%s)", serverName, *port, *codec)
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		Codec:      *codec,
		AudioFile:  *file,
		EnableMDNS: !*noMDNS,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
