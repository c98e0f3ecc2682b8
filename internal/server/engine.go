// ABOUTME: Streaming engine that paces audio chunks onto the wire
// ABOUTME: Reads from the source, encodes, and broadcasts timestamped frames
package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tempocast/tempocast-go/internal/protocol"
	"github.com/tempocast/tempocast-go/pkg/audio"
	"github.com/tempocast/tempocast-go/pkg/audio/encode"
)

const (
	// ChunkDuration is how much audio each wire chunk carries.
	ChunkDuration = 20 * time.Millisecond

	// BufferAhead is how far ahead of the server clock chunks are stamped.
	// Players schedule against these timestamps, so this bounds how much
	// network jitter the stream absorbs.
	BufferAhead = 500 * time.Millisecond

	// opusSampleRate is the only rate the Opus encoder accepts here.
	opusSampleRate = 48000
)

// Engine produces the audio stream. A ticker fires once per chunk duration;
// each tick reads one chunk from the source, encodes it and broadcasts it to
// every connected client with a presentation timestamp in the near future.
type Engine struct {
	clock   func() int64 // server clock in microseconds
	source  Source
	format  audio.Format
	encoder encode.Encoder

	chunkFrames int
	chunkMicros int64
	samples     []int32 // scratch buffer, one chunk of interleaved samples

	// next is the presentation timestamp of the next chunk. Zero means the
	// timeline has not been anchored yet.
	next int64

	clients   map[string]*Client
	clientsMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEngine creates an engine streaming the source with the given wire codec.
// PCM streams at the source's native rate and depth; Opus forces 48kHz
// 16-bit, resampling the source when needed.
func NewEngine(clock func() int64, source Source, codec string) (*Engine, error) {
	if codec == audio.CodecOpus && source.SampleRate() != opusSampleRate {
		log.Printf("Resampling %dHz source to %dHz for Opus", source.SampleRate(), opusSampleRate)
		source = newResampledSource(source, opusSampleRate)
	}

	format := audio.Format{
		Codec:      codec,
		SampleRate: source.SampleRate(),
		Channels:   source.Channels(),
		BitDepth:   source.BitDepth(),
	}
	if codec == audio.CodecOpus {
		// Opus frames are 16-bit regardless of the source depth.
		format.BitDepth = 16
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream format: %w", err)
	}

	encoder, err := encode.New(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s encoder: %w", codec, err)
	}

	chunkFrames := format.FramesFor(ChunkDuration)

	return &Engine{
		clock:       clock,
		source:      source,
		format:      format,
		encoder:     encoder,
		chunkFrames: chunkFrames,
		chunkMicros: ChunkDuration.Microseconds(),
		samples:     make([]int32, chunkFrames*format.Channels),
		clients:     make(map[string]*Client),
		stopChan:    make(chan struct{}),
	}, nil
}

// Format returns the wire format the engine streams.
func (e *Engine) Format() audio.Format {
	return e.format
}

// AddClient registers a client and announces the stream to it
func (e *Engine) AddClient(client *Client) {
	start := protocol.StreamStartFor(e.format)
	if err := client.send(protocol.Message{Type: protocol.TypeStreamStart, Payload: start}); err != nil {
		log.Printf("Error sending stream start to %s: %v", client.Name, err)
		return
	}

	title, artist, album := e.source.Metadata()
	if title != "" || artist != "" || album != "" {
		meta := protocol.StreamMetadata{Title: title, Artist: artist, Album: album}
		if err := client.send(protocol.Message{Type: protocol.TypeMetadata, Payload: meta}); err != nil {
			log.Printf("Error sending metadata to %s: %v", client.Name, err)
		}
	}

	e.clientsMu.Lock()
	e.clients[client.ID] = client
	count := len(e.clients)
	e.clientsMu.Unlock()

	log.Printf("Streaming %s/%dHz/%dch/%d-bit to %s (%d clients)",
		e.format.Codec, e.format.SampleRate, e.format.Channels, e.format.BitDepth, client.Name, count)
}

// RemoveClient stops streaming to a client
func (e *Engine) RemoveClient(client *Client) {
	e.clientsMu.Lock()
	delete(e.clients, client.ID)
	e.clientsMu.Unlock()
}

// Run streams chunks until Stop is called or the source ends.
func (e *Engine) Run() {
	defer e.encoder.Close()

	ticker := time.NewTicker(ChunkDuration)
	defer ticker.Stop()

	log.Printf("Streaming engine started: %d frames per chunk, %v ahead", e.chunkFrames, BufferAhead)

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if err := e.streamChunk(); err != nil {
				log.Printf("Stream ended: %v", err)
				e.broadcastEnd(err.Error())
				return
			}
		}
	}
}

// Stop halts the engine. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

// streamChunk produces and broadcasts one chunk. It returns an error only
// when the source is finished; transient conditions are logged and skipped.
func (e *Engine) streamChunk() error {
	due := e.clock() + BufferAhead.Microseconds()

	// Anchor the timeline on the first chunk, and re-anchor if production
	// fell behind the clock by more than one chunk (process stall, ticker
	// ticks dropped). Re-anchoring leaves a gap in the stream; players
	// starve across it and recover on the far side.
	if e.next == 0 {
		e.next = due
	} else if slip := due - e.next; slip > e.chunkMicros {
		log.Printf("Stream timeline re-anchored: production slipped %dμs", slip)
		e.next = due
	}

	n, err := e.source.Read(e.samples)
	if err != nil {
		return fmt.Errorf("source read failed: %w", err)
	}
	// A short read means the source is between buffers; pad with silence
	// so the chunk cadence never stalls.
	for i := n; i < len(e.samples); i++ {
		e.samples[i] = 0
	}

	payload, err := e.encoder.Encode(e.samples)
	if err != nil {
		log.Printf("Encode error, dropping chunk: %v", err)
		e.next += e.chunkMicros
		return nil
	}

	frame := protocol.EncodeChunkFrame(e.next, payload)
	e.next += e.chunkMicros

	e.clientsMu.RLock()
	for _, client := range e.clients {
		if err := client.send(frame); err != nil {
			// Slow client; it will resynchronize from later chunks.
			log.Printf("Dropping chunk for %s: %v", client.Name, err)
		}
	}
	e.clientsMu.RUnlock()

	return nil
}

// broadcastEnd tells every client the stream is over
func (e *Engine) broadcastEnd(reason string) {
	end := protocol.Message{Type: protocol.TypeStreamEnd, Payload: protocol.StreamEnd{Reason: reason}}

	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()
	for _, client := range e.clients {
		if err := client.send(end); err != nil {
			log.Printf("Error sending stream end to %s: %v", client.Name, err)
		}
	}
}
