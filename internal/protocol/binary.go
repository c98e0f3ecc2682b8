// ABOUTME: Binary audio frame encoding and decoding
// ABOUTME: One type byte, big-endian microsecond timestamp, then payload
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// ChunkFrameType is the binary message type ID for audio chunks.
	ChunkFrameType = 4

	// chunkHeaderSize is one type byte plus an 8-byte timestamp.
	chunkHeaderSize = 1 + 8
)

// EncodeChunkFrame wraps an encoded audio payload with its presentation
// timestamp for the wire.
func EncodeChunkFrame(timestamp int64, payload []byte) []byte {
	frame := make([]byte, chunkHeaderSize+len(payload))
	frame[0] = ChunkFrameType
	binary.BigEndian.PutUint64(frame[1:chunkHeaderSize], uint64(timestamp))
	copy(frame[chunkHeaderSize:], payload)
	return frame
}

// DecodeChunkFrame splits a binary frame into timestamp and payload.
// The payload aliases the input.
func DecodeChunkFrame(data []byte) (timestamp int64, payload []byte, err error) {
	if len(data) < chunkHeaderSize {
		return 0, nil, fmt.Errorf("binary frame too short: %d bytes", len(data))
	}
	if data[0] != ChunkFrameType {
		return 0, nil, fmt.Errorf("unknown binary frame type: %d", data[0])
	}
	timestamp = int64(binary.BigEndian.Uint64(data[1:chunkHeaderSize]))
	return timestamp, data[chunkHeaderSize:], nil
}
