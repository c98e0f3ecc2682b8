// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests 16-bit and 24-bit PCM decoding
package decode

import (
	"testing"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestPCMDecode16Bit(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 16-bit little-endian: 4 bytes -> 2 samples
	input := []byte{0x00, 0x01, 0x02, 0x03}
	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(output) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(output))
	}

	// 0x00, 0x01 -> 0x0100 = 256 (16-bit) -> 256<<8 (24-bit range)
	if expected := int32(256 << 8); output[0] != expected {
		t.Errorf("expected first sample %d, got %d", expected, output[0])
	}
	// 0x02, 0x03 -> 0x0302 = 770 (16-bit) -> 770<<8
	if expected := int32(770 << 8); output[1] != expected {
		t.Errorf("expected second sample %d, got %d", expected, output[1])
	}
}

func TestPCMDecode24Bit(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 96000,
		Channels:   2,
		BitDepth:   24,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 24-bit: 3 bytes per sample, 6 bytes -> 2 samples
	input := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(output) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(output))
	}

	if expected := int32(0x020100); output[0] != expected {
		t.Errorf("expected first sample %d, got %d", expected, output[0])
	}
	if expected := int32(0x050403); output[1] != expected {
		t.Errorf("expected second sample %d, got %d", expected, output[1])
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecOpus,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}
}

func TestNewPCM_UnsupportedBitDepth(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   32,
	}

	decoder, err := NewPCM(format)
	if err == nil {
		t.Fatal("expected error for unsupported bit depth, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for unsupported bit depth")
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	output, err := decoder.Decode([]byte{})
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}
	if len(output) != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", len(output))
	}
}

func TestNew_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		codec   string
		wantErr bool
	}{
		{"pcm", audio.CodecPCM, false},
		{"opus", audio.CodecOpus, false},
		{"flac unsupported on wire", audio.CodecFLAC, true},
		{"unknown", "vorbis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := audio.Format{
				Codec:      tt.codec,
				SampleRate: 48000,
				Channels:   2,
				BitDepth:   16,
			}
			decoder, err := New(format)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && decoder == nil {
				t.Error("expected decoder when no error")
			}
		})
	}
}
