// ABOUTME: Tests for PCM encoder
// ABOUTME: Tests 16-bit and 24-bit PCM encoding
package encode

import (
	"encoding/binary"
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

	encoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	if encoder == nil {
		t.Fatal("expected encoder to be created")
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecOpus,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	if _, err := NewPCM(format); err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
}

func TestNewPCM_UnsupportedBitDepth(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   32,
	}

	if _, err := NewPCM(format); err == nil {
		t.Fatal("expected error for unsupported bit depth, got nil")
	}
}

func TestPCMEncode16Bit(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	encoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	samples := []int32{
		0,         // silence
		0x7FFF00,  // max positive 16-bit, left-justified
		-0x800000, // max negative 16-bit, left-justified
		0x123400,
		-0x567800,
	}

	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(output) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(output))
	}

	for i, sample := range samples {
		expected := audio.SampleToInt16(sample)
		actual := int16(binary.LittleEndian.Uint16(output[i*2:]))
		if actual != expected {
			t.Errorf("sample %d: expected %d, got %d", i, expected, actual)
		}
	}
}

func TestPCMEncode24Bit(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 96000,
		Channels:   2,
		BitDepth:   24,
	}

	encoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	samples := []int32{0, 0x7FFFFF, -0x800000, 0x123456, -0x567890}

	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(output) != len(samples)*3 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*3, len(output))
	}

	for i, sample := range samples {
		expected := audio.SampleTo24Bit(sample)
		actual := [3]byte{output[i*3], output[i*3+1], output[i*3+2]}
		if actual != expected {
			t.Errorf("sample %d: expected %v, got %v", i, expected, actual)
		}
	}
}

func TestPCMEncode_RoundTripThroughSampleHelpers(t *testing.T) {
	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   24,
	}

	encoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	samples := []int32{12345, -12345, audio.Max24Bit, audio.Min24Bit}
	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for i, want := range samples {
		b := [3]byte{output[i*3], output[i*3+1], output[i*3+2]}
		if got := audio.SampleFrom24Bit(b); got != want {
			t.Errorf("sample %d: round trip gave %d, want %d", i, got, want)
		}
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
			encoder, err := New(format)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && encoder == nil {
				t.Error("expected encoder when no error")
			}
		})
	}
}
