// ABOUTME: Audio source abstraction for streaming from files or URLs
// ABOUTME: Decodes MP3 and FLAC into the int32 working representation
package server

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

// Source provides PCM audio for the engine to stream.
type Source interface {
	// Read fills samples with interleaved PCM in the left-justified 24-bit
	// int32 range and returns the number of samples written. File sources
	// loop at EOF; stream sources return io.EOF when exhausted.
	Read(samples []int32) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Channels returns the number of channels
	Channels() int
	// BitDepth returns the native sample depth (16 or 24)
	BitDepth() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	// Close closes the audio source
	Close() error
}

// NewSource creates a source from a file path or HTTP URL.
// An empty path returns a test tone generator.
func NewSource(pathOrURL string) (Source, error) {
	if pathOrURL == "" {
		return NewToneSource(), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		log.Printf("Streaming from HTTP URL: %s", pathOrURL)
		return NewHTTPMP3Source(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", pathOrURL)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3Source(pathOrURL)
	case ".flac":
		return NewFLACSource(pathOrURL)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

// MP3Source reads from an MP3 file, looping at EOF
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
	title      string
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(filePath)
	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", title, decoder.SampleRate())

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

func (s *MP3Source) Read(samples []int32) (int, error) {
	// The decoder outputs 16-bit little-endian stereo.
	numBytes := len(samples) * 2
	if len(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}

	n, err := s.decoder.Read(s.buf[:numBytes])
	if err != nil && err != io.EOF {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(s.buf[i*2 : i*2+2]))
		samples[i] = audio.SampleFromInt16(sample16)
	}

	if err == io.EOF {
		// Loop: seek back and restart the decoder.
		if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
			return numSamples, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		newDecoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return numSamples, fmt.Errorf("failed to restart decoder: %w", decErr)
		}
		s.decoder = newDecoder
	}

	return numSamples, nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Channels() int   { return 2 } // go-mp3 always outputs stereo
func (s *MP3Source) BitDepth() int   { return 16 }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// FLACSource reads from a FLAC file, looping at EOF
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	pending    []int32 // samples decoded past the end of the last Read
	title      string
}

// NewFLACSource creates a new FLAC audio source
func NewFLACSource(filePath string) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := titleFromPath(filePath)
	log.Printf("Loaded FLAC: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		title, info.SampleRate, info.NChannels, info.BitsPerSample)

	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      title,
	}, nil
}

func (s *FLACSource) Read(samples []int32) (int, error) {
	samplesRead := copy(samples, s.pending)
	s.pending = s.pending[samplesRead:]

	for samplesRead < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				// Loop back to start.
				if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
					return samplesRead, fmt.Errorf("failed to seek to start: %w", seekErr)
				}
				newStream, decErr := flac.New(s.file)
				if decErr != nil {
					return samplesRead, fmt.Errorf("failed to restart stream: %w", decErr)
				}
				s.stream = newStream
				continue
			}
			return samplesRead, err
		}

		// Interleave the frame's subframes; whatever does not fit in this
		// Read is kept for the next one.
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				sample := s.scale(frame.Subframes[ch].Samples[i])
				if samplesRead < len(samples) {
					samples[samplesRead] = sample
					samplesRead++
				} else {
					s.pending = append(s.pending, sample)
				}
			}
		}
	}

	return samplesRead, nil
}

// scale maps a native-depth FLAC sample into the 24-bit working range
func (s *FLACSource) scale(sample int32) int32 {
	switch {
	case s.bitDepth == 24:
		return sample
	case s.bitDepth < 24:
		return sample << (24 - s.bitDepth)
	default:
		return sample >> (s.bitDepth - 24)
	}
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) BitDepth() int {
	if s.bitDepth <= 16 {
		return 16
	}
	return 24
}
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error {
	return s.file.Close()
}

// HTTPMP3Source streams MP3 from an HTTP URL. It does not loop; the stream
// ends when the server closes the connection.
type HTTPMP3Source struct {
	url        string
	response   *http.Response
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewHTTPMP3Source creates a new HTTP MP3 streaming source
func NewHTTPMP3Source(url string) (*HTTPMP3Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	log.Printf("Streaming MP3 from HTTP: %s (sample rate: %d Hz)", url, decoder.SampleRate())

	return &HTTPMP3Source{
		url:        url,
		response:   resp,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *HTTPMP3Source) Read(samples []int32) (int, error) {
	numBytes := len(samples) * 2
	if len(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}

	n, err := s.decoder.Read(s.buf[:numBytes])
	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(s.buf[i*2 : i*2+2]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	if err != nil && (numSamples == 0 || err != io.EOF) {
		return numSamples, err
	}
	return numSamples, nil
}

func (s *HTTPMP3Source) SampleRate() int { return s.sampleRate }
func (s *HTTPMP3Source) Channels() int   { return 2 }
func (s *HTTPMP3Source) BitDepth() int   { return 16 }
func (s *HTTPMP3Source) Metadata() (string, string, string) {
	return s.url, "", ""
}
func (s *HTTPMP3Source) Close() error {
	return s.response.Body.Close()
}

// titleFromPath derives a display title from a file path
func titleFromPath(filePath string) string {
	filename := filepath.Base(filePath)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
