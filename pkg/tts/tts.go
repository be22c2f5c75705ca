// Package tts synthesizes interviewer prompts when the interview
// service supplies no prompt audio. Providers implement a common
// interface so the orchestrator can fall back across backends without
// caring which one produced the audio.
package tts

import (
	"context"
	"time"
)

// Provider converts prompt text to audio.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio with streaming output for lower
	// latency to first byte.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a streaming synthesis response. Read until Read
// returns nil, then Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when the stream is
	// complete.
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is the raw audio payload in Format's encoding.
	Audio []byte

	// Format describes the audio encoding.
	Format AudioFormat

	// Duration is the estimated playback duration, when known.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes audio encoding parameters.
type AudioFormat struct {
	// Encoding is the audio codec.
	Encoding Encoding

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats.
	BitDepth int
}

// Encoding identifies an audio encoding.
type Encoding string

const (
	// EncodingPCM16K is 16kHz mono PCM16, matching the capture rate.
	EncodingPCM16K Encoding = "pcm_16000"

	// EncodingPCM24K is 24kHz mono PCM16.
	EncodingPCM24K Encoding = "pcm_24000"

	// EncodingMP3 is MP3 at 44.1kHz.
	EncodingMP3 Encoding = "mp3_44100_128"
)

// MIMEType returns the media type tag for the encoding.
func (e Encoding) MIMEType() string {
	switch e {
	case EncodingMP3:
		return "audio/mpeg"
	default:
		return "audio/pcm"
	}
}

// SampleRate returns the sample rate implied by the encoding.
func (e Encoding) SampleRate() int {
	switch e {
	case EncodingPCM16K:
		return 16000
	case EncodingPCM24K:
		return 24000
	case EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// SpeechSettings shape the interviewer's delivery.
type SpeechSettings struct {
	// Rate is the speaking speed multiplier (1.0 = normal). Providers
	// clamp to their supported range.
	Rate float64

	// Pitch is a semitone offset from the voice's default (0 = none).
	// Providers without pitch control ignore it.
	Pitch float64
}

// DefaultSpeechSettings returns a neutral delivery.
func DefaultSpeechSettings() SpeechSettings {
	return SpeechSettings{Rate: 1.0, Pitch: 0}
}

// bufferStream adapts a complete buffer to the AudioStream interface.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	chunk := s.data[s.offset:]
	s.offset = len(s.data)
	return chunk, nil
}

func (s *bufferStream) Close() error {
	return nil
}

func (s *bufferStream) Format() AudioFormat {
	return s.format
}
