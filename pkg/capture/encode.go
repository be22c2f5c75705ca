package capture

import (
	"encoding/binary"
	"log/slog"
)

// Encoder turns accumulated PCM16 samples into a single utterance
// payload.
type Encoder interface {
	// Encode produces the complete payload for one utterance.
	Encode(samples []int16, sampleRate, channels int) ([]byte, error)

	// MIMEType is the tag carried on the resulting Utterance.
	MIMEType() string

	// Name is the short encoder name for logs.
	Name() string
}

// selectEncoder picks the best supported encoding at capture start.
// Preference order: opus in an Ogg container, then uncompressed WAV.
func selectEncoder(sampleRate, channels int, logger *slog.Logger) Encoder {
	if enc, err := NewOpusEncoder(sampleRate, channels); err == nil {
		return enc
	} else if logger != nil {
		logger.Debug("Opus encoder unavailable, falling back to WAV", "error", err)
	}
	return NewWAVEncoder()
}

// WAVEncoder wraps raw PCM16 in a RIFF/WAVE container. Always available;
// used when the opus codec cannot be initialized.
type WAVEncoder struct{}

// NewWAVEncoder creates a WAV encoder.
func NewWAVEncoder() *WAVEncoder {
	return &WAVEncoder{}
}

// Encode writes a canonical 44-byte WAV header followed by the samples.
func (e *WAVEncoder) Encode(samples []int16, sampleRate, channels int) ([]byte, error) {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}

	return buf, nil
}

// MIMEType returns "audio/wav".
func (e *WAVEncoder) MIMEType() string {
	return "audio/wav"
}

// Name returns "wav".
func (e *WAVEncoder) Name() string {
	return "wav"
}

var _ Encoder = (*WAVEncoder)(nil)
