package capture

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	// opusFrameMs is the encoder frame length. 20ms is the libopus
	// default for VoIP.
	opusFrameMs = 20

	// opusMaxPacket is the largest packet libopus can produce for one
	// frame.
	opusMaxPacket = 4000

	// opusPreSkip is the standard libopus priming sample count at 48kHz.
	opusPreSkip = 312
)

// OpusEncoder compresses PCM16 into opus packets and muxes them into an
// Ogg container, the encoding the interview service prefers.
type OpusEncoder struct {
	sampleRate int
	channels   int
}

// NewOpusEncoder creates an opus utterance encoder. Fails when the rate
// or channel count is outside what the codec supports, or when libopus
// is not usable on this platform.
func NewOpusEncoder(sampleRate, channels int) (*OpusEncoder, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("opus: unsupported sample rate %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", channels)
	}

	// Probe codec availability up front so encoding selection can fall
	// back before capture starts.
	if _, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP); err != nil {
		return nil, fmt.Errorf("opus: encoder init: %w", err)
	}

	return &OpusEncoder{sampleRate: sampleRate, channels: channels}, nil
}

// Encode compresses the samples frame by frame and returns a complete
// Ogg Opus stream. The final partial frame is zero-padded.
func (e *OpusEncoder) Encode(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate != e.sampleRate || channels != e.channels {
		return nil, fmt.Errorf("opus: encoder configured for %dHz/%dch, got %dHz/%dch",
			e.sampleRate, e.channels, sampleRate, channels)
	}

	enc, err := opus.NewEncoder(e.sampleRate, e.channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: encoder init: %w", err)
	}

	frameSize := e.sampleRate * opusFrameMs / 1000 * e.channels
	granulePerFrame := uint64(48000 * opusFrameMs / 1000)

	w := newOggWriter(e.channels, e.sampleRate, opusPreSkip)

	packet := make([]byte, opusMaxPacket)
	frame := make([]int16, frameSize)
	granule := uint64(opusPreSkip)

	for off := 0; off < len(samples); off += frameSize {
		end := off + frameSize
		if end > len(samples) {
			end = len(samples)
		}

		n := copy(frame, samples[off:end])
		for i := n; i < frameSize; i++ {
			frame[i] = 0
		}

		written, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("opus: encode frame: %w", err)
		}

		granule += granulePerFrame
		last := end == len(samples)
		w.writeAudio(packet[:written], granule, last)
	}

	return w.bytes(), nil
}

// MIMEType returns the Ogg Opus tag.
func (e *OpusEncoder) MIMEType() string {
	return "audio/ogg; codecs=opus"
}

// Name returns "opus".
func (e *OpusEncoder) Name() string {
	return "opus"
}

var _ Encoder = (*OpusEncoder)(nil)
