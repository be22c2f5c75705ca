package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/voxhire/voxhire/pkg/audioio"
)

// pcmAudio is a fully decoded source ready to write to a sink.
type pcmAudio struct {
	samples    []int16
	sampleRate int
	channels   int
}

// decode converts an audio buffer to PCM16. Supported inputs: MP3,
// WAV (PCM16 only), and raw PCM tagged "audio/pcm" with optional
// rate/channels media type parameters.
func decode(data []byte, mimeType string) (*pcmAudio, error) {
	if len(data) == 0 {
		return nil, ErrNoSource
	}

	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	switch {
	case mediaType == "audio/mpeg" || mediaType == "audio/mp3":
		return decodeMP3(data)
	case mediaType == "audio/wav" || mediaType == "audio/x-wav" || mediaType == "audio/wave":
		return decodeWAV(data)
	case mediaType == "audio/pcm":
		return decodeRawPCM(data, params)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
}

// decodeMP3 decodes an MP3 buffer. go-mp3 always outputs 16-bit
// stereo at the file's sample rate.
func decodeMP3(data []byte) (*pcmAudio, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 decode: %v", ErrUnsupportedFormat, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 decode: %v", ErrPlaybackFailed, err)
	}

	return &pcmAudio{
		samples:    audioio.BytesToSamples(raw),
		sampleRate: dec.SampleRate(),
		channels:   2,
	}, nil
}

// decodeWAV walks the RIFF chunks of a WAV buffer. Only uncompressed
// PCM16 is accepted.
func decodeWAV(data []byte) (*pcmAudio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a WAV file", ErrUnsupportedFormat)
	}

	var (
		sampleRate int
		channels   int
		bitDepth   int
		pcm        []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("%w: WAV format %d (PCM only)", ErrUnsupportedFormat, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		offset = body + size + size%2
	}

	if sampleRate == 0 || channels == 0 || pcm == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrUnsupportedFormat)
	}
	if bitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit WAV (16-bit only)", ErrUnsupportedFormat, bitDepth)
	}

	return &pcmAudio{
		samples:    audioio.BytesToSamples(pcm),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// decodeRawPCM wraps headerless PCM16. Rate and channels come from the
// media type parameters; synthesis output defaults to 24kHz mono.
func decodeRawPCM(data []byte, params map[string]string) (*pcmAudio, error) {
	rate := 24000
	if v, ok := params["rate"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rate = n
		}
	}
	channels := 1
	if v, ok := params["channels"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			channels = n
		}
	}

	return &pcmAudio{
		samples:    audioio.BytesToSamples(data),
		sampleRate: rate,
		channels:   channels,
	}, nil
}
