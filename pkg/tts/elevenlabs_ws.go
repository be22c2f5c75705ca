package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsWSBaseURL   = "wss://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsRESTBaseURL = "https://api.elevenlabs.io/v1"
	providerElevenLabs    = "elevenlabs"

	wsHandshakeTimeout = 10 * time.Second
)

// ElevenLabsWS implements Provider over the ElevenLabs streaming
// WebSocket endpoint. Each synthesis opens one connection for the
// lifetime of that prompt; prompt text is short enough that connection
// reuse is not worth the reconnect state machine.
type ElevenLabsWS struct {
	config *Config
	logger *slog.Logger
	wsURL  string
}

// NewElevenLabsWS creates a streaming ElevenLabs provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.ModelID = "eleven_turbo_v2_5"
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	wsURL := cfg.BaseURL
	if wsURL == "" {
		wsURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.elevenlabs"),
		wsURL:  wsURL,
	}, nil
}

// Stream synthesizes text over one WebSocket connection. Audio chunks
// arrive base64-encoded and are decoded as they are read.
func (e *ElevenLabsWS) Stream(ctx context.Context, text string) (AudioStream, error) {
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.wsURL, e.config.VoiceID, e.config.ModelID, e.apiFormat())

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    err.Error(),
				Provider:   providerElevenLabs,
			}
		}
		return nil, WrapError(providerElevenLabs, fmt.Errorf("websocket dial: %w", err))
	}

	speed := e.config.Speech.Rate
	if speed <= 0 {
		speed = 1.0
	}

	bos := map[string]interface{}{
		"text": " ",
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
			"speed":            speed,
		},
		"generation_config": map[string]interface{}{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabs, fmt.Errorf("send BOS: %w", err))
	}

	if err := conn.WriteJSON(map[string]interface{}{
		"text":                   text + " ",
		"try_trigger_generation": true,
	}); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabs, fmt.Errorf("send text: %w", err))
	}

	// EOS: empty text ends the input stream.
	if err := conn.WriteJSON(map[string]interface{}{"text": ""}); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabs, fmt.Errorf("send EOS: %w", err))
	}

	e.logger.Debug("streaming synthesis started",
		"chars", len(text),
		"voice", e.config.VoiceID,
	)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(e.config.StreamTimeout))
	}

	return &wsStream{
		conn: conn,
		format: AudioFormat{
			Encoding:   e.config.OutputFormat,
			SampleRate: e.config.OutputFormat.SampleRate(),
			Channels:   1,
			BitDepth:   16,
		},
	}, nil
}

// Synthesize streams and accumulates the full buffer.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := e.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var audio []byte
	var firstByte time.Duration

	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if audio == nil {
			firstByte = time.Since(start)
		}
		audio = append(audio, chunk...)
	}

	return &AudioResult{
		Audio:     audio,
		Format:    stream.Format(),
		CharCount: len(text),
		LatencyMs: firstByte.Milliseconds(),
	}, nil
}

// Health checks the API key against the voices endpoint.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", elevenLabsRESTBaseURL+"/voices", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	client := &http.Client{Timeout: e.config.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Provider:   providerElevenLabs,
		}
	}
	return nil
}

// Close releases resources. Connections are per-stream, so there is
// nothing persistent to tear down.
func (e *ElevenLabsWS) Close() error {
	return nil
}

func (e *ElevenLabsWS) apiFormat() string {
	switch e.config.OutputFormat {
	case EncodingPCM16K:
		return "pcm_16000"
	case EncodingPCM24K:
		return "pcm_24000"
	case EncodingMP3:
		return "mp3_44100_128"
	default:
		return "pcm_24000"
	}
}

// wsStream reads synthesis messages off the WebSocket until the final
// marker.
type wsStream struct {
	conn   *websocket.Conn
	format AudioFormat
	done   bool
}

func (s *wsStream) Read() ([]byte, error) {
	if s.done {
		return nil, nil
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.done = true
				return nil, nil
			}
			return nil, WrapError(providerElevenLabs, fmt.Errorf("read stream: %w", err))
		}

		var resp struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(message, &resp); err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("parse stream message: %w", err))
		}

		if resp.Error != "" {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("stream error: %s", resp.Error))
		}

		if resp.IsFinal {
			s.done = true
			return nil, nil
		}

		if resp.Audio == "" {
			continue
		}

		audio, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("decode audio: %w", err))
		}
		return audio, nil
	}
}

func (s *wsStream) Close() error {
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *wsStream) Format() AudioFormat {
	return s.format
}

var _ Provider = (*ElevenLabsWS)(nil)
