// Package playback plays interviewer prompt audio through an output
// device. The Player follows a media-element contract: set a source,
// Play, Pause, Stop, with ended and error callbacks. A lipsync tap
// observes every chunk on its way to the device.
package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/voxhire/voxhire/internal/httpc"
	"github.com/voxhire/voxhire/pkg/audioio"
	"github.com/voxhire/voxhire/pkg/lipsync"
)

// chunkDuration is the write granularity. Small chunks keep the
// lipsync level responsive.
const chunkDuration = 20 * time.Millisecond

// Player plays one audio source at a time to an audioio.Sink.
type Player struct {
	sink   audioio.Sink
	http   *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	audio   *pcmAudio
	playing bool
	paused  bool
	cancel  context.CancelFunc
	gen     int
	tap     lipsync.Tap
	onEnded func()
	onError func(err error)
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerLogger sets the logger.
func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = logger.With("component", "playback") }
}

// WithHTTPClient replaces the client used for SetSourceURL downloads.
func WithHTTPClient(hc *http.Client) PlayerOption {
	return func(p *Player) { p.http = hc }
}

// NewPlayer creates a player writing to the given sink. The player
// does not own the sink; closing it is the caller's job.
func NewPlayer(sink audioio.Sink, opts ...PlayerOption) *Player {
	p := &Player{
		sink:   sink,
		http:   httpc.Client,
		logger: slog.Default().With("component", "playback"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnEnded sets the callback invoked when playback runs to completion.
// It is not invoked for stopped or canceled playback.
func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// OnError sets the callback for decode and device errors.
func (p *Player) OnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// SetTap installs a lipsync tap observing every chunk written to the
// sink. A nil fn removes the tap.
func (p *Player) SetTap(fn lipsync.Tap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tap = fn
}

// SetSource decodes an audio buffer and makes it the current source.
// Any playback in progress is stopped first.
func (p *Player) SetSource(data []byte, mimeType string) error {
	audio, err := decode(data, mimeType)
	if err != nil {
		return err
	}

	p.Stop()

	p.mu.Lock()
	p.audio = audio
	p.mu.Unlock()
	return nil
}

// SetSourceURL downloads an audio file and makes it the current
// source. The format comes from the response Content-Type, falling
// back to the URL extension.
func (p *Player) SetSourceURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("playback: fetch source: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("playback: fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch source: HTTP %d", ErrPlaybackFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("playback: fetch source: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeFromURL(url)
	}

	p.logger.Debug("source downloaded", "url", url, "bytes", len(data), "mime", mimeType)
	return p.SetSource(data, mimeType)
}

// Play starts playing the current source. It returns once playback
// has begun; completion is signaled through OnEnded.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return ErrNoSource
	}
	if p.playing {
		p.mu.Unlock()
		return ErrAlreadyPlaying
	}

	playCtx, cancel := context.WithCancel(ctx)
	p.playing = true
	p.paused = false
	p.cancel = cancel
	p.gen++
	gen := p.gen
	audio := p.audio
	p.mu.Unlock()

	if err := p.sink.Start(playCtx); err != nil {
		p.finish(gen, false)
		cancel()
		return fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
	}

	go p.run(playCtx, gen, audio)
	return nil
}

// Pause suspends playback without losing position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.paused = true
	}
}

// Resume continues a paused playback.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Stop cancels playback and discards buffered audio. The ended
// callback is not invoked. Safe to call when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.playing = false
	p.paused = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.sink.Clear()
}

// Playing reports whether a playback is in progress.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// run writes the source to the sink chunk by chunk, feeding the tap.
func (p *Player) run(ctx context.Context, gen int, audio *pcmAudio) {
	sinkCfg := p.sink.Config()
	samples, rate, channels := conform(audio, sinkCfg)

	chunkSamples := int(float64(rate*channels) * chunkDuration.Seconds())
	if chunkSamples == 0 {
		chunkSamples = len(samples)
	}

	for offset := 0; offset < len(samples); offset += chunkSamples {
		if err := p.waitResume(ctx); err != nil {
			return
		}

		end := offset + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunk := audioio.AudioChunk{
			Samples:    samples[offset:end],
			SampleRate: rate,
			Channels:   channels,
		}

		p.mu.Lock()
		tap := p.tap
		p.mu.Unlock()
		if tap != nil {
			tap(chunk.Samples, rate)
		}

		if err := p.sink.Write(ctx, chunk); err != nil {
			if ctx.Err() == nil {
				p.fail(gen, fmt.Errorf("%w: %v", ErrPlaybackFailed, err))
			}
			return
		}
	}

	if err := p.sink.Flush(ctx); err != nil && ctx.Err() == nil {
		p.fail(gen, fmt.Errorf("%w: %v", ErrPlaybackFailed, err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	p.finish(gen, true)
}

// waitResume blocks while paused. Returns the context error on cancel.
func (p *Player) waitResume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.mu.Lock()
		paused := p.paused
		p.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// finish clears playing state for the given generation and fires the
// ended callback if the playback ran to completion.
func (p *Player) finish(gen int, ended bool) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.cancel = nil
	onEnded := p.onEnded
	p.mu.Unlock()

	if ended && onEnded != nil {
		onEnded()
	}
}

func (p *Player) fail(gen int, err error) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.cancel = nil
	onError := p.onError
	p.mu.Unlock()

	p.logger.Error("playback failed", "error", err)
	if onError != nil {
		onError(err)
	}
}

// conform converts decoded audio to the sink's sample rate and channel
// count.
func conform(audio *pcmAudio, cfg audioio.Config) ([]int16, int, int) {
	samples := audio.samples
	channels := audio.channels

	if channels == 2 && cfg.Channels == 1 {
		samples = audioio.StereoToMono(samples)
		channels = 1
	} else if channels == 1 && cfg.Channels == 2 {
		samples = audioio.MonoToStereo(samples)
		channels = 2
	}

	rate := audio.sampleRate
	if cfg.SampleRate > 0 && rate != cfg.SampleRate {
		if channels == 2 {
			left := make([]int16, 0, len(samples)/2)
			right := make([]int16, 0, len(samples)/2)
			for i := 0; i+1 < len(samples); i += 2 {
				left = append(left, samples[i])
				right = append(right, samples[i+1])
			}
			left = audioio.Resample(left, rate, cfg.SampleRate)
			right = audioio.Resample(right, rate, cfg.SampleRate)
			samples = make([]int16, 0, len(left)*2)
			for i := range left {
				samples = append(samples, left[i], right[i])
			}
		} else {
			samples = audioio.Resample(samples, rate, cfg.SampleRate)
		}
		rate = cfg.SampleRate
	}

	return samples, rate, channels
}

func mimeFromURL(url string) string {
	switch {
	case strings.HasSuffix(url, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(url, ".wav"):
		return "audio/wav"
	}
	return "audio/mpeg"
}
