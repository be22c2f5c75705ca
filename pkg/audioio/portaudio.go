package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// initMu guards the PortAudio library init/terminate refcount.
var (
	initMu sync.Mutex
	inits  int
)

func acquirePortAudio() error {
	initMu.Lock()
	defer initMu.Unlock()
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	inits++
	return nil
}

func releasePortAudio() {
	initMu.Lock()
	defer initMu.Unlock()
	if inits > 0 {
		portaudio.Terminate()
		inits--
	}
}

// PortAudioSource captures audio from the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	buffer   []int16
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	doneCh   chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newPortAudioSource creates a PortAudio-backed audio source.
// The device is not acquired until Start.
func newPortAudioSource(cfg Config, logger *slog.Logger) (*PortAudioSource, error) {
	return &PortAudioSource{
		cfg:    cfg,
		logger: logger,
		buffer: make([]int16, cfg.BufferSize()*cfg.Channels),
	}, nil
}

// Start acquires the input device and begins capture.
func (p *PortAudioSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	if err := acquirePortAudio(); err != nil {
		return err
	}

	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels, 0,
		float64(p.cfg.SampleRate),
		p.cfg.BufferSize(),
		p.buffer,
	)
	if err != nil {
		releasePortAudio()
		return fmt.Errorf("%w: open input stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		return fmt.Errorf("%w: start input stream: %v", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.running = true
	p.streamCh = make(chan AudioChunk, 16)
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.captureLoop(ctx, stream)

	p.logger.Info("portaudio source started",
		"sample_rate", p.cfg.SampleRate,
		"buffer_size", p.cfg.BufferSize(),
	)

	return nil
}

// captureLoop reads buffers from the device until stopped.
func (p *PortAudioSource) captureLoop(ctx context.Context, stream *portaudio.Stream) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			go p.Stop()
			return
		case <-p.stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			// Input overflowed is recoverable; anything else ends capture.
			if err == portaudio.InputOverflowed {
				p.overruns.Add(1)
				continue
			}

			select {
			case <-p.stopCh:
				// Stop closed the stream under us; not a device fault.
			default:
				p.logger.Error("portaudio read failed", "error", err)
				go p.Stop()
			}
			return
		}

		samples := make([]int16, len(p.buffer))
		copy(samples, p.buffer)

		chunk := AudioChunk{
			Samples:    samples,
			SampleRate: p.cfg.SampleRate,
			Channels:   p.cfg.Channels,
		}

		select {
		case p.streamCh <- chunk:
			p.chunksRead.Add(1)
			p.samplesRead.Add(int64(len(samples)))
		case <-p.stopCh:
			return
		default:
			// Consumer is behind; drop the chunk rather than block the device.
			p.overruns.Add(1)
		}
	}
}

// Stop halts capture and releases the input device.
func (p *PortAudioSource) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	stream := p.stream
	p.stream = nil
	done := p.doneCh
	ch := p.streamCh
	p.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
		releasePortAudio()
	}
	if done != nil {
		<-done
	}
	close(ch)

	p.logger.Info("portaudio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (p *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	p.mu.Lock()
	ch := p.streamCh
	p.mu.Unlock()

	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (p *PortAudioSource) Stream() <-chan AudioChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCh
}

// Config returns the audio configuration.
func (p *PortAudioSource) Config() Config {
	return p.cfg
}

// Name returns "portaudio".
func (p *PortAudioSource) Name() string {
	return "portaudio"
}

// Close releases resources.
func (p *PortAudioSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.Stop()
}

// Stats returns source statistics.
func (p *PortAudioSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

// Ensure PortAudioSource implements SourceWithStats.
var _ SourceWithStats = (*PortAudioSource)(nil)

// PortAudioSink plays audio to the default output device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

// newPortAudioSink creates a PortAudio-backed audio sink.
// The device is not acquired until Start.
func newPortAudioSink(cfg Config, logger *slog.Logger) (*PortAudioSink, error) {
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger,
		buffer: make([]int16, cfg.BufferSize()*cfg.Channels),
	}, nil
}

// Start acquires the output device.
func (p *PortAudioSink) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	if err := acquirePortAudio(); err != nil {
		return err
	}

	stream, err := portaudio.OpenDefaultStream(
		0, p.cfg.Channels,
		float64(p.cfg.SampleRate),
		p.cfg.BufferSize(),
		p.buffer,
	)
	if err != nil {
		releasePortAudio()
		return fmt.Errorf("%w: open output stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		return fmt.Errorf("%w: start output stream: %v", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.running = true

	p.logger.Info("portaudio sink started", "sample_rate", p.cfg.SampleRate)
	return nil
}

// Stop halts playback and releases the output device.
func (p *PortAudioSink) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
		p.stream = nil
		releasePortAudio()
	}

	p.logger.Info("portaudio sink stopped")
	return nil
}

// Write sends an audio chunk to the output device. Chunks are written
// buffer-by-buffer; the final partial buffer is zero-padded.
func (p *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.stream == nil {
		return io.ErrClosedPipe
	}

	samples := chunk.Samples
	if chunk.SampleRate != p.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, p.cfg.SampleRate)
	}

	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(p.buffer, samples)
		for i := n; i < len(p.buffer); i++ {
			p.buffer[i] = 0
		}
		samples = samples[n:]

		if err := p.stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				p.underruns.Add(1)
				continue
			}
			return fmt.Errorf("portaudio write: %w", err)
		}
	}

	p.chunksWritten.Add(1)
	p.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush is a no-op for PortAudio: Write blocks until the device has
// consumed each buffer.
func (p *PortAudioSink) Flush(ctx context.Context) error {
	return nil
}

// Clear discards buffered audio by restarting the stream.
func (p *PortAudioSink) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	if err := p.stream.Abort(); err != nil {
		return fmt.Errorf("portaudio abort: %w", err)
	}
	return p.stream.Start()
}

// Config returns the audio configuration.
func (p *PortAudioSink) Config() Config {
	return p.cfg
}

// Name returns "portaudio".
func (p *PortAudioSink) Name() string {
	return "portaudio"
}

// Close releases resources.
func (p *PortAudioSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.Stop()
}

// Stats returns sink statistics.
func (p *PortAudioSink) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SinkStats{
		ChunksWritten:  p.chunksWritten.Load(),
		SamplesWritten: p.samplesWritten.Load(),
		Underruns:      p.underruns.Load(),
		Running:        running,
		Backend:        "portaudio",
	}
}

// Ensure PortAudioSink implements SinkWithStats.
var _ SinkWithStats = (*PortAudioSink)(nil)
