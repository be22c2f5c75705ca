// Package capture owns the microphone lifecycle and decides, from the
// live volume signal alone, where one spoken utterance begins and ends.
// It emits exactly one finalized Utterance per detected utterance and
// discards segments too short or too small to be real speech.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxhire/voxhire/pkg/audioio"
)

// startState guards StartListening so overlapping calls cannot acquire
// the device twice.
type startState int32

const (
	startIdle startState = iota
	startPending
	startActive
)

// captureSession is the live resource bundle for one open microphone
// capture: accumulated samples, detection timestamps, and the pending
// finalize deadline.
type captureSession struct {
	startedAt   time.Time
	speechStart time.Time // zero until first speech
	lastSpeech  time.Time
	speaking    bool
	finalizeAt  time.Time // zero while no finalize is armed
	live        bool

	samples    []int16
	sampleRate int
	channels   int
	encoder    Encoder
}

func (s *captureSession) duration() time.Duration {
	if s.sampleRate == 0 || s.channels == 0 {
		return 0
	}
	seconds := float64(len(s.samples)) / float64(s.sampleRate*s.channels)
	return time.Duration(seconds * float64(time.Second))
}

// Engine is the voice activity capture engine. It runs a tick-driven
// speech/silence state machine over the source's volume signal and
// accumulates raw audio while listening.
//
// At most one capture session is open at a time. All callbacks are
// invoked from the scheduler goroutine, never while the engine's lock
// is held.
type Engine struct {
	cfg    Config
	source audioio.Source
	sched  Scheduler
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   startState
	session *captureSession
	stopReq bool
	closed  bool

	onUtterance func(Utterance)
	onError     func(error)
	encoder     Encoder // nil = select per session

	levelBits atomic.Uint64
	speaking  atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler replaces the default ticker scheduler. Tests pass a
// ManualScheduler here.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces the time source. Tests pair this with a manual
// scheduler to drive detection timing deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEncoder pins the utterance encoder instead of selecting one per
// session.
func WithEncoder(enc Encoder) Option {
	return func(e *Engine) { e.encoder = enc }
}

// NewEngine creates a capture engine reading from source.
func NewEngine(cfg Config, source audioio.Source, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("capture: invalid config: %w", err)
	}
	if source == nil {
		return nil, errors.New("capture: source is required")
	}

	e := &Engine{
		cfg:    cfg,
		source: source,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sched == nil {
		e.sched = NewTickerScheduler(cfg.TickInterval)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "capture")

	return e, nil
}

// OnUtterance sets the callback invoked with each finalized utterance.
// Set before StartListening.
func (e *Engine) OnUtterance(fn func(Utterance)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUtterance = fn
}

// OnError sets the callback for mid-session failures such as device
// loss. Set before StartListening.
func (e *Engine) OnError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// StartListening acquires the input device and opens a fresh capture
// session. A call arriving while a start is already in flight, or while
// a session is open, is ignored and returns nil. Returns an error
// wrapping ErrDeviceUnavailable when the device cannot be acquired.
func (e *Engine) StartListening(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.state != startIdle {
		e.mu.Unlock()
		return nil
	}
	e.state = startPending
	e.stopReq = false
	e.mu.Unlock()

	err := e.source.Start(ctx)

	e.mu.Lock()
	if err != nil {
		e.state = startIdle
		e.mu.Unlock()
		if errors.Is(err, audioio.ErrDeviceUnavailable) {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("capture: start input: %w", err)
	}

	if e.stopReq {
		// StopListening arrived while the device was being acquired.
		e.state = startIdle
		e.stopReq = false
		e.mu.Unlock()
		e.source.Stop()
		return nil
	}

	srcCfg := e.source.Config()
	enc := e.encoder
	if enc == nil {
		enc = selectEncoder(srcCfg.SampleRate, srcCfg.Channels, e.logger)
	}

	e.session = &captureSession{
		startedAt:  e.now(),
		live:       true,
		sampleRate: srcCfg.SampleRate,
		channels:   srcCfg.Channels,
		encoder:    enc,
	}
	e.state = startActive
	e.mu.Unlock()

	e.logger.Debug("Listening started",
		"encoding", enc.Name(),
		"sample_rate", srcCfg.SampleRate)

	e.sched.Start(e.step)
	return nil
}

// StopListening tears down the current session without emitting an
// utterance. Any pending finalize is cancelled. Safe to call at any
// time, including when no session is open or while a start is in
// flight; always idempotent.
func (e *Engine) StopListening() {
	e.mu.Lock()
	if e.state == startPending {
		e.stopReq = true
		e.mu.Unlock()
		return
	}
	if e.session == nil {
		e.mu.Unlock()
		return
	}
	e.session.live = false
	e.session = nil
	e.state = startIdle
	e.mu.Unlock()

	e.sched.Stop()
	e.source.Stop()
	e.speaking.Store(false)
	e.setLevel(0)

	e.logger.Debug("Listening stopped")
}

// Close stops any open session and marks the engine unusable.
func (e *Engine) Close() error {
	e.StopListening()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Listening reports whether a capture session is open.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Speaking reports whether the current session has detected speech.
// This is the presentation signal behind the avatar's listening state.
func (e *Engine) Speaking() bool {
	return e.speaking.Load()
}

// Level returns the most recent normalized volume (0.0-1.0).
func (e *Engine) Level() float64 {
	return math.Float64frombits(e.levelBits.Load())
}

func (e *Engine) setLevel(v float64) {
	e.levelBits.Store(math.Float64bits(v))
}

// step runs one analysis tick: drain newly captured chunks into the
// accumulator, update the volume signal, and advance the speech/silence
// state machine.
func (e *Engine) step() {
	e.mu.Lock()

	s := e.session
	if s == nil || !s.live {
		e.mu.Unlock()
		return
	}

	volume, streamClosed := e.drainLocked(s)
	now := e.now()

	if streamClosed {
		// Device lost mid-session. Stop cleanly without emitting.
		s.live = false
		e.session = nil
		e.state = startIdle
		onError := e.onError
		e.mu.Unlock()

		e.sched.Stop()
		e.source.Stop()
		e.speaking.Store(false)
		e.setLevel(0)

		e.logger.Warn("Input stream closed mid-session")
		if onError != nil {
			onError(fmt.Errorf("%w: input stream closed", ErrDeviceUnavailable))
		}
		return
	}

	e.setLevel(volume)

	if volume > e.cfg.VolumeThreshold {
		if !s.speaking {
			s.speaking = true
			s.speechStart = now
			e.speaking.Store(true)
		}
		s.lastSpeech = now
		s.finalizeAt = time.Time{} // cancel pending finalize
	} else if s.speaking {
		silence := now.Sub(s.lastSpeech)
		speechDur := s.lastSpeech.Sub(s.speechStart)
		sessionDur := now.Sub(s.startedAt)

		if silence > e.cfg.SilenceDuration &&
			speechDur > e.cfg.MinSpeechDuration &&
			sessionDur > e.cfg.MinRecordingTime &&
			s.finalizeAt.IsZero() {
			s.finalizeAt = now.Add(e.cfg.FinalizeDebounce)
		}
	}

	if !s.finalizeAt.IsZero() && !now.Before(s.finalizeAt) {
		e.finalizeLocked(s, now)
		return // finalizeLocked releases the lock
	}

	e.mu.Unlock()
}

// drainLocked moves everything the source has captured since the last
// tick into the session accumulator, in arrival order. Returns the mean
// normalized volume of the drained audio (or the previous level when
// nothing arrived) and whether the stream has closed.
func (e *Engine) drainLocked(s *captureSession) (volume float64, streamClosed bool) {
	volume = e.Level()

	var sum float64
	var drained int

	for {
		select {
		case chunk, ok := <-e.source.Stream():
			if !ok {
				return volume, true
			}
			s.samples = append(s.samples, chunk.Samples...)
			sum += chunk.Level()
			drained++
		default:
			if drained > 0 {
				volume = sum / float64(drained)
			}
			return volume, false
		}
	}
}

// finalizeLocked cuts the current segment: stops the recorder, releases
// the device, encodes the accumulated audio, and either emits one
// Utterance or silently resumes listening when the segment is too short
// or too small to be real speech. Called with the lock held; releases
// it.
func (e *Engine) finalizeLocked(s *captureSession, now time.Time) {
	s.live = false
	e.session = nil
	e.state = startIdle
	onUtterance := e.onUtterance
	onError := e.onError
	e.mu.Unlock()

	e.sched.Stop()
	e.source.Stop()
	e.speaking.Store(false)
	e.setLevel(0)

	duration := s.duration()

	if duration < e.cfg.MinRecordingTime {
		e.logger.Debug("Segment too short, resuming",
			"duration", duration)
		e.resumeListening()
		return
	}

	data, err := s.encoder.Encode(s.samples, s.sampleRate, s.channels)
	if err != nil {
		e.logger.Error("Segment encode failed", "error", err)
		if onError != nil {
			onError(fmt.Errorf("capture: encode segment: %w", err))
		}
		e.resumeListening()
		return
	}

	if len(data) < e.cfg.MinUtteranceBytes {
		e.logger.Debug("Segment too small, resuming",
			"bytes", len(data),
			"min_bytes", e.cfg.MinUtteranceBytes)
		e.resumeListening()
		return
	}

	utt := newUtterance(data, s.encoder.MIMEType(), duration, now)

	e.logger.Info("Utterance finalized",
		"id", utt.ID,
		"bytes", len(data),
		"duration", duration,
		"encoding", s.encoder.Name())

	if onUtterance != nil {
		onUtterance(utt)
	}
}

// resumeListening reopens a fresh session after a discarded segment so
// the candidate is not left unheard.
func (e *Engine) resumeListening() {
	if err := e.StartListening(context.Background()); err != nil {
		e.logger.Warn("Resume after discard failed", "error", err)

		e.mu.Lock()
		onError := e.onError
		e.mu.Unlock()
		if onError != nil {
			onError(err)
		}
	}
}
