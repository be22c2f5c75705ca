package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxhire/voxhire/pkg/audioio"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// harness wires an engine to a mock source, a manual scheduler, and a
// fake clock so detection timing is fully scripted.
type harness struct {
	t     *testing.T
	src   *audioio.MockSource
	sched *ManualScheduler
	clock *fakeClock
	eng   *Engine

	mu         sync.Mutex
	utterances []Utterance
	errs       []error
}

const tickStep = 20 * time.Millisecond

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	audioCfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(audioCfg, nil)

	h := &harness{
		t:     t,
		src:   src,
		sched: NewManualScheduler(),
		clock: newFakeClock(),
	}

	eng, err := NewEngine(cfg, src,
		WithScheduler(h.sched),
		WithClock(h.clock.Now),
		WithEncoder(NewWAVEncoder()),
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	eng.OnUtterance(func(u Utterance) {
		h.mu.Lock()
		h.utterances = append(h.utterances, u)
		h.mu.Unlock()
	})
	eng.OnError(func(err error) {
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
	})

	h.eng = eng
	t.Cleanup(func() { eng.Close() })
	return h
}

// feed advances the clock in tick-sized steps, pushing audio at the
// given normalized level for each step and ticking the analysis loop.
func (h *harness) feed(level float64, duration time.Duration) {
	for elapsed := time.Duration(0); elapsed < duration; elapsed += tickStep {
		h.clock.Advance(tickStep)
		h.src.PushLevel(level, tickStep)
		h.sched.Tick()
	}
}

// feedTime advances the clock and ticks without delivering meaningful
// audio: each step pushes only 1ms of silence, so wall time outpaces
// accumulated samples.
func (h *harness) feedTime(duration time.Duration) {
	for elapsed := time.Duration(0); elapsed < duration; elapsed += tickStep {
		h.clock.Advance(tickStep)
		h.src.PushLevel(0, time.Millisecond)
		h.sched.Tick()
	}
}

func (h *harness) emitted() []Utterance {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Utterance, len(h.utterances))
	copy(out, h.utterances)
	return out
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.errs))
	copy(out, h.errs)
	return out
}

func TestEngine_SilenceNeverEmits(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	// Volume stays below the threshold for the whole session.
	h.feed(0.01, 12*time.Second)

	if n := len(h.emitted()); n != 0 {
		t.Errorf("Expected no utterances for sub-threshold audio, got %d", n)
	}

	// The candidate may simply be thinking; the session stays open.
	if !h.eng.Listening() {
		t.Error("Session should remain open during silence")
	}
}

func TestEngine_ShortSpeechNeverEmits(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	// Speech shorter than the minimum, then plenty of trailing silence.
	h.feed(0.5, 200*time.Millisecond)
	h.feed(0.0, 4*time.Second)

	if n := len(h.emitted()); n != 0 {
		t.Errorf("Expected no utterances for too-short speech, got %d", n)
	}

	if !h.eng.Listening() {
		t.Error("Session should remain open after a discarded trigger")
	}
}

func TestEngine_CanonicalUtterance(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	// 800ms of speech, then silence past the threshold plus debounce.
	h.feed(0.5, 800*time.Millisecond)
	h.feed(0.0, 2500*time.Millisecond)

	utts := h.emitted()
	if len(utts) != 1 {
		t.Fatalf("Expected exactly 1 utterance, got %d", len(utts))
	}

	u := utts[0]
	if u.MIMEType != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", u.MIMEType)
	}
	if u.Size() < DefaultMinUtteranceBytes {
		t.Errorf("Utterance unexpectedly small: %d bytes", u.Size())
	}
	if u.Duration < time.Second {
		t.Errorf("Expected duration over 1s, got %v", u.Duration)
	}
	if u.ID == "" {
		t.Error("Utterance should carry an ID")
	}

	// Device released immediately after finalization.
	if h.eng.Listening() {
		t.Error("Session should be torn down after emit")
	}
	if h.src.Running() {
		t.Error("Device should be released after emit")
	}

	// Further silence produces nothing more.
	h.feed(0.0, 2*time.Second)
	if n := len(h.emitted()); n != 1 {
		t.Errorf("Expected still 1 utterance, got %d", n)
	}
}

func TestEngine_SpeechResetsPendingFinalize(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	// The candidate pauses just long enough to arm the finalize
	// debounce, then resumes speaking before it fires.
	h.feed(0.5, 800*time.Millisecond)
	h.feed(0.0, 1600*time.Millisecond)
	h.feed(0.5, 500*time.Millisecond)

	if n := len(h.emitted()); n != 0 {
		t.Errorf("Resumed speech should cancel finalize, got %d utterances", n)
	}

	// Now let the silence run out for real.
	h.feed(0.0, 2500*time.Millisecond)
	if n := len(h.emitted()); n != 1 {
		t.Errorf("Expected exactly 1 utterance after final silence, got %d", n)
	}
}

func TestEngine_SmallSegmentDiscarded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUtteranceBytes = 10 << 20 // nothing passes
	h := newHarness(t, cfg)

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	h.feed(0.5, 800*time.Millisecond)
	h.feed(0.0, 2500*time.Millisecond)

	if n := len(h.emitted()); n != 0 {
		t.Errorf("Undersized segment should be discarded, got %d utterances", n)
	}
	if n := len(h.errors()); n != 0 {
		t.Errorf("Discard must be silent, got errors: %v", h.errors())
	}

	// The engine resumes listening on its own after a discard.
	if !h.eng.Listening() {
		t.Error("Engine should have resumed listening after discard")
	}
	if h.src.StartCount() != 2 {
		t.Errorf("Expected device reacquired once (2 starts), got %d", h.src.StartCount())
	}
}

func TestEngine_ShortRecordingDiscarded(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	// 800ms of real audio, then the silence window passes in wall time
	// while almost no further samples arrive. The session is old enough
	// to finalize but the accumulated audio is under the minimum.
	h.feed(0.5, 800*time.Millisecond)
	h.feedTime(2500 * time.Millisecond)

	if n := len(h.emitted()); n != 0 {
		t.Errorf("Too-short recording should be discarded, got %d utterances", n)
	}
	if !h.eng.Listening() {
		t.Error("Engine should have resumed listening after discard")
	}
}

func TestEngine_DoubleStartSingleAcquisition(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.eng.StartListening(ctx); err != nil {
				t.Errorf("StartListening failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if h.src.StartCount() != 1 {
		t.Errorf("Expected exactly 1 device acquisition, got %d", h.src.StartCount())
	}

	// A third call with a session open is ignored too.
	if err := h.eng.StartListening(ctx); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	if h.src.StartCount() != 1 {
		t.Errorf("Expected still 1 device acquisition, got %d", h.src.StartCount())
	}
}

func TestEngine_StopWithoutSession(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	// Must be a clean no-op.
	h.eng.StopListening()
	h.eng.StopListening()

	if h.src.StopCount() != 0 {
		t.Errorf("StopListening without a session should not touch the device")
	}
}

func TestEngine_StopMidUtterance(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	h.feed(0.5, 800*time.Millisecond)
	h.eng.StopListening()

	if h.eng.Listening() {
		t.Error("Session should be closed")
	}
	if h.src.Running() {
		t.Error("Device should be released")
	}
	if n := len(h.emitted()); n != 0 {
		t.Errorf("Interrupted session must not emit, got %d utterances", n)
	}

	// Ticks after teardown are no-ops.
	h.clock.Advance(5 * time.Second)
	h.sched.Tick()
	if n := len(h.emitted()); n != 0 {
		t.Errorf("Expected no utterances after stop, got %d", n)
	}
}

func TestEngine_DeviceUnavailable(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil)
	src.StartErr = audioio.ErrDeviceUnavailable

	eng, err := NewEngine(DefaultConfig(), src, WithScheduler(NewManualScheduler()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer eng.Close()

	err = eng.StartListening(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got: %v", err)
	}
	if eng.Listening() {
		t.Error("No session should be open after a failed start")
	}

	// A later start may succeed once the device is back.
	src.StartErr = nil
	if err := eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening after recovery failed: %v", err)
	}
}

func TestEngine_DeviceLossMidSession(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	h.feed(0.5, 400*time.Millisecond)

	// The device goes away underneath the engine.
	h.src.Stop()
	h.clock.Advance(tickStep)
	h.sched.Tick()

	errs := h.errors()
	if len(errs) != 1 {
		t.Fatalf("Expected 1 surfaced error, got %d", len(errs))
	}
	if !errors.Is(errs[0], ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got: %v", errs[0])
	}
	if h.eng.Listening() {
		t.Error("Session should be closed after device loss")
	}
	if n := len(h.emitted()); n != 0 {
		t.Errorf("Device loss must not emit, got %d utterances", n)
	}
}

func TestEngine_SpeakingAndLevel(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	if h.eng.Speaking() {
		t.Error("Speaking should be false before any audio")
	}

	h.feed(0.5, 100*time.Millisecond)
	if !h.eng.Speaking() {
		t.Error("Speaking should be true during speech")
	}
	if lvl := h.eng.Level(); lvl < 0.4 || lvl > 0.6 {
		t.Errorf("Expected level ~0.5, got %f", lvl)
	}

	h.eng.StopListening()
	if h.eng.Speaking() {
		t.Error("Speaking should reset on stop")
	}
	if h.eng.Level() != 0 {
		t.Errorf("Level should reset on stop, got %f", h.eng.Level())
	}
}

func TestEngine_ClosedEngine(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := h.eng.StartListening(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Expected ErrEngineClosed, got: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero threshold", func(c *Config) { c.VolumeThreshold = 0 }, true},
		{"threshold too high", func(c *Config) { c.VolumeThreshold = 1.5 }, true},
		{"zero silence", func(c *Config) { c.SilenceDuration = 0 }, true},
		{"negative debounce", func(c *Config) { c.FinalizeDebounce = -time.Second }, true},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
