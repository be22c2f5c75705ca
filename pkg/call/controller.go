// Package call sequences one interview call end to end: bootstrap,
// prompt playback, microphone turns, utterance submission, and
// completion. The Controller owns the call state machine; capture,
// playback and the interview service are collaborators behind
// interfaces.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxhire/voxhire/pkg/capture"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/lipsync"
	"github.com/voxhire/voxhire/pkg/playback"
	"github.com/voxhire/voxhire/pkg/tts"
)

// Capturer is the microphone side of the call. *capture.Engine
// implements it.
type Capturer interface {
	StartListening(ctx context.Context) error
	StopListening()
	OnUtterance(fn func(utt capture.Utterance))
	OnError(fn func(err error))
	Listening() bool
	Speaking() bool
	Level() float64
}

// Player is the prompt playback side of the call. *playback.Player
// implements it.
type Player interface {
	SetSource(data []byte, mimeType string) error
	SetSourceURL(ctx context.Context, url string) error
	Play(ctx context.Context) error
	Stop()
	OnEnded(fn func())
	OnError(fn func(err error))
	SetTap(fn lipsync.Tap)
}

// Controller runs one interview call. Create one per call; it is not
// reusable after End.
type Controller struct {
	cfg      Config
	service  interview.Service
	capturer Capturer
	player   Player
	analyser *lipsync.Analyser
	synth    tts.Provider
	logger   *slog.Logger
	metrics  *MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       CallState
	avatar      AvatarState
	interviewID string
	prompt      string
	stage       string
	turn        int
	mic         micState
	submit      submitState
	acked       bool
	timers      []*time.Timer

	onStateChange func(state CallState, avatar AvatarState)
	onTranscript  func(text string)
	onPrompt      func(turn int, text string)
	onError       func(err error)
	onComplete    func(summary *interview.Summary)
}

// Option configures a Controller.
type Option func(*Controller)

// WithSynthesizer sets the local speech synthesis fallback used when a
// prompt has no server audio. The controller closes it at call end.
func WithSynthesizer(p tts.Provider) Option {
	return func(c *Controller) { c.synth = p }
}

// WithAnalyser sets the lipsync analyser attached to prompt playback.
func WithAnalyser(a *lipsync.Analyser) Option {
	return func(c *Controller) { c.analyser = a }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger.With("component", "call") }
}

// NewController creates a call controller in the waiting state.
func NewController(service interview.Service, capturer Capturer, player Player, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		service:  service,
		capturer: capturer,
		player:   player,
		logger:   slog.Default().With("component", "call"),
		metrics:  NewMetricsCollector(),
		state:    StateWaiting,
		avatar:   AvatarIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	capturer.OnUtterance(c.handleUtterance)
	capturer.OnError(c.handleCaptureError)
	player.OnEnded(c.handlePlaybackEnded)
	player.OnError(c.handlePlaybackError)

	if c.analyser != nil {
		c.analyser.Attach(player)
	}
	return c, nil
}

// OnStateChange sets the callback for call and avatar transitions.
func (c *Controller) OnStateChange(fn func(state CallState, avatar AvatarState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnTranscript sets the callback for the candidate's transcribed
// answers.
func (c *Controller) OnTranscript(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnPrompt sets the callback for each new interviewer prompt.
func (c *Controller) OnPrompt(fn func(turn int, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPrompt = fn
}

// OnError sets the callback for surfaced non-fatal errors.
func (c *Controller) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnComplete sets the callback for the final interview summary.
func (c *Controller) OnComplete(fn func(summary *interview.Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// Start bootstraps the interview and begins the first prompt. It
// returns once the call is active; playback and turn-taking proceed
// through callbacks. A service failure is retried once, then the call
// continues in degraded mode with the fallback prompt.
func (c *Controller) Start(ctx context.Context, req interview.StartRequest) error {
	c.mu.Lock()
	if c.state != StateWaiting {
		c.mu.Unlock()
		if c.state == StateEnded {
			return ErrCallEnded
		}
		return ErrNotWaiting
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setStateLocked(StateConnecting, AvatarIdle)
	c.mu.Unlock()

	session, err := c.service.Start(c.ctx, req)
	if err != nil {
		c.logger.Warn("bootstrap failed, retrying once", "error", err)
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-time.After(c.cfg.BootstrapRetryDelay):
		}
		session, err = c.service.Start(c.ctx, req)
	}

	var prompt, audioURL string
	if err != nil {
		c.logger.Error("bootstrap failed, continuing with fallback prompt", "error", err)
		c.surfaceError(fmt.Errorf("%w: %v", ErrBootstrapFailed, err))
		prompt = c.cfg.FallbackPrompt
	} else {
		prompt = session.Question
		audioURL = session.AudioURL
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return ErrCallEnded
	}
	if session != nil {
		c.interviewID = session.InterviewID
		c.stage = session.CurrentStage
	}
	c.prompt = prompt
	c.turn = 1
	c.setStateLocked(StateActive, AvatarIdle)
	c.mu.Unlock()

	c.notifyPrompt(1, prompt)
	go c.reflectListening()
	c.playPrompt(prompt, audioURL)
	return nil
}

// End terminates the call, releasing every resource and sending the
// completion acknowledgement if a session exists. Idempotent.
func (c *Controller) End() {
	c.end()
}

// State returns the current call state.
func (c *Controller) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Avatar returns the current avatar state.
func (c *Controller) Avatar() AvatarState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avatar
}

// Turn returns the current turn number.
func (c *Controller) Turn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// InterviewID returns the service session identifier, if any.
func (c *Controller) InterviewID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interviewID
}

// Stage returns the interview stage the service last reported, e.g.
// warmup or technical. Empty in degraded mode.
func (c *Controller) Stage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Prompt returns the current interviewer prompt text.
func (c *Controller) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// MicLevel returns the live microphone volume signal.
func (c *Controller) MicLevel() float64 {
	return c.capturer.Level()
}

// PlaybackLevel returns the current prompt loudness for lip sync.
func (c *Controller) PlaybackLevel() float64 {
	if c.analyser == nil {
		return 0
	}
	return c.analyser.Level()
}

// Metrics returns the per-turn latency collector.
func (c *Controller) Metrics() *MetricsCollector {
	return c.metrics
}

// playPrompt plays one interviewer prompt: server audio when a URL is
// given, local synthesis otherwise. The microphone stays muted for the
// whole phase.
func (c *Controller) playPrompt(text, audioURL string) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.mic = micIdle
	c.setStateLocked(StateActive, AvatarSpeaking)
	c.mu.Unlock()

	c.capturer.StopListening()
	if c.analyser != nil {
		c.analyser.StartMonitoring()
	}

	go func() {
		if audioURL != "" {
			resolved := c.service.ResolveAudioURL(audioURL)
			err := c.player.SetSourceURL(c.ctx, resolved)
			if err == nil {
				err = c.player.Play(c.ctx)
			}
			if err == nil {
				c.metrics.MarkPlayback()
				return
			}
			c.logger.Warn("prompt audio failed, falling back to synthesis", "url", resolved, "error", err)
		}

		if err := c.synthesizePrompt(text); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("no audio for prompt, skipping playback", "error", err)
			c.surfaceError(err)
			c.handlePlaybackEnded()
		}
	}()
}

// synthesizePrompt plays text through the local synthesis fallback.
func (c *Controller) synthesizePrompt(text string) error {
	if c.synth == nil {
		return fmt.Errorf("%w: no synthesis fallback configured", playback.ErrPlaybackFailed)
	}

	result, err := c.synth.Synthesize(c.ctx, text)
	if err != nil {
		return fmt.Errorf("%w: synthesis: %v", playback.ErrPlaybackFailed, err)
	}

	mimeType := result.Format.Encoding.MIMEType()
	if mimeType == "audio/pcm" {
		mimeType = fmt.Sprintf("audio/pcm; rate=%d", result.Format.Encoding.SampleRate())
	}
	if err := c.player.SetSource(result.Audio, mimeType); err != nil {
		return err
	}
	if err := c.player.Play(c.ctx); err != nil {
		return err
	}
	c.metrics.MarkPlayback()
	return nil
}

// handlePlaybackEnded runs when a prompt finishes playing: the
// interviewer yields the floor and the microphone comes up.
func (c *Controller) handlePlaybackEnded() {
	if c.analyser != nil {
		c.analyser.StopMonitoring()
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateActive, AvatarIdle)
	c.mu.Unlock()

	c.enableMic()
}

// handlePlaybackError surfaces a playback failure and moves on to the
// candidate's turn; a silent prompt is better than a stalled call.
func (c *Controller) handlePlaybackError(err error) {
	c.surfaceError(fmt.Errorf("%w: %v", playback.ErrPlaybackFailed, err))
	c.handlePlaybackEnded()
}

// enableMic opens the microphone for the candidate's turn. Guarded so
// overlapping attempts cannot acquire the device twice. If a capture
// session is still open it is released first, with a settle delay
// before the new acquisition.
func (c *Controller) enableMic() {
	c.mu.Lock()
	if c.state != StateActive || c.mic != micIdle || c.avatar == AvatarSpeaking || c.avatar == AvatarProcessing {
		c.mu.Unlock()
		return
	}
	c.mic = micStarting
	c.mu.Unlock()

	go func() {
		if c.capturer.Listening() {
			c.capturer.StopListening()
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.cfg.SettleDelay):
			}
		}

		err := c.capturer.StartListening(c.ctx)

		c.mu.Lock()
		if c.state != StateActive {
			c.mic = micIdle
			c.mu.Unlock()
			c.capturer.StopListening()
			return
		}
		if err != nil {
			c.mic = micIdle
			c.mu.Unlock()
			c.surfaceError(err)
			c.retryMicAfter(c.cfg.MicRetryDelay)
			return
		}
		c.mic = micStarted
		c.mu.Unlock()

		c.logger.Debug("microphone enabled")
	}()
}

// retryMicAfter schedules another microphone enable attempt. Retries
// continue indefinitely while the call is active; the candidate
// decides when to give up.
func (c *Controller) retryMicAfter(d time.Duration) {
	c.afterFunc(d, c.enableMic)
}

// handleUtterance routes one finalized utterance to the service.
// Duplicate deliveries during an in-flight submission are dropped.
func (c *Controller) handleUtterance(utt capture.Utterance) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if c.submit == submitInFlight {
		c.mu.Unlock()
		c.logger.Warn("utterance dropped, submission already in flight", "bytes", utt.Size())
		return
	}
	if c.interviewID == "" {
		// Degraded mode has no session to submit to.
		c.mu.Unlock()
		c.logger.Warn("utterance dropped, no interview session", "bytes", utt.Size())
		c.retryMicAfter(c.cfg.MicRetryDelay)
		return
	}
	c.submit = submitInFlight
	c.mic = micIdle // finalization released the device
	turn := c.turn
	id := c.interviewID
	c.setStateLocked(StateActive, AvatarProcessing)
	c.mu.Unlock()

	c.capturer.StopListening()
	c.metrics.MarkCaptureEnd(turn, utt.Size())
	c.metrics.MarkSubmit()

	go func() {
		result, err := c.service.SubmitUtterance(c.ctx, id, utt.Data, utt.MIMEType)

		c.mu.Lock()
		c.submit = submitIdle
		if c.state != StateActive {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.setStateLocked(StateActive, AvatarIdle)
			c.mu.Unlock()
			c.surfaceError(fmt.Errorf("%w: %v", ErrSubmissionFailed, err))
			c.retryMicAfter(c.cfg.MicRetryDelay)
			return
		}
		c.mu.Unlock()

		c.metrics.MarkResponse()
		c.notifyTranscript(result.Transcript)

		if result.IsComplete {
			c.logger.Info("interview complete", "turns", turn)
			c.end()
			return
		}

		c.mu.Lock()
		c.turn++
		c.prompt = result.NextQuestion
		c.stage = result.CurrentStage
		nextTurn := c.turn
		c.mu.Unlock()

		c.notifyPrompt(nextTurn, result.NextQuestion)
		c.playPrompt(result.NextQuestion, result.AudioURL)
	}()
}

// handleCaptureError surfaces device errors and schedules a mic
// retry. Device loss never ends the call on its own.
func (c *Controller) handleCaptureError(err error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.mic = micIdle
	c.mu.Unlock()

	c.surfaceError(err)
	c.retryMicAfter(c.cfg.MicRetryDelay)
}

// reflectListening mirrors the capture engine's speaking flag into the
// avatar while the microphone is open.
func (c *Controller) reflectListening() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.state != StateActive || c.avatar == AvatarSpeaking || c.avatar == AvatarProcessing {
			c.mu.Unlock()
			continue
		}
		speaking := c.mic == micStarted && c.capturer.Speaking()
		switch {
		case speaking && c.avatar != AvatarListening:
			c.setStateLocked(StateActive, AvatarListening)
		case !speaking && c.avatar == AvatarListening:
			c.setStateLocked(StateActive, AvatarIdle)
		}
		c.mu.Unlock()
	}
}

// end transitions to the terminal state, releases resources, and
// sends the completion acknowledgement exactly once.
func (c *Controller) end() {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateEnded, AvatarIdle)
	id := c.interviewID
	ack := !c.acked && id != ""
	c.acked = true
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}

	c.capturer.StopListening()
	c.player.Stop()
	if c.analyser != nil {
		c.analyser.StopMonitoring()
		c.analyser.Release()
	}
	if c.synth != nil {
		c.synth.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}

	if ack {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		summary, err := c.service.Complete(ctx, id)
		if err != nil {
			c.logger.Error("completion acknowledgement failed", "error", err)
			return
		}
		c.notifyComplete(summary)
	}
}

// afterFunc schedules fn, tracking the timer so End can cancel it.
// fn only runs while the call is active.
func (c *Controller) afterFunc(d time.Duration, fn func()) {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	timer := time.AfterFunc(d, func() {
		if c.State() != StateActive {
			return
		}
		fn()
	})
	c.timers = append(c.timers, timer)
	c.mu.Unlock()
}

// setStateLocked records a transition and schedules its announcement.
// Callers hold c.mu.
func (c *Controller) setStateLocked(state CallState, avatar AvatarState) {
	if c.state == state && c.avatar == avatar {
		return
	}
	c.state = state
	c.avatar = avatar
	fn := c.onStateChange
	if fn == nil {
		return
	}
	go fn(state, avatar)
}

func (c *Controller) surfaceError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Controller) notifyTranscript(text string) {
	c.mu.Lock()
	fn := c.onTranscript
	c.mu.Unlock()
	if fn != nil && text != "" {
		fn(text)
	}
}

func (c *Controller) notifyPrompt(turn int, text string) {
	c.mu.Lock()
	fn := c.onPrompt
	c.mu.Unlock()
	if fn != nil {
		fn(turn, text)
	}
}

func (c *Controller) notifyComplete(summary *interview.Summary) {
	c.mu.Lock()
	fn := c.onComplete
	c.mu.Unlock()
	if fn != nil {
		fn(summary)
	}
}

var _ Capturer = (*capture.Engine)(nil)
var _ Player = (*playback.Player)(nil)
