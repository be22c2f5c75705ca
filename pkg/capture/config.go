package capture

import (
	"fmt"
	"time"
)

const (
	// DefaultVolumeThreshold is the normalized volume above which a tick
	// counts as speech.
	DefaultVolumeThreshold = 0.02

	// DefaultSilenceDuration is how long the signal must stay below the
	// threshold after speech before finalization is considered.
	DefaultSilenceDuration = 1500 * time.Millisecond

	// DefaultMinSpeechDuration is the minimum span between first and last
	// detected speech for a session to finalize.
	DefaultMinSpeechDuration = 300 * time.Millisecond

	// DefaultMinRecordingTime is the minimum age of a session before it
	// may finalize; shorter sessions are treated as noise.
	DefaultMinRecordingTime = 1000 * time.Millisecond

	// DefaultFinalizeDebounce is the extra delay after the silence
	// condition is met before the segment is actually cut. Absorbs brief
	// pauses that would otherwise split an utterance.
	DefaultFinalizeDebounce = 500 * time.Millisecond

	// DefaultMinUtteranceBytes is the smallest encoded segment worth
	// emitting; anything smaller is discarded as a false trigger.
	DefaultMinUtteranceBytes = 5 * 1024

	// DefaultTickInterval approximates a display-refresh-rate analysis
	// loop.
	DefaultTickInterval = 16 * time.Millisecond
)

// Config holds the voice activity detection parameters. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// VolumeThreshold is the normalized mean volume (0.0-1.0) above which
	// the engine considers the candidate to be speaking.
	VolumeThreshold float64

	// SilenceDuration is the trailing silence required after speech
	// before the utterance is considered finished.
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum accumulated speech span required
	// to finalize.
	MinSpeechDuration time.Duration

	// MinRecordingTime is the minimum total session duration required to
	// finalize, and the duration below which finalized segments are
	// discarded.
	MinRecordingTime time.Duration

	// FinalizeDebounce is the one-shot delay between the silence
	// condition being met and the segment being cut.
	FinalizeDebounce time.Duration

	// MinUtteranceBytes is the minimum encoded size for an utterance to
	// be emitted.
	MinUtteranceBytes int

	// TickInterval is the analysis loop period for the default ticker
	// scheduler.
	TickInterval time.Duration
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		VolumeThreshold:   DefaultVolumeThreshold,
		SilenceDuration:   DefaultSilenceDuration,
		MinSpeechDuration: DefaultMinSpeechDuration,
		MinRecordingTime:  DefaultMinRecordingTime,
		FinalizeDebounce:  DefaultFinalizeDebounce,
		MinUtteranceBytes: DefaultMinUtteranceBytes,
		TickInterval:      DefaultTickInterval,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.VolumeThreshold <= 0 || c.VolumeThreshold >= 1 {
		return fmt.Errorf("volume threshold must be in (0, 1), got %f", c.VolumeThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", c.SilenceDuration)
	}
	if c.MinSpeechDuration <= 0 {
		return fmt.Errorf("min speech duration must be positive, got %v", c.MinSpeechDuration)
	}
	if c.MinRecordingTime <= 0 {
		return fmt.Errorf("min recording time must be positive, got %v", c.MinRecordingTime)
	}
	if c.FinalizeDebounce < 0 {
		return fmt.Errorf("finalize debounce must not be negative, got %v", c.FinalizeDebounce)
	}
	if c.MinUtteranceBytes < 0 {
		return fmt.Errorf("min utterance bytes must not be negative, got %d", c.MinUtteranceBytes)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	return nil
}
