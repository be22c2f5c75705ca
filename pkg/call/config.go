package call

import (
	"fmt"
	"time"
)

// Defaults for call orchestration timing.
const (
	// DefaultSettleDelay is the wait between releasing a capture
	// session and acquiring a new one. Starting a second acquisition
	// before the first device release completes can leave the device
	// held by a dead session.
	DefaultSettleDelay = 300 * time.Millisecond

	// DefaultBootstrapRetryDelay is the wait before the single
	// bootstrap retry.
	DefaultBootstrapRetryDelay = 2 * time.Second

	// DefaultMicRetryDelay is the wait before re-enabling the
	// microphone after a failed submission or device error.
	DefaultMicRetryDelay = 1500 * time.Millisecond

	// DefaultPollInterval drives the listening-state reflection from
	// the capture engine's speaking flag.
	DefaultPollInterval = 50 * time.Millisecond
)

// DefaultFallbackPrompt opens the interview when the service cannot.
const DefaultFallbackPrompt = "Thanks for joining. To get started, tell me a bit about yourself and your background."

// Config holds orchestration timing and degraded-mode settings.
type Config struct {
	// SettleDelay is the device release-to-acquire gap when
	// restarting capture.
	SettleDelay time.Duration

	// BootstrapRetryDelay is the wait before retrying a failed
	// interview start. The start is retried once; after that the call
	// proceeds with FallbackPrompt.
	BootstrapRetryDelay time.Duration

	// MicRetryDelay is the wait before re-enabling the microphone
	// after a transient failure.
	MicRetryDelay time.Duration

	// PollInterval is the avatar listening-state refresh rate.
	PollInterval time.Duration

	// FallbackPrompt is the locally generated opening used when the
	// interview service is unreachable at call start.
	FallbackPrompt string
}

// DefaultConfig returns the standard orchestration timing.
func DefaultConfig() Config {
	return Config{
		SettleDelay:         DefaultSettleDelay,
		BootstrapRetryDelay: DefaultBootstrapRetryDelay,
		MicRetryDelay:       DefaultMicRetryDelay,
		PollInterval:        DefaultPollInterval,
		FallbackPrompt:      DefaultFallbackPrompt,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SettleDelay < 0 || c.BootstrapRetryDelay < 0 || c.MicRetryDelay < 0 {
		return fmt.Errorf("call: delays must be non-negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("call: poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.FallbackPrompt == "" {
		return fmt.Errorf("call: fallback_prompt must not be empty")
	}
	return nil
}
