// Package config provides configuration helpers for voxhire commands.
// Values come from environment variables, optionally seeded from a .env
// file in the working directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the interview client.
const (
	DefaultServiceURL = "http://localhost:8001/ai/interview"
	DefaultWebPort    = "8090"
	DefaultLogLevel   = "info"
)

// Config holds the full configuration for an interview client run.
type Config struct {
	// ServiceURL is the base URL of the interview service.
	ServiceURL string

	// ServiceToken is the bearer token for the interview service, if any.
	ServiceToken string

	// OpenAIKey enables the OpenAI TTS fallback provider.
	OpenAIKey string

	// ElevenLabsKey enables the ElevenLabs streaming TTS provider.
	ElevenLabsKey string

	// ElevenLabsVoice is the voice ID for ElevenLabs synthesis.
	ElevenLabsVoice string

	// WebPort is the port for the presentation dashboard. Empty disables it.
	WebPort string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// AudioBackend selects the capture/playback backend (auto, portaudio, mock).
	AudioBackend string

	// AudioDevice is the platform-specific input device identifier.
	AudioDevice string

	// Voice activity tuning. Zero values fall back to the capture
	// package defaults.
	VolumeThreshold   float64
	SilenceDuration   time.Duration
	MinSpeechDuration time.Duration
	MinRecordingTime  time.Duration
	FinalizeDebounce  time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables take precedence over .env values.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServiceURL:        getEnv("VOXHIRE_SERVICE_URL", DefaultServiceURL),
		ServiceToken:      os.Getenv("VOXHIRE_SERVICE_TOKEN"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice:   os.Getenv("ELEVENLABS_VOICE_ID"),
		WebPort:           getEnv("VOXHIRE_WEB_PORT", DefaultWebPort),
		LogLevel:          getEnv("VOXHIRE_LOG_LEVEL", DefaultLogLevel),
		AudioBackend:      getEnv("VOXHIRE_AUDIO_BACKEND", "auto"),
		AudioDevice:       os.Getenv("VOXHIRE_AUDIO_DEVICE"),
		VolumeThreshold:   getEnvFloat("VOXHIRE_VOLUME_THRESHOLD", 0),
		SilenceDuration:   getEnvDuration("VOXHIRE_SILENCE_DURATION", 0),
		MinSpeechDuration: getEnvDuration("VOXHIRE_MIN_SPEECH_DURATION", 0),
		MinRecordingTime:  getEnvDuration("VOXHIRE_MIN_RECORDING_TIME", 0),
		FinalizeDebounce:  getEnvDuration("VOXHIRE_FINALIZE_DEBOUNCE", 0),
	}
}

// ServiceURLRequired returns the interview service URL from the
// environment. Exits with usage help if not set.
func ServiceURLRequired() string {
	url := os.Getenv("VOXHIRE_SERVICE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "Error: VOXHIRE_SERVICE_URL environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: VOXHIRE_SERVICE_URL=http://host:8001/ai/interview go run ./cmd/...")
		os.Exit(1)
	}
	return url
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
