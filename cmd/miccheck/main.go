// Command miccheck is a microphone calibration tool for the voice
// capture pipeline. It shows a live volume meter, the speaking state,
// and every utterance the detector would emit, so the volume threshold
// and silence window can be tuned before a real interview.
//
// Usage:
//
//	go run ./cmd/miccheck
//	go run ./cmd/miccheck --threshold 0.03 --silence 1s
//	go run ./cmd/miccheck --backend mock   # synthetic input, no hardware
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/log"
	"github.com/voxhire/voxhire/pkg/audioio"
	"github.com/voxhire/voxhire/pkg/capture"
)

const meterWidth = 40

func main() {
	threshold := flag.Float64("threshold", capture.DefaultVolumeThreshold, "Volume threshold for speech detection")
	silence := flag.Duration("silence", capture.DefaultSilenceDuration, "Trailing silence before an utterance is cut")
	backend := flag.String("backend", "", "Audio backend: auto, portaudio, mock")
	duration := flag.Duration("duration", 0, "How long to run (0 = until Ctrl+C)")
	flag.Parse()

	cfg := config.Load()
	log.Init("warn") // keep the meter readable

	if *backend != "" {
		cfg.AudioBackend = *backend
	}

	if err := run(cfg, *threshold, *silence, *duration); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, threshold float64, silence, duration time.Duration) error {
	sourceCfg := audioio.DefaultConfig()
	sourceCfg.Backend = audioio.Backend(cfg.AudioBackend)
	sourceCfg.Device = cfg.AudioDevice
	source, err := audioio.NewSource(sourceCfg, log.L())
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer source.Close()

	capCfg := capture.DefaultConfig()
	capCfg.VolumeThreshold = threshold
	capCfg.SilenceDuration = silence

	engine, err := capture.NewEngine(capCfg, source, capture.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("create capture engine: %w", err)
	}
	defer engine.Close()

	var utterances atomic.Int64
	engine.OnUtterance(func(u capture.Utterance) {
		utterances.Add(1)
		fmt.Printf("\r%s\r", strings.Repeat(" ", meterWidth+30))
		fmt.Printf("🎙  Utterance %d: %.1fs, %d bytes (%s)\n",
			utterances.Load(), u.Duration.Seconds(), u.Size(), u.MIMEType)
	})
	engine.OnError(func(err error) {
		fmt.Printf("\n⚠️  capture error: %v\n", err)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, duration)
		defer timeoutCancel()
	}

	fmt.Printf("🎤 Mic check on %s (threshold %.3f, silence %s)\n", source.Name(), threshold, silence)
	fmt.Println("   Speak a few sentences, then pause. Ctrl+C to stop.")

	if err := engine.StartListening(ctx); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	defer engine.StopListening()

	var peak float64
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n\n📊 Peak level %.3f, %d utterances detected\n", peak, utterances.Load())
			if utterances.Load() == 0 {
				fmt.Println("   No utterances. If you were speaking, lower --threshold.")
			}
			return nil
		case <-ticker.C:
			level := engine.Level()
			if level > peak {
				peak = level
			}
			drawMeter(level, threshold, engine.Speaking())
		}
	}
}

// drawMeter renders a one-line volume bar with a threshold marker.
func drawMeter(level, threshold float64, speaking bool) {
	// Full scale at 5x the default threshold keeps quiet rooms visible.
	scale := meterWidth * 10
	filled := int(level * float64(scale))
	if filled > meterWidth {
		filled = meterWidth
	}
	mark := int(threshold * float64(scale))
	if mark >= meterWidth {
		mark = meterWidth - 1
	}

	bar := make([]byte, meterWidth)
	for i := range bar {
		switch {
		case i < filled:
			bar[i] = '#'
		case i == mark:
			bar[i] = '|'
		default:
			bar[i] = ' '
		}
	}

	state := "          "
	if speaking {
		state = "SPEAKING 🔴"
	}
	fmt.Printf("\r[%s] %.3f %s", bar, level, state)
}
